package core

import (
	"sync"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// TaskStore holds the tasks of the current board session in insertion order.
// It has no error states: it only reflects what the gateway confirmed.
type TaskStore interface {
	// Load replaces the whole collection.
	Load(tasks []models.Task)
	// Upsert replaces the task with the same ID or appends it.
	Upsert(task models.Task)
	// Remove drops the task with the given ID and reports whether it existed.
	Remove(id string) bool
	Get(id string) (models.Task, bool)
	// Snapshot returns a copy of all tasks in insertion order.
	Snapshot() []models.Task
	Len() int
}

type memoryTaskStore struct {
	mu    sync.RWMutex
	tasks []models.Task
	index map[string]int
}

// NewTaskStore creates an empty in-memory TaskStore.
func NewTaskStore() TaskStore {
	return &memoryTaskStore{index: make(map[string]int)}
}

func (s *memoryTaskStore) Load(tasks []models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make([]models.Task, 0, len(tasks))
	s.index = make(map[string]int, len(tasks))
	for _, t := range tasks {
		// A duplicated ID in a listing keeps the later record at the
		// position of the first.
		if i, ok := s.index[t.ID]; ok {
			s.tasks[i] = t
			continue
		}
		s.index[t.ID] = len(s.tasks)
		s.tasks = append(s.tasks, t)
	}
}

func (s *memoryTaskStore) Upsert(task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[task.ID]; ok {
		s.tasks[i] = task
		return
	}
	s.index[task.ID] = len(s.tasks)
	s.tasks = append(s.tasks, task)
}

func (s *memoryTaskStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.tasks); j++ {
		s.index[s.tasks[j].ID] = j
	}
	return true
}

func (s *memoryTaskStore) Get(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.Task{}, false
	}
	return s.tasks[i], true
}

func (s *memoryTaskStore) Snapshot() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *memoryTaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
