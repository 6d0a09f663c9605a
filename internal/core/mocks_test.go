package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// updateCall records one UpdateTask invocation.
type updateCall struct {
	requestorID string
	taskID      string
	payload     models.TaskPayload
}

// fakeGateway implements TaskGateway and AuthGateway with overridable
// function fields. Unset functions echo the request back as the server would.
type fakeGateway struct {
	mu sync.Mutex

	listFn       func(ctx context.Context, requestorID string, order models.SortOrder, status string) ([]models.Task, error)
	createFn     func(ctx context.Context, requestorID string, payload models.TaskPayload) (models.Task, error)
	updateFn     func(ctx context.Context, requestorID, taskID string, payload models.TaskPayload) (models.Task, error)
	deleteFn     func(ctx context.Context, requestorID, taskID string) error
	loginFn      func(ctx context.Context, creds models.Credentials) (models.User, error)
	changeRoleFn func(ctx context.Context, requestorID string) (models.User, error)

	updates []updateCall
	deletes []string
	lists   int
	creates int
}

func (g *fakeGateway) ListTasks(ctx context.Context, requestorID string, order models.SortOrder, status string) ([]models.Task, error) {
	g.mu.Lock()
	g.lists++
	g.mu.Unlock()
	if g.listFn != nil {
		return g.listFn(ctx, requestorID, order, status)
	}
	return nil, nil
}

func (g *fakeGateway) CreateTask(ctx context.Context, requestorID string, payload models.TaskPayload) (models.Task, error) {
	g.mu.Lock()
	g.creates++
	g.mu.Unlock()
	if g.createFn != nil {
		return g.createFn(ctx, requestorID, payload)
	}
	return taskFromPayload("new-1", payload), nil
}

func (g *fakeGateway) UpdateTask(ctx context.Context, requestorID, taskID string, payload models.TaskPayload) (models.Task, error) {
	g.mu.Lock()
	g.updates = append(g.updates, updateCall{requestorID: requestorID, taskID: taskID, payload: payload})
	g.mu.Unlock()
	if g.updateFn != nil {
		return g.updateFn(ctx, requestorID, taskID, payload)
	}
	return taskFromPayload(taskID, payload), nil
}

func (g *fakeGateway) DeleteTask(ctx context.Context, requestorID, taskID string) error {
	g.mu.Lock()
	g.deletes = append(g.deletes, taskID)
	g.mu.Unlock()
	if g.deleteFn != nil {
		return g.deleteFn(ctx, requestorID, taskID)
	}
	return nil
}

func (g *fakeGateway) Login(ctx context.Context, creds models.Credentials) (models.User, error) {
	if g.loginFn != nil {
		return g.loginFn(ctx, creds)
	}
	return models.User{}, errors.New("login not configured")
}

func (g *fakeGateway) ChangeRole(ctx context.Context, requestorID string) (models.User, error) {
	if g.changeRoleFn != nil {
		return g.changeRoleFn(ctx, requestorID)
	}
	return models.User{}, errors.New("change role not configured")
}

func (g *fakeGateway) updateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.updates)
}

func taskFromPayload(id string, p models.TaskPayload) models.Task {
	return models.Task{ID: id, Title: p.Title, Description: p.Description, DueDate: p.DueDate, Status: p.Status}
}

// staticRequestor implements RequestorProvider.
type staticRequestor struct {
	id  string
	err error
}

func (r staticRequestor) RequestorID(context.Context) (string, error) {
	return r.id, r.err
}

// recordingEvents implements EventLogger and keeps every event type.
type recordingEvents struct {
	mu    sync.Mutex
	types []string
	data  []map[string]any
}

func (e *recordingEvents) LogEvent(eventType string, data map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, eventType)
	e.data = append(e.data, data)
	return nil
}

func (e *recordingEvents) has(eventType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func (e *recordingEvents) count(eventType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, t := range e.types {
		if t == eventType {
			n++
		}
	}
	return n
}

// memoryKV implements KVStore in memory.
type memoryKV struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.values, key)
	return nil
}

func date(y int, m int, d int) models.Date {
	return models.NewDate(y, time.Month(m), d)
}
