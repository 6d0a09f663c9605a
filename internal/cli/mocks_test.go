package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// memoryGateway is an in-memory core.TaskGateway. failUpdate makes every
// update fail.
type memoryGateway struct {
	mu         sync.Mutex
	tasks      map[string]models.Task
	nextID     int
	updates    int
	deletes    int
	failUpdate error
}

func newMemoryGateway(tasks ...models.Task) *memoryGateway {
	g := &memoryGateway{tasks: make(map[string]models.Task), nextID: 100}
	for _, t := range tasks {
		g.tasks[t.ID] = t
	}
	return g
}

func (g *memoryGateway) ListTasks(_ context.Context, _ string, _ models.SortOrder, _ string) ([]models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *memoryGateway) CreateTask(_ context.Context, _ string, p models.TaskPayload) (models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	t := models.Task{ID: fmt.Sprint(g.nextID), Title: p.Title, Description: p.Description, DueDate: p.DueDate, Status: p.Status}
	g.tasks[t.ID] = t
	return t, nil
}

func (g *memoryGateway) UpdateTask(_ context.Context, _ string, id string, p models.TaskPayload) (models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates++
	if g.failUpdate != nil {
		return models.Task{}, g.failUpdate
	}
	t := models.Task{ID: id, Title: p.Title, Description: p.Description, DueDate: p.DueDate, Status: p.Status}
	g.tasks[id] = t
	return t, nil
}

func (g *memoryGateway) DeleteTask(_ context.Context, _ string, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes++
	delete(g.tasks, id)
	return nil
}

// fakeSession implements core.SessionManager.
type fakeSession struct {
	user     *models.User
	loginErr error
}

func (s *fakeSession) RequestorID(ctx context.Context) (string, error) {
	u, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (s *fakeSession) Current(context.Context) (*models.User, error) {
	if s.user == nil {
		return nil, core.ErrNotAuthenticated
	}
	return s.user, nil
}

func (s *fakeSession) CheckAuth(ctx context.Context) bool {
	_, err := s.Current(ctx)
	return err == nil
}

func (s *fakeSession) Login(_ context.Context, creds models.Credentials) (*models.User, error) {
	if err := core.ValidateCredentials(creds); err != nil {
		return nil, err
	}
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	s.user = &models.User{ID: "42", Username: creds.Username, RoleName: "User"}
	return s.user, nil
}

func (s *fakeSession) ChangeRole(context.Context) (*models.User, error) {
	if s.user == nil {
		return nil, core.ErrNotAuthenticated
	}
	if s.user.RoleName == "User" {
		s.user.RoleName = "Admin"
	} else {
		s.user.RoleName = "User"
	}
	return s.user, nil
}

func (s *fakeSession) Logout(context.Context) error {
	if s.user == nil {
		return errors.New("no session")
	}
	s.user = nil
	return nil
}

func boardTasks() []models.Task {
	return []models.Task{
		{ID: "1", Title: "Write spec", Description: "first draft", DueDate: models.NewDate(2024, 3, 10), Status: models.StatusTodo},
		{ID: "2", Title: "Review PR", Description: "api changes", DueDate: models.NewDate(2024, 3, 1), Status: models.StatusTodo},
		{ID: "3", Title: "Ship release", Description: "v1", DueDate: models.NewDate(2024, 2, 20), Status: models.StatusInProgress},
	}
}

// withServices installs a board service over gw and a logged-in session for
// the duration of the test.
func withServices(t interface{ Cleanup(func()) }, gw *memoryGateway) *fakeSession {
	origSvc, origSession, origConfig := BoardSvc, Session, Config
	session := &fakeSession{user: &models.User{ID: "42", Username: "bob", RoleName: "User"}}
	BoardSvc = core.NewBoardService(core.NewTaskStore(), gw, session, nil, nil, core.BoardServiceOpts{})
	Session = session
	Config = core.DefaultConfig()
	t.Cleanup(func() {
		BoardSvc, Session, Config = origSvc, origSession, origConfig
	})
	return session
}
