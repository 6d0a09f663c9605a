package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// fakeTaskServer is an in-memory task API with the same routes as the real
// backend.
type fakeTaskServer struct {
	mu      sync.Mutex
	tasks   map[string]models.Task
	nextID  int
	role    string
	headers []http.Header
	queries []string
	fail    int // when non-zero, every request answers with this status
}

func newFakeTaskServer(t *testing.T) (*fakeTaskServer, *httptest.Server) {
	t.Helper()
	f := &fakeTaskServer{tasks: make(map[string]models.Task), role: "User"}

	e := echo.New()
	e.HideBanner = true
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			f.mu.Lock()
			f.headers = append(f.headers, c.Request().Header.Clone())
			f.queries = append(f.queries, c.QueryString())
			fail := f.fail
			f.mu.Unlock()
			if fail != 0 {
				return c.String(fail, "boom")
			}
			return next(c)
		}
	})

	e.GET("/api/Tasks", func(c echo.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := make([]models.Task, 0, len(f.tasks))
		for _, task := range f.tasks {
			out = append(out, task)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return c.JSON(http.StatusOK, out)
	})
	e.POST("/api/Tasks", func(c echo.Context) error {
		var p models.TaskPayload
		if err := c.Bind(&p); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.nextID++
		task := models.Task{ID: fmt.Sprint(f.nextID), Title: p.Title, Description: p.Description, DueDate: p.DueDate, Status: p.Status}
		f.tasks[task.ID] = task
		return c.JSON(http.StatusCreated, task)
	})
	e.PUT("/api/Tasks/:id", func(c echo.Context) error {
		var p models.TaskPayload
		if err := c.Bind(&p); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		id := c.Param("id")
		if _, ok := f.tasks[id]; !ok {
			return c.String(http.StatusNotFound, "task not found")
		}
		task := models.Task{ID: id, Title: p.Title, Description: p.Description, DueDate: p.DueDate, Status: p.Status}
		f.tasks[id] = task
		return c.JSON(http.StatusOK, task)
	})
	e.DELETE("/api/Tasks/:id", func(c echo.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.tasks, c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	})
	e.POST("/api/Auth/login", func(c echo.Context) error {
		var creds models.Credentials
		if err := c.Bind(&creds); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		if creds.Password != "secret" {
			return c.String(http.StatusUnauthorized, "invalid credentials")
		}
		return c.JSON(http.StatusOK, models.Envelope[models.User]{Data: models.User{ID: "42", Username: creds.Username, RoleName: f.role, Token: "tok"}})
	})
	e.PUT("/api/auth/changeRole", func(c echo.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.role == "User" {
			f.role = "Admin"
		} else {
			f.role = "User"
		}
		return c.JSON(http.StatusOK, models.Envelope[models.User]{Data: models.User{ID: c.QueryParam("requestorId"), Username: "bob", RoleName: f.role}})
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeTaskServer) lastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[len(f.headers)-1]
}

func (f *fakeTaskServer) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func newTestAPI(srv *httptest.Server, token string) *TaskAPI {
	return NewTaskAPI(TaskAPIConfig{
		BaseURL: srv.URL + "/",
		Timeout: 5 * time.Second,
		Token:   func(context.Context) string { return token },
	})
}

func TestTaskAPI_CRUDRoundTrip(t *testing.T) {
	fake, srv := newFakeTaskServer(t)
	api := newTestAPI(srv, "")
	ctx := context.Background()

	payload := models.TaskPayload{Title: "Write spec", Description: "draft", DueDate: models.NewDate(2024, time.May, 1), Status: models.StatusTodo}
	created, err := api.CreateTask(ctx, "42", payload)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.ID == "" || created.Title != "Write spec" || created.DueDate.String() != "2024-05-01" {
		t.Errorf("created = %+v", created)
	}
	if q := fake.lastQuery(); q != "requestorId=42" {
		t.Errorf("create query = %q", q)
	}

	payload.Status = models.StatusInProgress
	updated, err := api.UpdateTask(ctx, "42", created.ID, payload)
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Status != models.StatusInProgress {
		t.Errorf("updated status = %s", updated.Status.Key())
	}

	tasks, err := api.ListTasks(ctx, "42", models.SortDesc, "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != models.StatusInProgress {
		t.Errorf("tasks = %+v", tasks)
	}
	q := fake.lastQuery()
	for _, want := range []string{"requestorId=42", "order=desc", "status="} {
		if !strings.Contains(q, want) {
			t.Errorf("list query %q missing %q", q, want)
		}
	}

	if err := api.DeleteTask(ctx, "42", created.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	tasks, err = api.ListTasks(ctx, "42", models.SortAsc, "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if tasks == nil || len(tasks) != 0 {
		t.Errorf("tasks after delete = %#v, want empty non-nil", tasks)
	}
}

func TestTaskAPI_Headers(t *testing.T) {
	fake, srv := newFakeTaskServer(t)
	api := newTestAPI(srv, "tok-123")

	if _, err := api.ListTasks(context.Background(), "42", models.SortAsc, ""); err != nil {
		t.Fatal(err)
	}
	h := fake.lastHeader()
	if got := h.Get("Authorization"); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q", got)
	}
	if _, err := uuid.Parse(h.Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID %q is not a uuid: %v", h.Get("X-Request-ID"), err)
	}
	if got := h.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
}

func TestTaskAPI_NoTokenNoAuthorization(t *testing.T) {
	fake, srv := newFakeTaskServer(t)
	api := newTestAPI(srv, "")

	if _, err := api.ListTasks(context.Background(), "42", models.SortAsc, ""); err != nil {
		t.Fatal(err)
	}
	if got := fake.lastHeader().Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want none", got)
	}
}

func TestTaskAPI_NonSuccessStatus(t *testing.T) {
	fake, srv := newFakeTaskServer(t)
	api := newTestAPI(srv, "")
	fake.fail = http.StatusServiceUnavailable

	_, err := api.ListTasks(context.Background(), "42", models.SortAsc, "")
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Body != "boom" || apiErr.Op != "fetching tasks" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestTaskAPI_UpdateUnknownTask(t *testing.T) {
	_, srv := newFakeTaskServer(t)
	api := newTestAPI(srv, "")

	_, err := api.UpdateTask(context.Background(), "42", "nope", models.TaskPayload{Title: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("err = %v, want 404 APIError", err)
	}
}

func TestTaskAPI_LoginAndChangeRole(t *testing.T) {
	_, srv := newFakeTaskServer(t)
	api := newTestAPI(srv, "")
	ctx := context.Background()

	user, err := api.Login(ctx, models.Credentials{Username: "bob", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.ID != "42" || user.RoleName != "User" || user.Token != "tok" {
		t.Errorf("user = %+v", user)
	}

	if _, err := api.Login(ctx, models.Credentials{Username: "bob", Password: "wrong!"}); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("bad login err = %v", err)
	}

	changed, err := api.ChangeRole(ctx, user.ID)
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if changed.ID != "42" || changed.RoleName != "Admin" {
		t.Errorf("changed = %+v", changed)
	}
}

func TestTaskAPI_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not":"a list"`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewTaskAPI(TaskAPIConfig{BaseURL: srv.URL}).ListTasks(context.Background(), "42", models.SortAsc, "")
	if err == nil || !strings.Contains(err.Error(), "decoding response") {
		t.Errorf("err = %v, want decode error", err)
	}
}

func TestTaskAPI_ContextCancelled(t *testing.T) {
	_, srv := newFakeTaskServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestAPI(srv, "").ListTasks(ctx, "42", models.SortAsc, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
