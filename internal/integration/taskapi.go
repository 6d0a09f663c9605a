package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// ErrRequestFailed is wrapped by every error caused by a non-2xx response.
var ErrRequestFailed = errors.New("request failed")

// APIError reports a non-2xx response from the task API. Status codes are
// recorded but not otherwise interpreted.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *APIError) Unwrap() error { return ErrRequestFailed }

// TokenSource supplies the bearer token for outgoing requests. It may return
// "" when the session carries no token.
type TokenSource func(ctx context.Context) string

// TaskAPIConfig configures a TaskAPI client.
type TaskAPIConfig struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client (used by tests).
	HTTPClient *http.Client
	Token      TokenSource
}

// TaskAPI is the HTTP client for the remote task and auth endpoints.
type TaskAPI struct {
	baseURL string
	client  *http.Client
	token   TokenSource
}

// NewTaskAPI creates a TaskAPI for the given base URL.
func NewTaskAPI(cfg TaskAPIConfig) *TaskAPI {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &TaskAPI{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		token:   cfg.Token,
	}
}

// ListTasks fetches the requestor's tasks ordered and optionally filtered by
// the server.
func (a *TaskAPI) ListTasks(ctx context.Context, requestorID string, order models.SortOrder, status string) ([]models.Task, error) {
	q := url.Values{}
	q.Set("requestorId", requestorID)
	q.Set("order", string(order))
	q.Set("status", status)

	var tasks []models.Task
	if err := a.do(ctx, "fetching tasks", http.MethodGet, "/api/Tasks", q, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// CreateTask creates a task and returns it with its server-assigned id.
func (a *TaskAPI) CreateTask(ctx context.Context, requestorID string, payload models.TaskPayload) (models.Task, error) {
	q := url.Values{"requestorId": {requestorID}}
	var task models.Task
	if err := a.do(ctx, "creating task", http.MethodPost, "/api/Tasks", q, payload, &task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// UpdateTask replaces a task with the full payload and returns the result.
func (a *TaskAPI) UpdateTask(ctx context.Context, requestorID, taskID string, payload models.TaskPayload) (models.Task, error) {
	q := url.Values{"requestorId": {requestorID}}
	var task models.Task
	path := "/api/Tasks/" + url.PathEscape(taskID)
	if err := a.do(ctx, "updating task", http.MethodPut, path, q, payload, &task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// DeleteTask deletes a task. A successful response has no body.
func (a *TaskAPI) DeleteTask(ctx context.Context, requestorID, taskID string) error {
	q := url.Values{"requestorId": {requestorID}}
	path := "/api/Tasks/" + url.PathEscape(taskID)
	return a.do(ctx, "deleting task", http.MethodDelete, path, q, nil, nil)
}

// Login exchanges credentials for the session user.
func (a *TaskAPI) Login(ctx context.Context, creds models.Credentials) (models.User, error) {
	var env models.Envelope[models.User]
	if err := a.do(ctx, "logging in", http.MethodPost, "/api/Auth/login", nil, creds, &env); err != nil {
		return models.User{}, err
	}
	return env.Data, nil
}

// ChangeRole switches the requestor's role and returns the updated user.
func (a *TaskAPI) ChangeRole(ctx context.Context, requestorID string) (models.User, error) {
	q := url.Values{"requestorId": {requestorID}}
	var env models.Envelope[models.User]
	if err := a.do(ctx, "changing role", http.MethodPut, "/api/auth/changeRole", q, nil, &env); err != nil {
		return models.User{}, err
	}
	return env.Data, nil
}

// maxErrorBody bounds how much of an error response is kept in APIError.
const maxErrorBody = 512

func (a *TaskAPI) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil || method == http.MethodPut {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != nil {
		if tok := a.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}
