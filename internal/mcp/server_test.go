package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// --- Fake implementations ---

type fakeGateway struct {
	mu      sync.Mutex
	tasks   map[string]models.Task
	nextID  int
	updates int
	deletes int
}

func newFakeGateway(tasks ...models.Task) *fakeGateway {
	g := &fakeGateway{tasks: make(map[string]models.Task), nextID: 10}
	for _, t := range tasks {
		g.tasks[t.ID] = t
	}
	return g
}

func (g *fakeGateway) ListTasks(context.Context, string, models.SortOrder, string) ([]models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGateway) CreateTask(_ context.Context, _ string, p models.TaskPayload) (models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	t := models.Task{ID: fmt.Sprint(g.nextID), Title: p.Title, Description: p.Description, DueDate: p.DueDate, Status: p.Status}
	g.tasks[t.ID] = t
	return t, nil
}

func (g *fakeGateway) UpdateTask(_ context.Context, _, id string, p models.TaskPayload) (models.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates++
	t := models.Task{ID: id, Title: p.Title, Description: p.Description, DueDate: p.DueDate, Status: p.Status}
	g.tasks[id] = t
	return t, nil
}

func (g *fakeGateway) DeleteTask(_ context.Context, _, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes++
	delete(g.tasks, id)
	return nil
}

type staticRequestor string

func (r staticRequestor) RequestorID(context.Context) (string, error) {
	if r == "" {
		return "", core.ErrNotAuthenticated
	}
	return string(r), nil
}

// --- Test helpers ---

func sampleTasks() []models.Task {
	return []models.Task{
		{ID: "1", Title: "Write spec", Description: "draft", DueDate: models.NewDate(2025, time.March, 10), Status: models.StatusTodo},
		{ID: "2", Title: "Review PR", Description: "api", DueDate: models.NewDate(2025, time.March, 1), Status: models.StatusTodo},
		{ID: "3", Title: "Ship release", Description: "v1", DueDate: models.NewDate(2025, time.February, 20), Status: models.StatusCompleted},
	}
}

func newTestServer(t *testing.T, gw *fakeGateway, eventLog observability.EventLog) *Server {
	t.Helper()
	board := core.NewBoardService(core.NewTaskStore(), gw, staticRequestor("42"), nil, nil, core.BoardServiceOpts{})
	return NewServer(board, eventLog, "test")
}

func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	// Connect server (non-blocking).
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decode reads the tool output from structured content, falling back to the
// first text content.
func decode(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	var data []byte
	if result.StructuredContent != nil {
		data, _ = json.Marshal(result.StructuredContent)
	} else {
		data = []byte(extractText(result))
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decoding tool output: %v (data was: %s)", err, data)
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Tests ---

func TestListTasks(t *testing.T) {
	srv := newTestServer(t, newFakeGateway(sampleTasks()...), nil)

	result := callTool(t, srv, "list_tasks", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out listTasksOutput
	decode(t, result, &out)
	if out.Count != 3 || len(out.Columns) != 3 {
		t.Fatalf("out = %+v", out)
	}
	todo := out.Columns[0]
	if todo.Key != "TODO" || len(todo.Tasks) != 2 || todo.Tasks[0].ID != "2" {
		t.Errorf("TODO column = %+v, want Review PR first", todo)
	}
	if len(out.Columns[1].Tasks) != 0 || out.Columns[2].Tasks[0].Status != "COMPLETED" {
		t.Errorf("columns = %+v", out.Columns)
	}
}

func TestListTasks_FilterAndOrder(t *testing.T) {
	srv := newTestServer(t, newFakeGateway(sampleTasks()...), nil)

	result := callTool(t, srv, "list_tasks", map[string]any{"status": "todo", "order": "desc", "query": "W"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out listTasksOutput
	decode(t, result, &out)
	if len(out.Columns) != 1 || out.Columns[0].Order != "desc" {
		t.Fatalf("out = %+v", out)
	}
	tasks := out.Columns[0].Tasks
	if len(tasks) != 2 || tasks[0].ID != "1" {
		t.Errorf("tasks = %+v, want Write spec first when descending", tasks)
	}
}

func TestListTasks_InvalidOrder(t *testing.T) {
	srv := newTestServer(t, newFakeGateway(), nil)

	result := callTool(t, srv, "list_tasks", map[string]any{"order": "random"})
	if !result.IsError {
		t.Error("expected error result for invalid order")
	}
}

func TestListTasks_NotAuthenticated(t *testing.T) {
	board := core.NewBoardService(core.NewTaskStore(), newFakeGateway(), staticRequestor(""), nil, nil, core.BoardServiceOpts{})
	srv := NewServer(board, nil, "test")

	result := callTool(t, srv, "list_tasks", map[string]any{})
	if !result.IsError {
		t.Error("expected error result without a session")
	}
}

func TestGetTask(t *testing.T) {
	srv := newTestServer(t, newFakeGateway(sampleTasks()...), nil)

	result := callTool(t, srv, "get_task", map[string]any{"task_id": "3"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out taskOutput
	decode(t, result, &out)
	if out.Title != "Ship release" || out.DueDate != "2025-02-20" || out.Status != "COMPLETED" {
		t.Errorf("out = %+v", out)
	}

	if result := callTool(t, srv, "get_task", map[string]any{"task_id": "404"}); !result.IsError {
		t.Error("expected error for unknown task")
	}
}

func TestMoveTask(t *testing.T) {
	gw := newFakeGateway(sampleTasks()...)
	srv := newTestServer(t, gw, nil)

	result := callTool(t, srv, "move_task", map[string]any{"task_id": "1", "column": "inprogress"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out moveTaskOutput
	decode(t, result, &out)
	if out.Outcome != "moved" || out.From != "TODO" || out.To != "INPROGRESS" || out.Task.Status != "INPROGRESS" {
		t.Errorf("out = %+v", out)
	}
	if gw.updates != 1 {
		t.Errorf("updates = %d, want 1", gw.updates)
	}
}

func TestMoveTask_SameColumn(t *testing.T) {
	gw := newFakeGateway(sampleTasks()...)
	srv := newTestServer(t, gw, nil)

	result := callTool(t, srv, "move_task", map[string]any{"task_id": "1", "column": "TODO"})
	var out moveTaskOutput
	decode(t, result, &out)
	if out.Outcome != "unchanged" || gw.updates != 0 {
		t.Errorf("outcome = %s, updates = %d", out.Outcome, gw.updates)
	}
}

func TestMoveTask_Invalid(t *testing.T) {
	srv := newTestServer(t, newFakeGateway(sampleTasks()...), nil)

	if result := callTool(t, srv, "move_task", map[string]any{"task_id": "1", "column": "DONE"}); !result.IsError {
		t.Error("expected error for unknown column")
	}
	if result := callTool(t, srv, "move_task", map[string]any{"task_id": "404", "column": "TODO"}); !result.IsError {
		t.Error("expected error for unknown task")
	}
}

func TestCreateTask(t *testing.T) {
	gw := newFakeGateway()
	srv := newTestServer(t, gw, nil)

	result := callTool(t, srv, "create_task", map[string]any{"title": "New", "description": "desc", "due_date": "2025-06-01", "status": "COMPLETED"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out taskOutput
	decode(t, result, &out)
	if out.ID != "11" || out.Status != "COMPLETED" || out.DueDate != "2025-06-01" {
		t.Errorf("out = %+v", out)
	}
}

func TestCreateTask_Validation(t *testing.T) {
	gw := newFakeGateway()
	srv := newTestServer(t, gw, nil)

	result := callTool(t, srv, "create_task", map[string]any{"title": "", "description": ""})
	if !result.IsError {
		t.Fatal("expected validation error")
	}
	if text := extractText(result); text == "" {
		t.Error("error result has no message")
	}
	if len(gw.tasks) != 0 {
		t.Error("task created despite validation errors")
	}
}

func TestDeleteTask(t *testing.T) {
	gw := newFakeGateway(sampleTasks()...)
	srv := newTestServer(t, gw, nil)

	if result := callTool(t, srv, "delete_task", map[string]any{"task_id": "2"}); result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	if _, ok := gw.tasks["2"]; ok {
		t.Error("task not deleted")
	}

	result := callTool(t, srv, "delete_task", map[string]any{"task_id": "2"})
	if result.IsError {
		t.Fatalf("deleting an absent task should succeed: %s", extractText(result))
	}
	if gw.deletes != 1 {
		t.Errorf("deletes = %d, want 1", gw.deletes)
	}
}

func TestGetEvents(t *testing.T) {
	eventLog, err := observability.NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eventLog.Close() })
	now := time.Now().UTC()
	for _, e := range []observability.Event{
		{Time: now.Add(-30 * 24 * time.Hour), Type: "task.created"},
		{Time: now.Add(-time.Hour), Type: "task.moved", Data: map[string]any{"task_id": "1"}},
		{Time: now, Type: "session.login"},
	} {
		if err := eventLog.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	srv := newTestServer(t, newFakeGateway(), eventLog)

	result := callTool(t, srv, "get_events", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out getEventsOutput
	decode(t, result, &out)
	if out.Count != 2 {
		t.Errorf("count = %d, want 2 within the default 7d window", out.Count)
	}

	result = callTool(t, srv, "get_events", map[string]any{"type": "task.", "since": "60d"})
	out = getEventsOutput{}
	decode(t, result, &out)
	if out.Count != 2 || out.Events[1].Type != "task.moved" {
		t.Errorf("events = %+v", out.Events)
	}
}

func TestGetEvents_Unavailable(t *testing.T) {
	srv := newTestServer(t, newFakeGateway(), nil)

	if result := callTool(t, srv, "get_events", map[string]any{}); !result.IsError {
		t.Error("expected error result without an event log")
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"7d", false},
		{"24h", false},
		{"1w", true},
		{"d", true},
		{"abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseSince(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseSince(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
