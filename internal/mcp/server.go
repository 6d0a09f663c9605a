// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the task board as MCP tools for AI assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// Server wraps the board service and exposes it as MCP tools.
type Server struct {
	server   *gomcp.Server
	board    core.BoardService
	eventLog observability.EventLog
}

// NewServer creates a new MCP server over board. eventLog may be nil when
// the event log could not be opened.
func NewServer(board core.BoardService, eventLog observability.EventLog, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		board:    board,
		eventLog: eventLog,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "taskboard", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves MCP over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskOutput struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
}

type getTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"the task id"`
}

type listTasksInput struct {
	Query  string `json:"query,omitempty" jsonschema:"case-insensitive title filter"`
	Status string `json:"status,omitempty" jsonschema:"only this column (TODO, INPROGRESS, COMPLETED)"`
	Order  string `json:"order,omitempty" jsonschema:"due date order for every column: asc (default) or desc"`
}

type columnOutput struct {
	Key   string       `json:"key"`
	Label string       `json:"label"`
	Order string       `json:"order"`
	Tasks []taskOutput `json:"tasks"`
}

type listTasksOutput struct {
	Columns []columnOutput `json:"columns"`
	Count   int            `json:"count"`
}

type moveTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"the task id"`
	Column string `json:"column" jsonschema:"target column: TODO, INPROGRESS or COMPLETED"`
}

type moveTaskOutput struct {
	Outcome string     `json:"outcome"`
	From    string     `json:"from"`
	To      string     `json:"to"`
	Task    taskOutput `json:"task"`
}

type createTaskInput struct {
	Title       string `json:"title" jsonschema:"task title"`
	Description string `json:"description" jsonschema:"task description"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"due date YYYY-MM-DD, defaults to today"`
	Status      string `json:"status,omitempty" jsonschema:"initial column, defaults to TODO"`
}

type deleteTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"the task id"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type getEventsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window (e.g. 7d, 24h). Defaults to 7d."`
	Type  string `json:"type,omitempty" jsonschema:"event type, or a family ending in a dot (task.)"`
	Limit int    `json:"limit,omitempty" jsonschema:"most recent N events, defaults to 50"`
}

type eventOutput struct {
	Time  string         `json:"time"`
	Level string         `json:"level"`
	Type  string         `json:"type"`
	Data  map[string]any `json:"data,omitempty"`
}

type getEventsOutput struct {
	Events []eventOutput `json:"events"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List the board: tasks grouped into the TODO, INPROGRESS and COMPLETED columns, sorted by due date.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get a task by id.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "move_task",
		Description: "Move a task to another column, exactly like dragging its card there. Moving onto its own column does nothing.",
	}, s.handleMoveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a task. Title and description are required.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_task",
		Description: "Delete a task by id. Unknown ids are a no-op.",
	}, s.handleDeleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_events",
		Description: "Read the local board event log: logins, role changes, task changes and failed moves.",
	}, s.handleGetEvents)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(ctx context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	empty := listTasksOutput{Columns: []columnOutput{}}

	order := models.SortOrder(strings.ToLower(input.Order))
	if order == "" {
		order = models.SortAsc
	}
	if !order.Valid() {
		return errorResult(fmt.Sprintf("invalid order %q: must be asc or desc", input.Order)), empty, nil
	}
	var only *models.Status
	if input.Status != "" {
		st, err := models.ParseStatus(input.Status)
		if err != nil {
			return errorResult(err.Error()), empty, nil
		}
		only = &st
	}

	if err := s.board.Refresh(ctx); err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), empty, nil
	}

	q := core.BoardQuery{Query: input.Query, Orders: map[models.Status]models.SortOrder{}}
	for _, st := range models.Statuses {
		q.Orders[st] = order
	}
	board := s.board.Board(q)

	out := empty
	for _, col := range board.Columns {
		if only != nil && col.Status != *only {
			continue
		}
		c := columnOutput{Key: col.Key(), Label: col.Status.Label(), Order: string(col.Order), Tasks: make([]taskOutput, len(col.Tasks))}
		for i, t := range col.Tasks {
			c.Tasks[i] = taskToOutput(t)
		}
		out.Count += len(col.Tasks)
		out.Columns = append(out.Columns, c)
	}
	return nil, out, nil
}

func (s *Server) handleGetTask(ctx context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	if err := s.board.Refresh(ctx); err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	task, ok := s.board.Store().Get(input.TaskID)
	if !ok {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleMoveTask(ctx context.Context, _ *gomcp.CallToolRequest, input moveTaskInput) (*gomcp.CallToolResult, moveTaskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), moveTaskOutput{}, nil
	}
	column := strings.ToUpper(input.Column)
	if _, ok := core.ResolveTarget(column); !ok {
		return errorResult(fmt.Sprintf("invalid column %q: must be one of TODO, INPROGRESS, COMPLETED", input.Column)), moveTaskOutput{}, nil
	}
	if err := s.board.Refresh(ctx); err != nil {
		return errorResult(fmt.Sprintf("moving task %s: %s", input.TaskID, err)), moveTaskOutput{}, nil
	}

	res, err := s.board.Move(ctx, input.TaskID, column)
	if err != nil {
		return errorResult(err.Error()), moveTaskOutput{}, nil
	}
	if res.Outcome == core.DropIgnored {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), moveTaskOutput{}, nil
	}

	out := moveTaskOutput{
		Outcome: res.Outcome.String(),
		From:    res.From.Key(),
		To:      res.To.Key(),
		Task:    taskToOutput(res.Task),
	}
	return nil, out, nil
}

func (s *Server) handleCreateTask(ctx context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	form := core.NewTaskForm()
	form.Title = input.Title
	form.Description = input.Description
	if input.DueDate != "" {
		form.DueDate = input.DueDate
	}
	if input.Status != "" {
		st, err := models.ParseStatus(input.Status)
		if err != nil {
			return errorResult(err.Error()), taskOutput{}, nil
		}
		form.Status = int(st)
	}

	task, err := s.board.Create(ctx, form)
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			return errorResult(verr.Error()), taskOutput{}, nil
		}
		return errorResult(fmt.Sprintf("creating task: %s", err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input deleteTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	if err := s.board.Refresh(ctx); err != nil {
		return errorResult(fmt.Sprintf("deleting task %s: %s", input.TaskID, err)), messageOutput{}, nil
	}
	if _, ok := s.board.Store().Get(input.TaskID); !ok {
		return nil, messageOutput{Message: fmt.Sprintf("task %s not found; nothing to delete", input.TaskID)}, nil
	}
	if err := s.board.Delete(ctx, input.TaskID); err != nil {
		return errorResult(err.Error()), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("task %s deleted", input.TaskID)}, nil
}

func (s *Server) handleGetEvents(_ context.Context, _ *gomcp.CallToolRequest, input getEventsInput) (*gomcp.CallToolResult, getEventsOutput, error) {
	empty := getEventsOutput{Events: []eventOutput{}}
	if s.eventLog == nil {
		return errorResult("event log not available"), empty, nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	since, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), empty, nil
	}

	filter := observability.EventFilter{Since: &since, Limit: input.Limit}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if strings.HasSuffix(input.Type, ".") {
		filter.TypePrefix = input.Type
	} else {
		filter.Type = input.Type
	}

	events, err := s.eventLog.Read(filter)
	if err != nil {
		return errorResult(fmt.Sprintf("reading events: %s", err)), empty, nil
	}

	out := getEventsOutput{Events: make([]eventOutput, len(events)), Count: len(events)}
	for i, e := range events {
		out.Events[i] = eventOutput{
			Time:  e.Time.Format(time.RFC3339),
			Level: e.Level,
			Type:  e.Type,
			Data:  e.Data,
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func taskToOutput(t models.Task) taskOutput {
	return taskOutput{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate.String(),
		Status:      t.Status.Key(),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a duration string like "7d" or "24h" into the
// corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
