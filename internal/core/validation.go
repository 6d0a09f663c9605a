package core

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// ValidationError collects per-field messages for a rejected form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message for a field, or "".
func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// TaskForm is the raw input of the add/edit task form.
type TaskForm struct {
	Title       string
	Description string
	DueDate     string
	Status      int
}

// NewTaskForm returns the defaults of an empty add form: due today, To-Do.
func NewTaskForm() TaskForm {
	return TaskForm{DueDate: models.Today().String(), Status: int(models.StatusTodo)}
}

// TaskFormFrom fills a form from an existing task for editing.
func TaskFormFrom(t models.Task) TaskForm {
	return TaskForm{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate.String(),
		Status:      int(t.Status),
	}
}

// Validate checks the form and converts it into a request payload.
func (f TaskForm) Validate() (models.TaskPayload, error) {
	verr := &ValidationError{}

	if strings.TrimSpace(f.Title) == "" {
		verr.add("title", "Title is required")
	}
	if strings.TrimSpace(f.Description) == "" {
		verr.add("description", "Description is required")
	}

	var due models.Date
	if strings.TrimSpace(f.DueDate) == "" {
		verr.add("dueDate", "Due date is required")
	} else {
		d, err := models.ParseDate(f.DueDate)
		if err != nil {
			verr.add("dueDate", "Invalid due date")
		}
		due = d
	}

	if !models.Status(f.Status).Valid() {
		verr.add("status", "Invalid status")
	}

	if err := verr.orNil(); err != nil {
		return models.TaskPayload{}, err
	}
	return models.TaskPayload{
		Title:       f.Title,
		Description: f.Description,
		DueDate:     due,
		Status:      models.Status(f.Status),
	}, nil
}

const (
	minUsernameLen = 3
	minPasswordLen = 6
)

// ValidateCredentials checks the login form.
func ValidateCredentials(c models.Credentials) error {
	verr := &ValidationError{}
	if utf8.RuneCountInString(c.Username) < minUsernameLen {
		verr.add("username", fmt.Sprintf("Username must be at least %d characters long", minUsernameLen))
	}
	if utf8.RuneCountInString(c.Password) < minPasswordLen {
		verr.add("password", fmt.Sprintf("Password must be at least %d characters long", minPasswordLen))
	}
	return verr.orNil()
}
