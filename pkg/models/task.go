package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the position of a task on the board. The ordinal is the wire
// representation; the key is the column identifier.
type Status int

const (
	StatusTodo Status = iota
	StatusInProgress
	StatusCompleted
)

// Statuses lists every status in column order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

var statusKeys = [...]string{"TODO", "INPROGRESS", "COMPLETED"}

var statusLabels = [...]string{"To-Do", "In Progress", "Completed"}

// Valid reports whether s maps to one of the three board columns.
func (s Status) Valid() bool {
	return s >= StatusTodo && s <= StatusCompleted
}

// Key returns the column key for s, or "" when s is out of range.
func (s Status) Key() string {
	if !s.Valid() {
		return ""
	}
	return statusKeys[s]
}

// Label returns the human readable column title.
func (s Status) Label() string {
	if !s.Valid() {
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
	return statusLabels[s]
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusKeys[s]
}

// ParseStatusKey resolves a column key to its status. Matching is exact.
func ParseStatusKey(key string) (Status, bool) {
	for i, k := range statusKeys {
		if k == key {
			return Status(i), true
		}
	}
	return 0, false
}

// ParseStatus accepts either a column key (case-insensitive) or an ordinal.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	if s, ok := ParseStatusKey(strings.ToUpper(v)); ok {
		return s, nil
	}
	if n, err := strconv.Atoi(v); err == nil && Status(n).Valid() {
		return Status(n), nil
	}
	return 0, fmt.Errorf("invalid status %q: must be one of %s or 0-2", v, strings.Join(statusKeys[:], ", "))
}

// DateLayout is the calendar date format used on the wire.
const DateLayout = "2006-01-02"

// dateLayouts are tried in order when decoding a due date from the server.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// Date is a calendar date without a time-of-day component.
type Date struct {
	t time.Time
}

// NewDate returns the date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current local calendar date.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses a due date in any of the accepted server formats.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("parsing date: empty value")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), t.Month(), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("parsing date %q: expected YYYY-MM-DD", s)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns the date as a UTC midnight timestamp; it is the sort key.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a date, a zone-less datetime or an RFC 3339 string.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding date: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Task is a unit of work on the board. ID is assigned by the server.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     Date   `json:"dueDate"`
	Status      Status `json:"status"`
}

// Payload returns the create/update body for t.
func (t Task) Payload() TaskPayload {
	return TaskPayload{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Status:      t.Status,
	}
}

// TaskPayload is the request body for creating or updating a task.
type TaskPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     Date   `json:"dueDate"`
	Status      Status `json:"status"`
}

// SortOrder controls due date ordering inside a column.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Toggle flips between ascending and descending. Any unknown value toggles to
// descending since it is treated as ascending.
func (o SortOrder) Toggle() SortOrder {
	if o == SortDesc {
		return SortAsc
	}
	return SortDesc
}

// Valid reports whether o is asc or desc.
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}
