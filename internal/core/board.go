package core

import (
	"sort"
	"strings"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// BoardQuery selects what the board shows: a title filter and a due date
// order per column. A column missing from Orders sorts ascending.
type BoardQuery struct {
	Query  string
	Orders map[models.Status]models.SortOrder
}

// Order returns the sort order for the given column.
func (q BoardQuery) Order(s models.Status) models.SortOrder {
	if o, ok := q.Orders[s]; ok && o.Valid() {
		return o
	}
	return models.SortAsc
}

// Column is one status column of the board.
type Column struct {
	Status models.Status
	Order  models.SortOrder
	Tasks  []models.Task
}

// Key returns the drop-target identifier of the column.
func (c Column) Key() string { return c.Status.Key() }

// Board is the three-column view of a task list.
type Board struct {
	Columns [3]Column
	// Unresolved counts filtered tasks whose status maps to no column.
	Unresolved int
}

// Column returns the column for s. s must be valid.
func (b Board) Column(s models.Status) Column {
	return b.Columns[s]
}

// Total returns the number of tasks placed on the board.
func (b Board) Total() int {
	n := 0
	for _, c := range b.Columns {
		n += len(c.Tasks)
	}
	return n
}

// FilterTasks returns the tasks whose title contains query, ignoring case.
// An empty query returns a copy of all tasks.
func FilterTasks(tasks []models.Task, query string) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	if query == "" {
		return append(out, tasks...)
	}
	needle := strings.ToLower(query)
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), needle) {
			out = append(out, t)
		}
	}
	return out
}

// SortByDueDate orders tasks in place by due date. The sort is stable, so
// tasks with equal due dates keep their relative order.
func SortByDueDate(tasks []models.Task, order models.SortOrder) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].DueDate.Time(), tasks[j].DueDate.Time()
		if order == models.SortDesc {
			return a.After(b)
		}
		return a.Before(b)
	})
}

// Project derives the board from tasks without modifying them. Calling it
// twice with equal inputs yields equal boards.
func Project(tasks []models.Task, q BoardQuery) Board {
	var b Board
	for _, s := range models.Statuses {
		b.Columns[s] = Column{Status: s, Order: q.Order(s), Tasks: []models.Task{}}
	}

	for _, t := range FilterTasks(tasks, q.Query) {
		key := t.Status.Key()
		s, ok := models.ParseStatusKey(key)
		if !ok {
			b.Unresolved++
			continue
		}
		b.Columns[s].Tasks = append(b.Columns[s].Tasks, t)
	}

	for i := range b.Columns {
		SortByDueDate(b.Columns[i].Tasks, b.Columns[i].Order)
	}
	return b
}
