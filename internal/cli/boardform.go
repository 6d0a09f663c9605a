package cli

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

const (
	fieldTitle = iota
	fieldDescription
	fieldDueDate
	fieldStatus
	fieldCount
)

var fieldNames = [fieldCount]string{"title", "description", "dueDate", "status"}
var fieldLabels = [fieldCount]string{"Title", "Description", "Due Date", "Status"}

var (
	formLabelStyle  = lipgloss.NewStyle().Width(13).Foreground(lipgloss.Color("245"))
	formActiveStyle = lipgloss.NewStyle().Width(13).Bold(true).Foreground(lipgloss.Color("62"))
	formBoxStyle    = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// taskFormState is the add/edit overlay. editID is empty when adding.
type taskFormState struct {
	editID string
	form   core.TaskForm
	focus  int
	errors map[string]string
}

func newTaskFormState(editID string, form core.TaskForm) *taskFormState {
	return &taskFormState{editID: editID, form: form}
}

func (f *taskFormState) text(field int) *string {
	switch field {
	case fieldTitle:
		return &f.form.Title
	case fieldDescription:
		return &f.form.Description
	case fieldDueDate:
		return &f.form.DueDate
	}
	return nil
}

func (f *taskFormState) cycleStatus(delta int) {
	n := len(models.Statuses)
	f.form.Status = ((f.form.Status+delta)%n + n) % n
}

func (m boardModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.form
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.form = nil
		m.mode = modeBrowse
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		f.focus = (f.focus + 1) % fieldCount
		return m, nil
	case tea.KeyShiftTab, tea.KeyUp:
		f.focus = (f.focus - 1 + fieldCount) % fieldCount
		return m, nil
	case tea.KeyEnter:
		if _, err := f.form.Validate(); err != nil {
			var verr *core.ValidationError
			if errors.As(err, &verr) {
				f.errors = verr.Fields
			}
			return m, nil
		}
		f.errors = nil
		m.mode = modeBrowse
		return m, saveTask(m.svc, f.editID, f.form)
	}

	if f.focus == fieldStatus {
		switch msg.Type {
		case tea.KeyLeft:
			f.cycleStatus(-1)
		case tea.KeyRight, tea.KeySpace:
			f.cycleStatus(1)
		}
		return m, nil
	}

	s := f.text(f.focus)
	switch msg.Type {
	case tea.KeyBackspace:
		if r := []rune(*s); len(r) > 0 {
			*s = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		*s += string(msg.Runes)
	}
	return m, nil
}

func (f *taskFormState) view() string {
	var b strings.Builder
	heading := "Add Task"
	if f.editID != "" {
		heading = "Edit Task"
	}
	b.WriteString(columnHeaderStyle.Render(heading))
	b.WriteString("\n\n")

	for i := 0; i < fieldCount; i++ {
		label := formLabelStyle.Render(fieldLabels[i] + ":")
		if i == f.focus {
			label = formActiveStyle.Render(fieldLabels[i] + ":")
		}
		var value string
		if i == fieldStatus {
			value = "‹ " + models.Status(f.form.Status).Label() + " ›"
		} else {
			value = *f.text(i)
			if i == f.focus {
				value += "█"
			}
		}
		b.WriteString(label + " " + value + "\n")
		if msg, ok := f.errors[fieldNames[i]]; ok {
			b.WriteString(errorStyle.Render(fmt.Sprintf("%13s %s", "", msg)))
			b.WriteString("\n")
		}
	}
	return formBoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
