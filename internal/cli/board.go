package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// PushRunner runs the push channel until ctx is cancelled.
type PushRunner func(ctx context.Context) error

type boardMode int

const (
	modeBrowse boardMode = iota
	modeDrag
	modeSearch
	modeForm
	modeConfirmDelete
)

// dragState tracks a card picked up with space. over is the column the card
// hovers; -1 means outside every column.
type dragState struct {
	itemID string
	from   int
	over   int
}

type boardModel struct {
	svc   core.BoardService
	user  *models.User
	query core.BoardQuery

	mode    boardMode
	col     int
	row     int
	drag    *dragState
	form    *taskFormState
	pending map[string]bool

	width   int
	height  int
	loading bool
	notice  string
	err     error

	pushCh   <-chan models.PushMessage
	lastPush string
}

// Messages produced by board commands.
type (
	boardLoadedMsg struct{ err error }
	moveDoneMsg    struct {
		itemID string
		result core.DropResult
		err    error
	}
	taskSavedMsg struct {
		task    models.Task
		created bool
		err     error
	}
	taskDeletedMsg struct {
		id  string
		err error
	}
	pushReceivedMsg struct{ msg models.PushMessage }
)

var (
	boardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeColumnStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	dropColumnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("226")).
			Padding(0, 1)

	columnHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	cursorStyle       = lipgloss.NewStyle().Reverse(true)
	draggedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	pendingStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	dueStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	boardHelpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBoardModel(svc core.BoardService, user *models.User, defaultOrder models.SortOrder, pushCh <-chan models.PushMessage) boardModel {
	if !defaultOrder.Valid() {
		defaultOrder = models.SortAsc
	}
	orders := make(map[models.Status]models.SortOrder, len(models.Statuses))
	for _, s := range models.Statuses {
		orders[s] = defaultOrder
	}
	return boardModel{
		svc:     svc,
		user:    user,
		query:   core.BoardQuery{Orders: orders},
		pending: make(map[string]bool),
		loading: true,
		pushCh:  pushCh,
	}
}

func (m boardModel) Init() tea.Cmd {
	return tea.Batch(refreshBoard(m.svc), waitForPush(m.pushCh))
}

func refreshBoard(svc core.BoardService) tea.Cmd {
	return func() tea.Msg {
		return boardLoadedMsg{err: svc.Refresh(context.Background())}
	}
}

func moveTask(svc core.BoardService, itemID, targetID string) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Move(context.Background(), itemID, targetID)
		return moveDoneMsg{itemID: itemID, result: res, err: err}
	}
}

func saveTask(svc core.BoardService, editID string, form core.TaskForm) tea.Cmd {
	return func() tea.Msg {
		if editID == "" {
			task, err := svc.Create(context.Background(), form)
			return taskSavedMsg{task: task, created: true, err: err}
		}
		task, err := svc.Edit(context.Background(), editID, form)
		return taskSavedMsg{task: task, err: err}
	}
}

func deleteTask(svc core.BoardService, id string) tea.Cmd {
	return func() tea.Msg {
		return taskDeletedMsg{id: id, err: svc.Delete(context.Background(), id)}
	}
}

func waitForPush(ch <-chan models.PushMessage) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return pushReceivedMsg{msg: msg}
	}
}

func (m boardModel) board() core.Board {
	return m.svc.Board(m.query)
}

// selected returns the task under the cursor.
func (m boardModel) selected() (models.Task, bool) {
	tasks := m.board().Columns[m.col].Tasks
	if m.row < 0 || m.row >= len(tasks) {
		return models.Task{}, false
	}
	return tasks[m.row], true
}

func (m *boardModel) clampRow() {
	n := len(m.board().Columns[m.col].Tasks)
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

// focusTask moves the cursor onto the task with the given id, if shown.
func (m *boardModel) focusTask(id string) {
	b := m.board()
	for c, col := range b.Columns {
		for r, t := range col.Tasks {
			if t.ID == id {
				m.col, m.row = c, r
				return
			}
		}
	}
	m.clampRow()
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardLoadedMsg:
		m.loading = false
		m.err = msg.err
		m.clampRow()
		return m, nil

	case moveDoneMsg:
		delete(m.pending, msg.itemID)
		switch {
		case msg.err != nil:
			m.err = msg.err
			m.notice = ""
		case msg.result.Outcome == core.DropMoved:
			m.err = nil
			m.notice = fmt.Sprintf("Moved %q to %s", msg.result.Task.Title, msg.result.Task.Status.Label())
			m.focusTask(msg.itemID)
		}
		m.clampRow()
		return m, nil

	case taskSavedMsg:
		if msg.err != nil {
			var verr *core.ValidationError
			if errors.As(msg.err, &verr) && m.form != nil {
				m.form.errors = verr.Fields
				m.mode = modeForm
				return m, nil
			}
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.form = nil
		if msg.created {
			m.notice = fmt.Sprintf("Created %q", msg.task.Title)
		} else {
			m.notice = fmt.Sprintf("Updated %q", msg.task.Title)
		}
		m.focusTask(msg.task.ID)
		return m, nil

	case taskDeletedMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to delete task: %w", msg.err)
			return m, nil
		}
		m.err = nil
		m.notice = "Task deleted successfully!"
		m.clampRow()
		return m, nil

	case pushReceivedMsg:
		m.lastPush = msg.msg.Type
		return m, waitForPush(m.pushCh)

	case tea.KeyMsg:
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeForm:
			return m.updateForm(msg)
		case modeConfirmDelete:
			return m.updateConfirmDelete(msg)
		case modeDrag:
			return m.updateDrag(msg)
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

func (m boardModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "left", "h", "shift+tab":
		m.col = (m.col - 1 + len(models.Statuses)) % len(models.Statuses)
		m.clampRow()
	case "right", "l", "tab":
		m.col = (m.col + 1) % len(models.Statuses)
		m.clampRow()
	case "up", "k":
		if m.row > 0 {
			m.row--
		}
	case "down", "j":
		m.row++
		m.clampRow()
	case "s":
		st := models.Statuses[m.col]
		m.query.Orders[st] = m.query.Order(st).Toggle()
	case "/":
		m.mode = modeSearch
	case "r":
		m.loading = true
		return m, refreshBoard(m.svc)
	case " ", "enter":
		t, ok := m.selected()
		if !ok || m.pending[t.ID] {
			return m, nil
		}
		m.drag = &dragState{itemID: t.ID, from: m.col, over: m.col}
		m.mode = modeDrag
		m.notice = fmt.Sprintf("Dragging %q: ←/→ to choose a column, space to drop, esc to cancel", t.Title)
	case "a":
		m.form = newTaskFormState("", core.NewTaskForm())
		m.mode = modeForm
	case "e":
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.form = newTaskFormState(t.ID, core.TaskFormFrom(t))
		m.mode = modeForm
	case "d":
		if _, ok := m.selected(); ok {
			m.mode = modeConfirmDelete
		}
	}
	return m, nil
}

func (m boardModel) updateDrag(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := m.drag
	switch msg.String() {
	case "left", "h":
		if d.over > -1 {
			d.over--
		}
	case "right", "l":
		if d.over < len(models.Statuses)-1 {
			d.over++
		}
	case "esc":
		// Releasing outside every column is a drag-end without a target.
		d.over = -1
		return m.drop()
	case " ", "enter":
		return m.drop()
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// drop ends the current drag and issues the move.
func (m boardModel) drop() (tea.Model, tea.Cmd) {
	d := m.drag
	m.drag = nil
	m.mode = modeBrowse
	m.notice = ""

	target := ""
	if d.over >= 0 {
		target = models.Statuses[d.over].Key()
		m.col = d.over
	}
	if t, ok := core.ResolveTarget(target); !ok || int(t) == d.from {
		m.col = d.from
		m.focusTask(d.itemID)
		return m, nil
	}
	m.pending[d.itemID] = true
	return m, moveTask(m.svc, d.itemID, target)
}

func (m boardModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter, tea.KeyEsc:
		m.mode = modeBrowse
	case tea.KeyBackspace:
		if r := []rune(m.query.Query); len(r) > 0 {
			m.query.Query = string(r[:len(r)-1])
		}
	case tea.KeyCtrlU:
		m.query.Query = ""
	case tea.KeyRunes, tea.KeySpace:
		m.query.Query += string(msg.Runes)
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	m.clampRow()
	return m, nil
}

func (m boardModel) updateConfirmDelete(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = modeBrowse
	switch msg.String() {
	case "y", "Y":
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, deleteTask(m.svc, t.ID)
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m boardModel) View() string {
	var b strings.Builder

	title := boardTitleStyle.Render(" Task Manager ")
	if m.user != nil {
		title += fmt.Sprintf("  Welcome, %s  (Role: %s)", m.user.Username, m.user.RoleName)
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	search := "Search by title: " + m.query.Query
	if m.mode == modeSearch {
		search += "█"
	}
	b.WriteString(search)
	b.WriteString("\n\n")

	if m.loading {
		b.WriteString("  Loading tasks...\n")
	} else if m.mode == modeForm && m.form != nil {
		b.WriteString(m.form.view())
	} else {
		b.WriteString(m.renderColumns())
	}
	b.WriteString("\n")

	if m.mode == modeConfirmDelete {
		if t, ok := m.selected(); ok {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Are you sure you want to delete %q? (y/n)", t.Title)))
			b.WriteString("\n")
		}
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	if m.lastPush != "" {
		b.WriteString(boardHelpStyle.Render("last push: " + m.lastPush))
		b.WriteString("\n")
	}
	b.WriteString(boardHelpStyle.Render(m.helpLine()))
	return b.String()
}

func (m boardModel) helpLine() string {
	switch m.mode {
	case modeDrag:
		return "←/→: choose column | space/enter: drop | esc: drop outside"
	case modeSearch:
		return "type to filter | ctrl+u: clear | enter/esc: done"
	case modeForm:
		return "tab/shift+tab: field | ←/→: status | enter: save | esc: cancel"
	default:
		return "←/→/↑/↓: move | space: drag | s: sort | /: search | a: add | e: edit | d: delete | r: refresh | q: quit"
	}
}

func (m boardModel) renderColumns() string {
	board := m.board()

	colWidth := 30
	if m.width > 0 {
		if w := (m.width - 2) / len(board.Columns); w > 16 {
			colWidth = w - 4
		}
	}

	rendered := make([]string, 0, len(board.Columns))
	for i, col := range board.Columns {
		var sb strings.Builder
		arrow := "▲"
		if col.Order == models.SortDesc {
			arrow = "▼"
		}
		sb.WriteString(columnHeaderStyle.Render(fmt.Sprintf("%s (%d) %s", col.Status.Label(), len(col.Tasks), arrow)))
		sb.WriteString("\n")

		if m.drag != nil && m.drag.over == i && m.drag.from != i {
			if t, ok := m.svc.Store().Get(m.drag.itemID); ok {
				sb.WriteString(draggedStyle.Render("» " + t.Title))
				sb.WriteString("\n")
			}
		}

		if len(col.Tasks) == 0 {
			sb.WriteString(dueStyle.Render("  no tasks"))
		}
		for r, t := range col.Tasks {
			line := fmt.Sprintf("%s %s", t.Title, dueStyle.Render(t.DueDate.String()))
			switch {
			case m.drag != nil && m.drag.itemID == t.ID:
				line = draggedStyle.Render("◆ " + t.Title)
			case m.pending[t.ID]:
				line = pendingStyle.Render("… " + t.Title)
			case i == m.col && r == m.row && m.mode != modeDrag:
				line = cursorStyle.Render(line)
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}

		style := columnStyle
		switch {
		case m.drag != nil && m.drag.over == i:
			style = dropColumnStyle
		case m.drag == nil && i == m.col:
			style = activeColumnStyle
		}
		rendered = append(rendered, style.Width(colWidth).Render(sb.String()))
	}

	out := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	if board.Unresolved > 0 {
		out += "\n" + errorStyle.Render(fmt.Sprintf("%d task(s) with an unknown status are hidden", board.Unresolved))
	}
	return out
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Interactive task board",
	Long: `Open the interactive three-column task board.

Pick a card up with space, move it with the arrow keys and drop it with space
to change its status. Press / to filter by title, s to flip a column's due date
order, a/e/d to add, edit or delete a task.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if BoardSvc == nil || Session == nil {
			return fmt.Errorf("board service not initialized")
		}
		ctx, cancel := context.WithCancel(cmdContext(cmd))
		defer cancel()

		user, err := Session.Current(ctx)
		if err != nil {
			return fmt.Errorf("opening board: %w (run 'taskboard login' first)", err)
		}

		var ch <-chan models.PushMessage
		if Bus != nil {
			var stop func()
			ch, stop = subscribePush(Bus)
			defer stop()
		}
		if StartPush != nil {
			go func() {
				if err := StartPush(ctx); err != nil && Logger != nil {
					Logger.WithError(err).Warn("push channel stopped")
				}
			}()
		}

		order := models.SortAsc
		if Config != nil {
			order = Config.Board.DefaultOrder
		}
		p := tea.NewProgram(newBoardModel(BoardSvc, user, order, ch), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err = p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// subscribePush forwards every bus message to a buffered channel for the
// board. stop unsubscribes and closes the channel; messages published while
// the board is behind are dropped.
func subscribePush(bus core.EventBus) (<-chan models.PushMessage, func()) {
	var (
		mu     sync.Mutex
		closed bool
	)
	ch := make(chan models.PushMessage, 16)
	sub := bus.Subscribe(core.AnyKind, func(msg models.PushMessage) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- msg:
		default:
		}
	})
	stop := func() {
		sub.Unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
	return ch, stop
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
