package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// cmdContext returns the command's context, or Background when the command
// runs outside Execute (as in tests).
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks (list, add, edit, delete, move)",
	Long: `Task management commands.

Every command loads the current board from the server first, so ids and
statuses reflect the latest server state.`,
}

var (
	taskListQuery  string
	taskListStatus string
	taskListOrder  string
	taskListJSON   bool
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks grouped by column",
	Long: `List tasks grouped by status column and sorted by due date.

--query filters by title (case-insensitive substring), --status shows a single
column, --order sets the due date order (asc or desc) for every column.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if BoardSvc == nil {
			return fmt.Errorf("board service not initialized")
		}

		q, err := listQuery()
		if err != nil {
			return err
		}
		var only *models.Status
		if taskListStatus != "" {
			s, err := models.ParseStatus(taskListStatus)
			if err != nil {
				return err
			}
			only = &s
		}

		if err := BoardSvc.Refresh(cmdContext(cmd)); err != nil {
			return err
		}
		board := BoardSvc.Board(q)

		out := cmd.OutOrStdout()
		if taskListJSON {
			return writeBoardJSON(out, board, only)
		}
		if board.Total() == 0 {
			fmt.Fprintln(out, "No tasks found.")
			return nil
		}

		styled := isTerminal(out)
		for _, col := range board.Columns {
			if only != nil && col.Status != *only {
				continue
			}
			fmt.Fprintf(out, "== %s (%d) [%s] ==\n", col.Status.Label(), len(col.Tasks), col.Order)
			if len(col.Tasks) == 0 {
				fmt.Fprintln(out, "  (empty)")
				fmt.Fprintln(out)
				continue
			}
			rows := make([][]string, 0, len(col.Tasks))
			for _, t := range col.Tasks {
				rows = append(rows, []string{t.ID, t.DueDate.String(), t.Title, truncate(t.Description, 48)})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "DUE", "TITLE", "DESCRIPTION"}, rows, nil, styled))
			fmt.Fprintln(out)
		}
		return nil
	},
}

func listQuery() (core.BoardQuery, error) {
	q := core.BoardQuery{Query: taskListQuery, Orders: map[models.Status]models.SortOrder{}}
	order := models.SortOrder(strings.ToLower(taskListOrder))
	if order == "" && Config != nil {
		order = Config.Board.DefaultOrder
	}
	if order == "" {
		order = models.SortAsc
	}
	if !order.Valid() {
		return q, fmt.Errorf("invalid order %q: must be asc or desc", taskListOrder)
	}
	for _, s := range models.Statuses {
		q.Orders[s] = order
	}
	return q, nil
}

type jsonColumn struct {
	Key   string        `json:"key"`
	Order string        `json:"order"`
	Tasks []models.Task `json:"tasks"`
}

func writeBoardJSON(w io.Writer, board core.Board, only *models.Status) error {
	cols := make([]jsonColumn, 0, len(board.Columns))
	for _, c := range board.Columns {
		if only != nil && c.Status != *only {
			continue
		}
		cols = append(cols, jsonColumn{Key: c.Key(), Order: string(c.Order), Tasks: c.Tasks})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cols)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var (
	taskFormTitle       string
	taskFormDescription string
	taskFormDue         string
	taskFormStatus      string
)

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a task",
	Long: `Create a task. --due defaults to today and --status to TODO.

Status accepts a column key (TODO, INPROGRESS, COMPLETED) or its index.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if BoardSvc == nil {
			return fmt.Errorf("board service not initialized")
		}

		form := core.NewTaskForm()
		form.Title = taskFormTitle
		form.Description = taskFormDescription
		if taskFormDue != "" {
			form.DueDate = taskFormDue
		}
		if taskFormStatus != "" {
			s, err := models.ParseStatus(taskFormStatus)
			if err != nil {
				return err
			}
			form.Status = int(s)
		}

		task, err := BoardSvc.Create(cmdContext(cmd), form)
		if err != nil {
			printFieldErrors(cmd.ErrOrStderr(), err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created task %s in %s\n", task.ID, task.Status.Label())
		return nil
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Edit a task",
	Long: `Edit a task. Only the flags given are changed; the full task is sent
to the server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if BoardSvc == nil {
			return fmt.Errorf("board service not initialized")
		}
		ctx := cmdContext(cmd)
		if err := BoardSvc.Refresh(ctx); err != nil {
			return err
		}
		existing, ok := BoardSvc.Store().Get(args[0])
		if !ok {
			return fmt.Errorf("task %s not found", args[0])
		}

		form := core.TaskFormFrom(existing)
		flags := cmd.Flags()
		if flags.Changed("title") {
			form.Title = taskFormTitle
		}
		if flags.Changed("description") {
			form.Description = taskFormDescription
		}
		if flags.Changed("due") {
			form.DueDate = taskFormDue
		}
		if flags.Changed("status") {
			s, err := models.ParseStatus(taskFormStatus)
			if err != nil {
				return err
			}
			form.Status = int(s)
		}

		task, err := BoardSvc.Edit(ctx, existing.ID, form)
		if err != nil {
			printFieldErrors(cmd.ErrOrStderr(), err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated task %s\n", task.ID)
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if BoardSvc == nil {
			return fmt.Errorf("board service not initialized")
		}
		ctx := cmdContext(cmd)
		if err := BoardSvc.Refresh(ctx); err != nil {
			return err
		}
		if _, ok := BoardSvc.Store().Get(args[0]); !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s not found; nothing to delete.\n", args[0])
			return nil
		}
		if err := BoardSvc.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s deleted successfully!\n", args[0])
		return nil
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <column>",
	Short: "Move a task to another column",
	Long: `Move a task to the TODO, INPROGRESS or COMPLETED column, as if it had
been dragged there on the board. Moving a task onto its own column does
nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if BoardSvc == nil {
			return fmt.Errorf("board service not initialized")
		}
		ctx := cmdContext(cmd)
		target := strings.ToUpper(args[1])
		if _, ok := core.ResolveTarget(target); !ok {
			return fmt.Errorf("unknown column %q: must be one of TODO, INPROGRESS, COMPLETED", args[1])
		}
		if err := BoardSvc.Refresh(ctx); err != nil {
			return err
		}

		res, err := BoardSvc.Move(ctx, args[0], target)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch res.Outcome {
		case core.DropIgnored:
			return fmt.Errorf("task %s not found", args[0])
		case core.DropUnchanged:
			fmt.Fprintf(out, "Task %s is already in %s\n", args[0], res.To.Label())
		case core.DropSuperseded:
			fmt.Fprintf(out, "Task %s was changed by a later request; not applied\n", args[0])
		default:
			fmt.Fprintf(out, "Moved task %s: %s -> %s\n", args[0], res.From.Label(), res.Task.Status.Label())
		}
		return nil
	},
}

func addTaskFormFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&taskFormTitle, "title", "t", "", "Task title")
	cmd.Flags().StringVarP(&taskFormDescription, "description", "d", "", "Task description")
	cmd.Flags().StringVar(&taskFormDue, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&taskFormStatus, "status", "s", "", "Status (TODO, INPROGRESS, COMPLETED or 0-2)")
}

func init() {
	taskListCmd.Flags().StringVarP(&taskListQuery, "query", "q", "", "Filter by title (case-insensitive)")
	taskListCmd.Flags().StringVarP(&taskListStatus, "status", "s", "", "Show only one column")
	taskListCmd.Flags().StringVar(&taskListOrder, "order", "", "Due date order: asc or desc (default from config)")
	taskListCmd.Flags().BoolVar(&taskListJSON, "json", false, "Print the board as JSON")

	addTaskFormFlags(taskAddCmd)
	addTaskFormFlags(taskEditCmd)

	taskCmd.AddCommand(taskListCmd, taskAddCmd, taskEditCmd, taskDeleteCmd, taskMoveCmd)
	rootCmd.AddCommand(taskCmd)
}
