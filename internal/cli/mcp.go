package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	boardmcp "github.com/valter-silva-au/taskboard/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the taskboard MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskboard MCP server on stdio",
	Long: `Start the taskboard MCP server on stdio transport.

The server exposes the board as MCP tools: list_tasks, get_task, move_task,
create_task, delete_task, get_events. Tools act as the logged-in user.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if BoardSvc == nil {
			return fmt.Errorf("board service not initialized")
		}

		srv := boardmcp.NewServer(BoardSvc, EventLog, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
