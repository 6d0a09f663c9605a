package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in to the task board with a username and password.

The password can also be supplied through the TASKBOARD_PASSWORD environment
variable. The returned user is stored as the session for later commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Session == nil {
			return fmt.Errorf("session manager not initialized")
		}
		password := loginPassword
		if password == "" {
			password = os.Getenv("TASKBOARD_PASSWORD")
		}

		user, err := Session.Login(cmdContext(cmd), models.Credentials{Username: loginUsername, Password: password})
		if err != nil {
			printFieldErrors(cmd.ErrOrStderr(), err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Username, user.RoleName)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Session == nil {
			return fmt.Errorf("session manager not initialized")
		}
		if err := Session.Logout(cmdContext(cmd)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user and role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Session == nil {
			return fmt.Errorf("session manager not initialized")
		}
		user, err := Session.Current(cmdContext(cmd))
		if err != nil {
			if errors.Is(err, core.ErrNotAuthenticated) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s\nRole: %s\nID:   %s\n", user.Username, user.RoleName, user.ID)
		return nil
	},
}

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage the user's role",
}

var roleChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Switch the logged-in user's role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Session == nil {
			return fmt.Errorf("session manager not initialized")
		}
		user, err := Session.ChangeRole(cmdContext(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Role changed to %s\n", user.RoleName)
		return nil
	},
}

// printFieldErrors writes one line per invalid field when err is a
// validation error.
func printFieldErrors(w io.Writer, err error) {
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		return
	}
	names := make([]string, 0, len(verr.Fields))
	for name := range verr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, verr.Fields[name])
	}
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (or TASKBOARD_PASSWORD)")
	_ = loginCmd.MarkFlagRequired("username")

	roleCmd.AddCommand(roleChangeCmd)
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, roleCmd)
}
