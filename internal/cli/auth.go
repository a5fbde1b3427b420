package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"etrade-trader/internal/errors"
)

// addAuthCommands adds broker session commands. Token acquisition happens in
// the external OAuth flow; these commands manage the persisted session.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the broker session",
		Long: `Manage the persisted E*TRADE session.

Complete the OAuth flow in a browser (the consumer key and secret come from
credentials.yaml), then save the resulting access token here. The running bot
picks the session up from disk.`,
	}

	cmd.AddCommand(newAuthSaveCmd(app))
	cmd.AddCommand(newAuthStatusCmd(app))
	cmd.AddCommand(newAuthLogoutCmd(app))
	rootCmd.AddCommand(cmd)
}

func newAuthSaveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "save [token]",
		Short: "Save an access token obtained from the OAuth flow",
		Example: `  trader auth save <access-token>
  trader auth save            # prompts for the token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			var token string
			if len(args) > 0 {
				token = strings.TrimSpace(args[0])
			} else {
				output.Printf("Access token: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				output.Error("No token provided")
				return fmt.Errorf("empty token")
			}

			if err := app.Broker.SaveSession(token); err != nil {
				output.Error("Failed to save session: %v", err)
				return err
			}

			// Sanity call so a bad token is caught now, not mid-trade.
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			accounts, err := app.Broker.GetAccounts(ctx)
			if err != nil {
				output.Warning("Session saved, but the broker rejected a test call: %v", err)
				return nil
			}

			output.Success("Session saved, %d account(s) visible", len(accounts))
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show broker session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if !app.Broker.IsAuthenticated() {
				if output.IsJSON() {
					return output.JSON(map[string]bool{"authenticated": false})
				}
				output.Warning("Not authenticated. Run 'trader auth save' after the OAuth flow.")
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			accounts, err := app.Broker.GetAccounts(ctx)
			if err != nil {
				if errors.Is(err, errors.ErrCredentialExpired) {
					output.Warning("Session expired. Re-run the OAuth flow and 'trader auth save'.")
					return nil
				}
				output.Error("Broker call failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"authenticated": true,
					"accounts":      accounts,
				})
			}
			output.Success("Authenticated, %d account(s)", len(accounts))
			for _, a := range accounts {
				output.Printf("  %s\n", a)
			}
			return nil
		},
	}
}

func newAuthLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the persisted broker session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Broker.ClearSession(); err != nil {
				output.Error("Failed to clear session: %v", err)
				return err
			}
			output.Success("Session cleared")
			return nil
		},
	}
}
