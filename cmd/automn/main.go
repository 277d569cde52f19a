package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AutomNexus/Automn-sub001/cmd/automn/commands"
	"github.com/AutomNexus/Automn-sub001/logger"
)

var rootCmd = &cobra.Command{
	Use:   "automn",
	Short: "Automn - script execution across registered runner hosts",
	Long: `Automn routes script execution requests to registered runner hosts.

The host process accepts execution requests over HTTP, selects a healthy
runner, streams live logs back, and records exactly one terminal result
per run.

Available commands:
  serve   - Start the Automn host server
  agent   - Start the runner-side agent (heartbeat + dependency state)
  runners - Manage runner hosts (ls/add/disable/enable/rotate-secret/rm)
  db      - Manage the Automn database
  version - Show version information

Examples:
  automn serve                     # Start the host server
  automn runners add build-box     # Provision a runner host
  automn runners ls                # List runner hosts and health
  automn db migrate                # Apply pending schema migrations`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.AgentCmd)
	rootCmd.AddCommand(commands.RunnersCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
