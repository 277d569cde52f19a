package commands

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/AutomNexus/Automn-sub001/db"
	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/internal/version"
	"github.com/AutomNexus/Automn-sub001/logger"
	"github.com/AutomNexus/Automn-sub001/runner/registry"
)

// RunnersCmd manages runner hosts.
var RunnersCmd = &cobra.Command{
	Use:   "runners",
	Short: "Manage runner hosts",
	Long: `Manage runner hosts: provision, inspect, gate and remove.

Examples:
  automn runners ls
  automn runners add build-box --endpoint http://build-box:9400/execute
  automn runners disable 4f1c... --reason "kernel upgrade"
  automn runners rotate-secret 4f1c...`,
}

var runnersLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List runner hosts and their health",
	RunE:  runRunnersLs,
}

var runnersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Provision a new runner host",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunnersAdd,
}

var runnersDisableCmd = &cobra.Command{
	Use:   "disable <host-id>",
	Short: "Take a runner host out of rotation",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runRunnersGate(args[0], true) },
}

var runnersEnableCmd = &cobra.Command{
	Use:   "enable <host-id>",
	Short: "Clear a runner host's disabled gate",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return runRunnersGate(args[0], false) },
}

var runnersRotateSecretCmd = &cobra.Command{
	Use:   "rotate-secret <host-id>",
	Short: "Replace a runner host's secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunnersRotateSecret,
}

var runnersRmCmd = &cobra.Command{
	Use:   "rm <host-id>",
	Short: "Delete a runner host record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunnersRm,
}

var (
	runnersEndpointFlag string
	runnersAdminFlag    bool
	runnersReasonFlag   string
)

func init() {
	RunnersCmd.AddCommand(runnersLsCmd)
	RunnersCmd.AddCommand(runnersAddCmd)
	RunnersCmd.AddCommand(runnersDisableCmd)
	RunnersCmd.AddCommand(runnersEnableCmd)
	RunnersCmd.AddCommand(runnersRotateSecretCmd)
	RunnersCmd.AddCommand(runnersRmCmd)

	runnersAddCmd.Flags().StringVar(&runnersEndpointFlag, "endpoint", "", "Runner's dispatch endpoint URL")
	runnersAddCmd.Flags().BoolVar(&runnersAdminFlag, "admin-only", false, "Restrict this runner to admin-triggered scripts")
	runnersDisableCmd.Flags().StringVar(&runnersReasonFlag, "reason", "", "Operator-visible reason")
	runnersEnableCmd.Flags().StringVar(&runnersReasonFlag, "reason", "", "Operator-visible reason")
}

// openRegistry opens the database and builds a registry for local admin
// operations.
func openRegistry() (*registry.Registry, *sql.DB, error) {
	cfg, err := loadConfig("")
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Open(cfg.Database.Path, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, nil, errors.Wrap(err, "failed to migrate database")
	}
	reg := registry.New(registry.NewStore(database), cfg.Runner, version.Version, logger.Named("registry"))
	return reg, database, nil
}

func runRunnersLs(cmd *cobra.Command, args []string) error {
	reg, database, err := openRegistry()
	if err != nil {
		return err
	}
	defer database.Close()

	hosts, err := reg.List()
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		pterm.Info.Println("No runner hosts provisioned")
		return nil
	}

	rows := pterm.TableData{{"ID", "NAME", "STATUS", "HEALTHY", "LAST SEEN", "CONCURRENCY", "VERSION"}}
	for _, h := range hosts {
		lastSeen := "never"
		if h.LastSeenAt != nil {
			lastSeen = humanizeSince(time.Since(*h.LastSeenAt))
		}
		healthy := "no"
		if reg.IsHealthy(h) {
			healthy = "yes"
		}
		rows = append(rows, []string{
			h.ID[:8],
			h.Name,
			string(h.Status),
			healthy,
			lastSeen,
			fmt.Sprintf("%d", h.MaxConcurrency),
			h.RunnerVersion,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runRunnersAdd(cmd *cobra.Command, args []string) error {
	reg, database, err := openRegistry()
	if err != nil {
		return err
	}
	defer database.Close()

	host, secret, err := reg.Provision(args[0], runnersEndpointFlag, runnersAdminFlag)
	if err != nil {
		return err
	}

	pterm.Success.Printfln("Provisioned runner host %s", host.Name)
	pterm.Println()
	pterm.Printfln("  ID:     %s", host.ID)
	pterm.Printfln("  Secret: %s", secret)
	pterm.Println()
	pterm.Warning.Println("The secret is shown once; only its hash is stored.")
	return nil
}

func runRunnersGate(hostID string, disable bool) error {
	reg, database, err := openRegistry()
	if err != nil {
		return err
	}
	defer database.Close()

	if disable {
		err = reg.Disable(hostID, runnersReasonFlag)
	} else {
		err = reg.Enable(hostID, runnersReasonFlag)
	}
	if err != nil {
		return err
	}

	if disable {
		pterm.Success.Printfln("Runner host %s disabled", hostID)
	} else {
		pterm.Success.Printfln("Runner host %s enabled; it returns to rotation after its next heartbeat", hostID)
	}
	return nil
}

func runRunnersRotateSecret(cmd *cobra.Command, args []string) error {
	reg, database, err := openRegistry()
	if err != nil {
		return err
	}
	defer database.Close()

	secret, err := reg.RotateSecret(args[0])
	if err != nil {
		return err
	}
	pterm.Success.Println("Secret rotated")
	pterm.Printfln("  Secret: %s", secret)
	pterm.Warning.Println("Update the runner's agent configuration; the old secret no longer authenticates.")
	return nil
}

func runRunnersRm(cmd *cobra.Command, args []string) error {
	reg, database, err := openRegistry()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := reg.Delete(args[0]); err != nil {
		return err
	}
	pterm.Success.Printfln("Runner host %s deleted", args[0])
	return nil
}

// humanizeSince renders a duration as a short "Xm ago" string.
func humanizeSince(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
