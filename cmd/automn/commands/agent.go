package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AutomNexus/Automn-sub001/agent"
	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/logger"
)

// AgentCmd starts the runner-side agent.
var AgentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start the runner-side agent",
	Long: `Start the runner agent: registers this runner with the Automn
host, heartbeats with fresh capability data, and rehydrates script
dependency state after restarts.

Examples:
  automn agent --host http://automn:8710 --id <host-id> --secret <secret> \
      --endpoint http://this-runner:9400/execute`,
	RunE: runAgent,
}

var (
	agentHostFlag        string
	agentIDFlag          string
	agentSecretFlag      string
	agentEndpointFlag    string
	agentConcurrencyFlag int
	agentTimeoutMsFlag   int64
	agentIntervalFlag    time.Duration
	agentWorkdirFlag     string
	agentMinHostVerFlag  string
)

func init() {
	AgentCmd.Flags().StringVar(&agentHostFlag, "host", "", "Automn host base URL")
	AgentCmd.Flags().StringVar(&agentIDFlag, "id", "", "Runner host id issued at provisioning")
	AgentCmd.Flags().StringVar(&agentSecretFlag, "secret", "", "Runner secret (or set AUTOMN_RUNNER_SECRET)")
	AgentCmd.Flags().StringVar(&agentEndpointFlag, "endpoint", "", "This runner's dispatch endpoint URL")
	AgentCmd.Flags().IntVar(&agentConcurrencyFlag, "max-concurrency", 1, "Concurrent jobs this runner accepts")
	AgentCmd.Flags().Int64Var(&agentTimeoutMsFlag, "timeout-ms", 0, "Per-job timeout advertised to the host")
	AgentCmd.Flags().DurationVar(&agentIntervalFlag, "interval", 30*time.Second, "Heartbeat interval")
	AgentCmd.Flags().StringVar(&agentWorkdirFlag, "workdir-root", "", "Root of script working directories")
	AgentCmd.Flags().StringVar(&agentMinHostVerFlag, "minimum-host-version", "", "Lowest compatible Automn host version")
}

func runAgent(cmd *cobra.Command, args []string) error {
	secret := agentSecretFlag
	if secret == "" {
		secret = os.Getenv("AUTOMN_RUNNER_SECRET")
	}

	a, err := agent.New(agent.Options{
		HostURL:            agentHostFlag,
		HostID:             agentIDFlag,
		Secret:             secret,
		Endpoint:           agentEndpointFlag,
		MaxConcurrency:     agentConcurrencyFlag,
		TimeoutMs:          agentTimeoutMsFlag,
		MinimumHostVersion: agentMinHostVerFlag,
		HeartbeatInterval:  agentIntervalFlag,
		WorkdirRoot:        agentWorkdirFlag,
	}, logger.Named("agent"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
