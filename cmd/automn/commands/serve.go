package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AutomNexus/Automn-sub001/config"
	"github.com/AutomNexus/Automn-sub001/db"
	"github.com/AutomNexus/Automn-sub001/errors"
	"github.com/AutomNexus/Automn-sub001/internal/version"
	"github.com/AutomNexus/Automn-sub001/logger"
	"github.com/AutomNexus/Automn-sub001/run/tracker"
	"github.com/AutomNexus/Automn-sub001/runner/dispatch"
	"github.com/AutomNexus/Automn-sub001/runner/protocol"
	"github.com/AutomNexus/Automn-sub001/runner/registry"
	"github.com/AutomNexus/Automn-sub001/script"
	"github.com/AutomNexus/Automn-sub001/server"
)

// ServeCmd starts the Automn host server.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Automn host server",
	Long: `Start the Automn host: the HTTP API for runner administration,
script execution and run inspection, plus the WebSocket feed of live run
activity.

Examples:
  automn serve                       # Use ./automn.toml or defaults
  automn serve --config /etc/automn.toml`,
	RunE: runServe,
}

var serveConfigFlag string

func init() {
	ServeCmd.Flags().StringVar(&serveConfigFlag, "config", "", "Path to config file (enables hot reload)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Logger

	cfg, err := loadConfig(serveConfigFlag)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	reg := registry.New(registry.NewStore(database), cfg.Runner, version.Version, log.Named("registry"))
	scripts := script.NewStore(database)
	trk := tracker.New(tracker.NewStore(database), scripts, log.Named("tracker"))
	client := protocol.NewClient(log.Named("protocol"))
	disp := dispatch.New(reg, scripts, trk, client, cfg.Dispatch, log.Named("dispatch"))
	reg.SetOnDisable(disp.AbortHost)

	srv := server.New(database, cfg.Server, reg, disp, trk, scripts, log.Named("server"))

	var watcher *config.ConfigWatcher
	if serveConfigFlag != "" {
		watcher, err = config.NewConfigWatcher(serveConfigFlag)
		if err != nil {
			log.Warnw("Config hot reload unavailable", "error", err)
		} else {
			watcher.OnReload(func(next *config.Config) error {
				reg.ApplyConfig(next.Runner)
				disp.ApplyConfig(next.Dispatch)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Infow("Shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown did not complete cleanly")
	}
	logger.Sync()
	return nil
}

// loadConfig resolves configuration from an explicit path or the default
// search chain.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
