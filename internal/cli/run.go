package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pool-watcher/internal/server"
	"github.com/ogulcanaydogan/pool-watcher/pkg/parser"
	"github.com/ogulcanaydogan/pool-watcher/pkg/storage"
	"github.com/ogulcanaydogan/pool-watcher/pkg/tailer"
	"github.com/ogulcanaydogan/pool-watcher/pkg/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow the access log and send alerts",
	Long: `Attach to the end of the access log and watch every new line for pool
changes and a rising 5xx rate. Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("log-path", "", "Access log to follow (default from config)")
	runCmd.Flags().Bool("maintenance", false, "Start in maintenance mode (no detection, no alerts)")
	runCmd.Flags().String("status-listen", "", "Status API listen address (default from config)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("log-path"); path != "" {
		cfg.Source.Path = path
	}
	if cmd.Flags().Changed("maintenance") {
		cfg.MaintenanceMode, _ = cmd.Flags().GetBool("maintenance")
	}
	if listen, _ := cmd.Flags().GetString("status-listen"); listen != "" {
		cfg.Status.Listen = listen
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg)

	p, err := parser.New(cfg.Source.Pattern)
	if err != nil {
		return err
	}
	poll, err := cfg.PollInterval()
	if err != nil {
		return err
	}

	// Journal problems never stop the pipeline.
	var store *storage.SQLite
	if !cfg.MaintenanceMode {
		store, err = initStorage(cfg)
		if err != nil {
			logger.Warn("alert journal unavailable; alerts will not be recorded",
				"path", cfg.Storage.Path, "error", err)
			store = nil
		}
	}
	defer closeStore(store)
	dispatcher := newDispatcher(cfg, store, logger)

	if len(dispatcher.Notifiers()) == 0 && !cfg.MaintenanceMode {
		logger.Warn("no notifiers configured; alerts will only be logged")
	}

	open := func() (watcher.LineReader, error) {
		return tailer.Open(cfg.Source.Path, poll, logger)
	}
	sup, err := watcher.NewSupervisor(watcher.Settings{
		Source:      cfg.Source.Path,
		Maintenance: cfg.MaintenanceMode,
		WindowSize:  cfg.Detection.WindowSize,
		Threshold:   cfg.Detection.ErrorRateThreshold,
		Cooldown:    cfg.Cooldown(),
		Parser:      p,
	}, open, dispatcher, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Status.Listen != "" {
		var lister server.AlertLister
		if store != nil {
			lister = store
		}
		api := server.NewServer(sup, lister, logger)
		srv := &http.Server{
			Addr:              cfg.Status.Listen,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("status API started", "listen", cfg.Status.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status API failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("status API shutdown", "error", err)
			}
		}()
	}

	if cfg.MaintenanceMode {
		fmt.Fprintln(cmd.ErrOrStderr(), "Maintenance mode active. Alerts suppressed.")
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "Pool Watcher following %s\n", cfg.Source.Path)
	}

	return sup.Run(ctx)
}
