package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pool-watcher/internal/config"
	"github.com/ogulcanaydogan/pool-watcher/pkg/alerts"
	"github.com/ogulcanaydogan/pool-watcher/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Pool Watcher - failover and error-rate alerts from access logs",
	Long: `Pool Watcher follows a load balancer access log and notifies Slack or a
webhook when traffic fails over to another backend pool, or when the rolling
share of 5xx responses rises above a threshold.`,
	SilenceUsage: true,
}

// Execute runs the CLI with ctx available to every command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.watcher/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStorage opens the alert journal, or returns nil when it is disabled.
func initStorage(cfg *config.Config) (*storage.SQLite, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	return storage.NewSQLite(cfg.Storage.Path)
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// initDispatcher wires notifiers and the journal into a dispatcher. A journal
// that fails to open is an error.
func initDispatcher(cfg *config.Config, logger *slog.Logger) (*alerts.Dispatcher, *storage.SQLite, error) {
	store, err := initStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	return newDispatcher(cfg, store, logger), store, nil
}

// newDispatcher builds a dispatcher over store, which may be nil.
func newDispatcher(cfg *config.Config, store *storage.SQLite, logger *slog.Logger) *alerts.Dispatcher {
	var journal alerts.Recorder
	if store != nil {
		journal = store
	}
	return alerts.NewDispatcher(initNotifiers(cfg), journal, logger)
}

// closeStore closes the journal if one was opened.
func closeStore(store *storage.SQLite) {
	if store != nil {
		store.Close()
	}
}
