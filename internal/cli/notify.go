package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pool-watcher/pkg/alerts"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send a test alert through the configured notifiers",
	RunE:  runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.Flags().StringP("message", "m", ":white_check_mark: Pool Watcher test alert", "Message text")
}

func runNotify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	message, _ := cmd.Flags().GetString("message")
	logger := newLogger(cfg)

	dispatcher, store, err := initDispatcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("init alert journal: %w", err)
	}
	defer closeStore(store)

	names := dispatcher.Notifiers()
	if len(names) == 0 {
		return errors.New("no notifiers configured: set alerts.slack.webhook_url or alerts.webhook.url")
	}

	if !dispatcher.Dispatch(cmd.Context(), alerts.Alert{Kind: alerts.KindTest, Message: message}) {
		return errors.New("test alert was not delivered to every notifier; see log for details")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Test alert delivered to: %s\n", strings.Join(names, ", "))
	return nil
}
