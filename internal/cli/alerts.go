package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/pool-watcher/pkg/model"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show alerts recorded in the journal",
	RunE:  runAlerts,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.Flags().StringP("kind", "k", "", "Filter by kind (failover, error_rate, test)")
	alertsCmd.Flags().Duration("since", 0, "Only show alerts newer than this (e.g. 24h)")
	alertsCmd.Flags().IntP("limit", "n", 20, "Maximum number of alerts to show")
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	kind, _ := cmd.Flags().GetString("kind")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage(cfg)
	if err != nil {
		return fmt.Errorf("open alert journal: %w", err)
	}
	if store == nil {
		return errors.New("alert journal is disabled (storage.enabled=false)")
	}
	defer store.Close()

	filter := model.AlertFilter{Kind: kind, Limit: limit}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	records, err := store.ListAlerts(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list alerts: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No alerts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tKIND\tDELIVERED\tMESSAGE\n")
	for _, r := range records {
		delivered := "yes"
		if !r.Delivered {
			delivered = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Kind, delivered, r.Message,
		)
	}
	w.Flush()

	return nil
}
