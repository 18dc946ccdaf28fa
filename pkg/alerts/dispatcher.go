package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ogulcanaydogan/pool-watcher/pkg/model"
)

// Recorder persists dispatched alerts.
type Recorder interface {
	RecordAlert(ctx context.Context, record *model.AlertRecord) error
}

// Dispatcher fans an alert out to every notifier. Delivery is best effort:
// failures are logged and never returned to the caller.
type Dispatcher struct {
	notifiers []Notifier
	journal   Recorder
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. journal may be nil.
func NewDispatcher(notifiers []Notifier, journal Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		journal:   journal,
		logger:    logger,
	}
}

// Dispatch sends alert to all notifiers and reports whether every one of
// them accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) bool {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	var failures []string
	if len(d.notifiers) == 0 {
		d.logger.Warn("no notifiers configured, alert not delivered",
			"kind", alert.Kind,
			"message", alert.Message,
		)
		failures = append(failures, "no notifiers configured")
	}

	for _, notifier := range d.notifiers {
		if err := notifier.Send(ctx, alert); err != nil {
			d.logger.Warn("send alert failed",
				"notifier", notifier.Name(),
				"kind", alert.Kind,
				"error", err,
			)
			failures = append(failures, fmt.Sprintf("%s: %v", notifier.Name(), err))
		}
	}

	delivered := len(failures) == 0
	if d.journal != nil {
		record := &model.AlertRecord{
			Kind:      string(alert.Kind),
			Message:   alert.Message,
			Delivered: delivered,
			Error:     strings.Join(failures, "; "),
			CreatedAt: alert.Timestamp,
		}
		if err := d.journal.RecordAlert(ctx, record); err != nil {
			d.logger.Error("record alert failed", "kind", alert.Kind, "error", err)
		}
	}

	return delivered
}

// Notifiers returns the names of the configured notifiers.
func (d *Dispatcher) Notifiers() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}
