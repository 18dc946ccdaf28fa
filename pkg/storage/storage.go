package storage

import (
	"context"

	"github.com/ogulcanaydogan/pool-watcher/pkg/model"
)

// Storage defines the persistence layer for the alert journal.
type Storage interface {
	// RecordAlert persists a single dispatched alert.
	RecordAlert(ctx context.Context, record *model.AlertRecord) error

	// ListAlerts retrieves journal entries matching the filter, newest first.
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.AlertRecord, error)

	// CountAlerts returns the number of entries matching the filter.
	CountAlerts(ctx context.Context, filter model.AlertFilter) (int64, error)

	// Close releases resources.
	Close() error
}
