package model

import "time"

// AlertRecord is a journal entry for one dispatched alert.
type AlertRecord struct {
	ID        string    `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"`
	Message   string    `json:"message" db:"message"`
	Delivered bool      `json:"delivered" db:"delivered"`
	Error     string    `json:"error,omitempty" db:"error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AlertFilter controls which journal entries are returned.
type AlertFilter struct {
	Kind  string    `json:"kind,omitempty"`
	Since time.Time `json:"since,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// Status is a point-in-time view of the watcher pipeline.
type Status struct {
	Running         bool      `json:"running"`
	Maintenance     bool      `json:"maintenance"`
	Source          string    `json:"source"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	LinesRead       int64     `json:"lines_read"`
	LinesMatched    int64     `json:"lines_matched"`
	LinesSkipped    int64     `json:"lines_skipped"`
	ActivePool      string    `json:"active_pool,omitempty"`
	ErrorRate       float64   `json:"error_rate"`
	WindowLen       int       `json:"window_len"`
	WindowCap       int       `json:"window_cap"`
	Threshold       float64   `json:"threshold"`
	LastRateAlert   time.Time `json:"last_rate_alert,omitzero"`
	FailoverAlerts  int64     `json:"failover_alerts"`
	ErrorRateAlerts int64     `json:"error_rate_alerts"`
}
