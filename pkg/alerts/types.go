package alerts

import (
	"context"
	"time"
)

// Kind identifies what condition raised an alert.
type Kind string

const (
	KindFailover  Kind = "failover"   // Active pool changed
	KindErrorRate Kind = "error_rate" // Rolling 5xx rate above threshold
	KindTest      Kind = "test"       // Operator-triggered test message
)

// Alert represents a watcher notification.
type Alert struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	FromPool  string    `json:"from_pool,omitempty"`
	ToPool    string    `json:"to_pool,omitempty"`
	Rate      float64   `json:"rate,omitempty"`
	Samples   int       `json:"samples,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier sends alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert Alert) error
}
