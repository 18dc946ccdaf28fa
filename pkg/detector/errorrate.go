package detector

import (
	"fmt"
	"time"

	"github.com/ogulcanaydogan/pool-watcher/pkg/window"
)

// Breach is an error-rate crossing that passed the cooldown gate.
type Breach struct {
	Rate    float64   `json:"rate"`
	Samples int       `json:"samples"`
	At      time.Time `json:"at"`
}

// Message renders the notification text for the breach.
func (b Breach) Message() string {
	return fmt.Sprintf(":rotating_light: High error rate detected! (%.2f%% over last %d requests)", b.Rate, b.Samples)
}

// ErrorRate gates error-rate alerts by a threshold and a cooldown.
type ErrorRate struct {
	threshold float64
	cooldown  time.Duration
	lastAlert time.Time
	now       func() time.Time
}

// Option configures an ErrorRate monitor.
type Option func(*ErrorRate)

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *ErrorRate) { e.now = now }
}

// NewErrorRate creates a monitor that fires when the rate is strictly above
// thresholdPct and more than cooldown has passed since the last alert.
func NewErrorRate(thresholdPct float64, cooldown time.Duration, opts ...Option) *ErrorRate {
	e := &ErrorRate{
		threshold: thresholdPct,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks the window and returns a breach when an alert is due.
// The cooldown restarts at the returned breach time whether or not the
// alert is later delivered.
func (e *ErrorRate) Evaluate(w *window.Window) (Breach, bool) {
	if w.Len() == 0 {
		return Breach{}, false
	}

	rate := w.ErrorRate()
	if rate <= e.threshold {
		return Breach{}, false
	}

	now := e.now()
	if !e.lastAlert.IsZero() && now.Sub(e.lastAlert) <= e.cooldown {
		return Breach{}, false
	}

	e.lastAlert = now
	return Breach{Rate: rate, Samples: w.Len(), At: now}, true
}

// LastAlert returns when the last breach was reported, or the zero time.
func (e *ErrorRate) LastAlert() time.Time {
	return e.lastAlert
}

// Threshold returns the configured threshold percentage.
func (e *ErrorRate) Threshold() float64 {
	return e.threshold
}
