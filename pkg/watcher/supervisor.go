// Package watcher wires log consumption, failover detection and error-rate
// monitoring into a single sequential pipeline.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ogulcanaydogan/pool-watcher/pkg/alerts"
	"github.com/ogulcanaydogan/pool-watcher/pkg/detector"
	"github.com/ogulcanaydogan/pool-watcher/pkg/model"
	"github.com/ogulcanaydogan/pool-watcher/pkg/parser"
	"github.com/ogulcanaydogan/pool-watcher/pkg/window"
)

// LineReader yields log lines one at a time, blocking while none are
// available.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// Opener attaches to the log source.
type Opener func() (LineReader, error)

// Dispatcher delivers alerts. It must not fail the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert alerts.Alert) bool
}

// Settings holds the detection parameters of a Supervisor.
type Settings struct {
	Source      string
	Maintenance bool
	WindowSize  int
	Threshold   float64
	Cooldown    time.Duration
	Parser      *parser.Parser
	Clock       func() time.Time
}

// Supervisor owns all detection state. Run and HandleLine must be called
// from one goroutine; Status may be called from any.
type Supervisor struct {
	settings   Settings
	open       Opener
	dispatcher Dispatcher
	logger     *slog.Logger

	parser    *parser.Parser
	window    *window.Window
	failover  *detector.Failover
	errorRate *detector.ErrorRate

	linesRead       int64
	linesMatched    int64
	failoverAlerts  int64
	errorRateAlerts int64
	startedAt       time.Time
	running         bool

	mu     sync.RWMutex
	status model.Status
}

// NewSupervisor creates a supervisor. open is not called until Run.
func NewSupervisor(settings Settings, open Opener, dispatcher Dispatcher, logger *slog.Logger) (*Supervisor, error) {
	w, err := window.New(settings.WindowSize)
	if err != nil {
		return nil, err
	}
	if settings.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown must not be negative, got %s", settings.Cooldown)
	}
	if settings.Clock == nil {
		settings.Clock = time.Now
	}
	p := settings.Parser
	if p == nil {
		p = parser.MustNew(parser.DefaultPattern)
	}

	s := &Supervisor{
		settings:   settings,
		open:       open,
		dispatcher: dispatcher,
		logger:     logger,
		parser:     p,
		window:     w,
		failover:   detector.NewFailover(),
		errorRate:  detector.NewErrorRate(settings.Threshold, settings.Cooldown, detector.WithClock(settings.Clock)),
	}
	s.publish()
	return s, nil
}

// Run consumes the log source until ctx is cancelled. In maintenance mode it
// returns immediately without touching the source.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.settings.Maintenance {
		s.logger.Info("Maintenance mode active. Alerts suppressed.")
		s.publish()
		return nil
	}

	s.logger.Info("starting log watcher",
		"path", s.settings.Source,
		"window", s.window.Cap(),
		"threshold", s.settings.Threshold,
		"cooldown", s.settings.Cooldown.String(),
	)

	src, err := s.open()
	if err != nil {
		return fmt.Errorf("open log source: %w", err)
	}
	defer src.Close()

	s.startedAt = s.settings.Clock()
	s.running = true
	s.publish()
	defer func() {
		s.running = false
		s.publish()
	}()

	s.logger.Info("watching log file", "path", s.settings.Source)

	for {
		line, err := src.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				s.logger.Info("log watcher stopped", "lines_read", s.linesRead)
				return nil
			}
			return fmt.Errorf("read log source: %w", err)
		}
		s.HandleLine(ctx, line)
	}
}

// HandleLine runs one raw log line through both detectors. Lines without a
// pool and status are skipped without touching detection state.
func (s *Supervisor) HandleLine(ctx context.Context, line string) {
	s.linesRead++
	defer s.publish()

	obs, ok := s.parser.Parse(line)
	if !ok {
		return
	}
	s.linesMatched++

	if tr, fired := s.failover.Observe(obs.Pool); fired {
		s.failoverAlerts++
		s.logger.Warn("failover detected", "from", tr.From, "to", tr.To)
		s.dispatcher.Dispatch(ctx, alerts.Alert{
			Kind:      alerts.KindFailover,
			Message:   tr.Message(),
			FromPool:  tr.From,
			ToPool:    tr.To,
			Timestamp: s.settings.Clock().UTC(),
		})
	}

	s.window.Push(obs.Status)
	if b, fired := s.errorRate.Evaluate(s.window); fired {
		s.errorRateAlerts++
		s.logger.Warn("error rate threshold crossed",
			"rate", b.Rate,
			"samples", b.Samples,
			"threshold", s.settings.Threshold,
		)
		s.dispatcher.Dispatch(ctx, alerts.Alert{
			Kind:      alerts.KindErrorRate,
			Message:   b.Message(),
			Rate:      b.Rate,
			Samples:   b.Samples,
			Timestamp: b.At.UTC(),
		})
	}
}

// Status returns a snapshot of the pipeline state.
func (s *Supervisor) Status() model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Supervisor) publish() {
	st := model.Status{
		Running:         s.running,
		Maintenance:     s.settings.Maintenance,
		Source:          s.settings.Source,
		StartedAt:       s.startedAt,
		LinesRead:       s.linesRead,
		LinesMatched:    s.linesMatched,
		LinesSkipped:    s.linesRead - s.linesMatched,
		ActivePool:      s.failover.Last(),
		ErrorRate:       s.window.ErrorRate(),
		WindowLen:       s.window.Len(),
		WindowCap:       s.window.Cap(),
		Threshold:       s.settings.Threshold,
		LastRateAlert:   s.errorRate.LastAlert(),
		FailoverAlerts:  s.failoverAlerts,
		ErrorRateAlerts: s.errorRateAlerts,
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
