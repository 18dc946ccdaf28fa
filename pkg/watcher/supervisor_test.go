package watcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/pool-watcher/pkg/alerts"
	"github.com/ogulcanaydogan/pool-watcher/pkg/tailer"
	"github.com/ogulcanaydogan/pool-watcher/pkg/watcher"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []alerts.Alert
}

func (d *recordingDispatcher) Dispatch(_ context.Context, a alerts.Alert) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, a)
	return true
}

func (d *recordingDispatcher) Sent() []alerts.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]alerts.Alert(nil), d.sent...)
}

// sliceReader returns queued lines, then err (or blocks until ctx is done).
type sliceReader struct {
	lines  []string
	err    error
	closed bool
}

func (r *sliceReader) ReadLine(ctx context.Context) (string, error) {
	if len(r.lines) > 0 {
		line := r.lines[0]
		r.lines = r.lines[1:]
		return line, nil
	}
	if r.err != nil {
		return "", r.err
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func defaultSettings(clock *fakeClock) watcher.Settings {
	return watcher.Settings{
		Source:     "/var/log/nginx/access.log",
		WindowSize: 200,
		Threshold:  2.0,
		Cooldown:   300 * time.Second,
		Clock:      clock.Now,
	}
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
}

func newSupervisor(t *testing.T, settings watcher.Settings, open watcher.Opener, d watcher.Dispatcher) *watcher.Supervisor {
	t.Helper()
	s, err := watcher.NewSupervisor(settings, open, d, testLogger())
	require.NoError(t, err)
	return s
}

func noOpen() (watcher.LineReader, error) {
	return nil, errors.New("source must not be opened")
}

func TestNewSupervisor_InvalidSettings(t *testing.T) {
	clock := newClock()

	bad := defaultSettings(clock)
	bad.WindowSize = 0
	_, err := watcher.NewSupervisor(bad, noOpen, &recordingDispatcher{}, testLogger())
	assert.Error(t, err)

	bad = defaultSettings(clock)
	bad.Cooldown = -time.Second
	_, err = watcher.NewSupervisor(bad, noOpen, &recordingDispatcher{}, testLogger())
	assert.Error(t, err)
}

func TestSupervisor_FailoverAndErrorRate(t *testing.T) {
	clock := newClock()
	d := &recordingDispatcher{}
	s := newSupervisor(t, defaultSettings(clock), noOpen, d)
	ctx := context.Background()

	s.HandleLine(ctx, "pool=blue status=200")
	s.HandleLine(ctx, "pool=blue status=200")
	assert.Empty(t, d.Sent())

	s.HandleLine(ctx, "pool=green status=502")
	sent := d.Sent()
	require.Len(t, sent, 2)

	assert.Equal(t, alerts.KindFailover, sent[0].Kind, "failover is evaluated before the error rate")
	assert.Equal(t, "blue", sent[0].FromPool)
	assert.Equal(t, "green", sent[0].ToPool)
	assert.Contains(t, sent[0].Message, "blue → green")

	assert.Equal(t, alerts.KindErrorRate, sent[1].Kind)
	assert.InDelta(t, 33.33, sent[1].Rate, 0.01)
	assert.Equal(t, 3, sent[1].Samples)
	assert.Equal(t, ":rotating_light: High error rate detected! (33.33% over last 3 requests)", sent[1].Message)
}

func TestSupervisor_ErrorRateCooldown(t *testing.T) {
	clock := newClock()
	d := &recordingDispatcher{}
	s := newSupervisor(t, defaultSettings(clock), noOpen, d)
	ctx := context.Background()

	for _, line := range []string{"pool=blue status=200", "pool=blue status=500"} {
		s.HandleLine(ctx, line)
	}
	require.Len(t, d.Sent(), 1)

	clock.Advance(10 * time.Second)
	s.HandleLine(ctx, "pool=blue status=500")
	assert.Len(t, d.Sent(), 1, "suppressed by cooldown")

	clock.Advance(300 * time.Second)
	s.HandleLine(ctx, "pool=blue status=500")
	require.Len(t, d.Sent(), 2)
	assert.Equal(t, alerts.KindErrorRate, d.Sent()[1].Kind)
}

func TestSupervisor_UnmatchedLineChangesNothing(t *testing.T) {
	clock := newClock()
	d := &recordingDispatcher{}
	s := newSupervisor(t, defaultSettings(clock), noOpen, d)
	ctx := context.Background()

	s.HandleLine(ctx, "pool=blue status=500")
	require.Len(t, d.Sent(), 1)
	before := s.Status()

	s.HandleLine(ctx, `10.0.0.1 - - "GET /healthz HTTP/1.1" 200`)
	after := s.Status()

	assert.Len(t, d.Sent(), 1)
	assert.Equal(t, before.ActivePool, after.ActivePool)
	assert.Equal(t, before.WindowLen, after.WindowLen)
	assert.Equal(t, before.ErrorRate, after.ErrorRate)
	assert.Equal(t, before.LastRateAlert, after.LastRateAlert)
	assert.Equal(t, before.LinesMatched, after.LinesMatched)
	assert.Equal(t, int64(1), after.LinesSkipped)
}

func TestSupervisor_Status(t *testing.T) {
	clock := newClock()
	settings := defaultSettings(clock)
	settings.WindowSize = 2
	d := &recordingDispatcher{}
	s := newSupervisor(t, settings, noOpen, d)
	ctx := context.Background()

	for _, line := range []string{
		"pool=blue status=500",
		"pool=green status=200",
		"pool=green status=200",
		"noise",
	} {
		s.HandleLine(ctx, line)
	}

	st := s.Status()
	assert.Equal(t, int64(4), st.LinesRead)
	assert.Equal(t, int64(3), st.LinesMatched)
	assert.Equal(t, int64(1), st.LinesSkipped)
	assert.Equal(t, "green", st.ActivePool)
	assert.Equal(t, 2, st.WindowLen)
	assert.Equal(t, 2, st.WindowCap)
	assert.Equal(t, 0.0, st.ErrorRate)
	assert.Equal(t, int64(1), st.FailoverAlerts)
	assert.Equal(t, int64(1), st.ErrorRateAlerts)
	assert.Equal(t, clock.Now(), st.LastRateAlert)
	assert.False(t, st.Running)
}

func TestSupervisor_MaintenanceMode(t *testing.T) {
	clock := newClock()
	settings := defaultSettings(clock)
	settings.Maintenance = true

	opened := false
	open := func() (watcher.LineReader, error) {
		opened = true
		return &sliceReader{lines: []string{"pool=blue status=500", "pool=green status=500"}}, nil
	}
	d := &recordingDispatcher{}
	s := newSupervisor(t, settings, open, d)

	err := s.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, opened)
	assert.Empty(t, d.Sent())
	assert.True(t, s.Status().Maintenance)
	assert.Equal(t, int64(0), s.Status().LinesRead)
}

func TestSupervisor_OpenFailureIsFatal(t *testing.T) {
	clock := newClock()
	open := func() (watcher.LineReader, error) {
		return nil, errors.New("no such file")
	}
	s := newSupervisor(t, defaultSettings(clock), open, &recordingDispatcher{})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log source")
}

func TestSupervisor_ReadErrorIsFatal(t *testing.T) {
	clock := newClock()
	reader := &sliceReader{lines: []string{"pool=blue status=200"}, err: errors.New("input/output error")}
	open := func() (watcher.LineReader, error) { return reader, nil }
	s := newSupervisor(t, defaultSettings(clock), open, &recordingDispatcher{})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read log source")
	assert.True(t, reader.closed)
	assert.Equal(t, int64(1), s.Status().LinesRead)
}

func TestSupervisor_RunStopsOnCancel(t *testing.T) {
	clock := newClock()
	reader := &sliceReader{lines: []string{"pool=blue status=200", "pool=green status=200"}}
	open := func() (watcher.LineReader, error) { return reader, nil }
	d := &recordingDispatcher{}
	s := newSupervisor(t, defaultSettings(clock), open, d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().LinesRead == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Status().Running)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, reader.closed)
	assert.False(t, s.Status().Running)
	assert.Len(t, d.Sent(), 1)
}

func TestSupervisor_EndToEnd(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		texts = append(texts, body["text"])
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer slack.Close()

	path := filepath.Join(t.TempDir(), "access.log")
	// History must never be replayed.
	require.NoError(t, os.WriteFile(path, []byte("pool=blue status=500\npool=green status=500\n"), 0o644))

	clock := newClock()
	settings := defaultSettings(clock)
	settings.Source = path
	logger := testLogger()
	open := func() (watcher.LineReader, error) {
		return tailer.Open(path, 5*time.Millisecond, logger)
	}
	dispatcher := alerts.NewDispatcher([]alerts.Notifier{alerts.NewSlackNotifier(slack.URL, "")}, nil, logger)
	s, err := watcher.NewSupervisor(settings, open, dispatcher, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.Status().Running }, 2*time.Second, 5*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("pool=blue status=200\npool=blue status=200\npool=green status=503\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return s.Status().LinesRead == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, texts, 2)
	assert.Equal(t, ":arrows_counterclockwise: Failover detected! blue → green", texts[0])
	assert.Equal(t, ":rotating_light: High error rate detected! (33.33% over last 3 requests)", texts[1])
}

func TestSupervisor_NotifierFailureDoesNotStopPipeline(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	clock := newClock()
	reader := &sliceReader{lines: []string{
		"pool=blue status=500",
		"pool=green status=500",
		"pool=blue status=200",
	}}
	open := func() (watcher.LineReader, error) { return reader, nil }
	logger := testLogger()
	dispatcher := alerts.NewDispatcher([]alerts.Notifier{alerts.NewSlackNotifier(failing.URL, "")}, nil, logger)
	s, err := watcher.NewSupervisor(defaultSettings(clock), open, dispatcher, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Status().LinesRead == 3 }, 2*time.Second, 5*time.Millisecond)
	st := s.Status()
	assert.Equal(t, int64(2), st.FailoverAlerts)
	assert.Equal(t, int64(1), st.ErrorRateAlerts)
	assert.Equal(t, clock.Now(), st.LastRateAlert, "cooldown starts at dispatch even when delivery fails")

	cancel()
	require.NoError(t, <-done)
}
