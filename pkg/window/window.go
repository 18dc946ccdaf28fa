package window

import (
	"fmt"
	"strings"
)

// Window is a fixed-capacity FIFO of status codes. It is not safe for
// concurrent use; the pipeline owns it from a single goroutine.
type Window struct {
	buf    []string
	start  int // index of the oldest entry
	size   int
	errors int
}

// New creates a window holding at most capacity statuses.
func New(capacity int) (*Window, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be positive, got %d", capacity)
	}
	return &Window{buf: make([]string, capacity)}, nil
}

// IsServerError reports whether status is in the 5xx class.
func IsServerError(status string) bool {
	return strings.HasPrefix(status, "5")
}

// Push appends status, evicting the oldest entry when the window is full.
func (w *Window) Push(status string) {
	if w.size == len(w.buf) {
		if IsServerError(w.buf[w.start]) {
			w.errors--
		}
		w.buf[w.start] = status
		w.start = (w.start + 1) % len(w.buf)
	} else {
		w.buf[(w.start+w.size)%len(w.buf)] = status
		w.size++
	}
	if IsServerError(status) {
		w.errors++
	}
}

// ErrorRate returns the percentage of server errors in the window, or 0
// when the window is empty.
func (w *Window) ErrorRate() float64 {
	if w.size == 0 {
		return 0
	}
	return float64(w.errors) / float64(w.size) * 100
}

// Len returns the number of statuses currently held.
func (w *Window) Len() int { return w.size }

// Cap returns the configured capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Errors returns the number of server errors currently held.
func (w *Window) Errors() int { return w.errors }

// Snapshot returns the held statuses, oldest first.
func (w *Window) Snapshot() []string {
	out := make([]string, w.size)
	for i := range w.size {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
