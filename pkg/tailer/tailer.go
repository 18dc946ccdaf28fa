package tailer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// DefaultPollInterval is how long the follower idles when no new data is
// available.
const DefaultPollInterval = 500 * time.Millisecond

// tailSize is how many bytes before the read offset are kept to recognise a
// file that was truncated and refilled between two polls.
const tailSize = 64

// Follower reads lines appended to a file after it was opened. It survives
// truncation and replacement of the file at its path.
// A Follower must be used from a single goroutine.
type Follower struct {
	path   string
	poll   time.Duration
	logger *slog.Logger

	file    *os.File
	info    os.FileInfo
	reader  *bufio.Reader
	offset  int64
	tail    []byte // bytes in [offset-len(tail), offset)
	partial strings.Builder
}

// Open attaches to the end of the file at path. Content already present is
// never returned.
func Open(path string, pollInterval time.Duration, logger *slog.Logger) (*Follower, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path) // #nosec G304 -- operator-provided log path
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}

	t := &Follower{
		path:   path,
		poll:   pollInterval,
		logger: logger,
		file:   f,
		info:   info,
		reader: bufio.NewReaderSize(f, 64*1024),
		offset: offset,
	}
	start := max(offset-tailSize, 0)
	t.tail = make([]byte, offset-start)
	if _, err := f.ReadAt(t.tail, start); err != nil {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// ReadLine blocks until a complete line is available and returns it without
// its line terminator. It returns ctx.Err() when ctx is cancelled while idle.
func (t *Follower) ReadLine(ctx context.Context) (string, error) {
	for {
		// Only inspect the file when the next read would hit it.
		if t.reader.Buffered() == 0 {
			if err := t.checkFile(); err != nil {
				return "", err
			}
		}

		chunk, err := t.reader.ReadString('\n')
		t.offset += int64(len(chunk))
		t.remember(chunk)

		switch {
		case err == nil:
			t.partial.WriteString(chunk)
			line := t.partial.String()
			t.partial.Reset()
			return strings.TrimRight(line, "\r\n"), nil
		case err != io.EOF:
			return "", fmt.Errorf("read %s: %w", t.path, err)
		}

		// At EOF: keep the fragment until its newline is written.
		t.partial.WriteString(chunk)

		timer := time.NewTimer(t.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// checkFile handles truncation of the current file, including a truncate
// that was refilled past the offset, and replacement of the file at path.
func (t *Follower) checkFile() error {
	cur, err := t.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", t.path, err)
	}
	rewritten, err := t.rewritten(cur.Size())
	if err != nil {
		return err
	}
	if rewritten {
		t.logger.Info("log file truncated, reading from start", "path", t.path, "offset", t.offset, "size", cur.Size())
		if _, err := t.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek %s: %w", t.path, err)
		}
		t.reset(t.file, cur)
		return nil
	}
	if cur.Size() > t.offset {
		// Drain the current file before looking for a replacement.
		return nil
	}

	next, err := os.Stat(t.path)
	if err != nil {
		// Rotated away and not yet recreated.
		return nil
	}
	if os.SameFile(t.info, next) {
		return nil
	}

	f, err := os.Open(t.path) // #nosec G304 -- operator-provided log path
	if err != nil {
		t.logger.Debug("reopen rotated log file", "path", t.path, "error", err)
		return nil
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil
	}
	t.logger.Info("log file rotated, following new file", "path", t.path)
	t.file.Close()
	t.reset(f, info)
	return nil
}

// rewritten reports whether the bytes just before the offset are gone or
// no longer the ones that were read.
func (t *Follower) rewritten(size int64) (bool, error) {
	if size < t.offset {
		return true, nil
	}
	if len(t.tail) == 0 {
		return false, nil
	}
	buf := make([]byte, len(t.tail))
	if _, err := t.file.ReadAt(buf, t.offset-int64(len(buf))); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, fmt.Errorf("read %s: %w", t.path, err)
	}
	return !bytes.Equal(buf, t.tail), nil
}

func (t *Follower) remember(chunk string) {
	t.tail = append(t.tail, chunk...)
	if n := len(t.tail); n > tailSize {
		t.tail = append(t.tail[:0], t.tail[n-tailSize:]...)
	}
}

func (t *Follower) reset(f *os.File, info os.FileInfo) {
	t.file = f
	t.info = info
	t.reader.Reset(f)
	t.offset = 0
	t.tail = t.tail[:0]
	t.partial.Reset()
}

// Path returns the followed path.
func (t *Follower) Path() string {
	return t.path
}

// Close releases the underlying file.
func (t *Follower) Close() error {
	return t.file.Close()
}
