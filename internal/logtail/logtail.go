// Package logtail follows a growing log file written by another process.
package logtail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tomohub/internal/apperrors"
	"tomohub/internal/observability"
)

// ErrRemoved is returned by Follow when the file disappears.
var ErrRemoved = errors.New("log file no longer exists")

// Config configures a Tailer.
type Config struct {
	WaitAttempts int                    // Existence checks before giving up (default 20)
	WaitInterval time.Duration          // Delay between existence checks (default 500ms)
	PollInterval time.Duration          // Delay between size checks while following (default 100ms)
	Metrics      *observability.Metrics // Metrics recorder (optional)
}

// Tailer waits for log files and streams what is appended to them.
// A Tailer holds no per-file state and may follow many files at once.
type Tailer struct {
	waitAttempts int
	waitInterval time.Duration
	pollInterval time.Duration
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// New creates a tailer.
func New(cfg Config) *Tailer {
	t := &Tailer{
		waitAttempts: cfg.WaitAttempts,
		waitInterval: cfg.WaitInterval,
		pollInterval: cfg.PollInterval,
		metrics:      cfg.Metrics,
		logger:       slog.With("component", "logtail"),
	}
	if t.waitAttempts <= 0 {
		t.waitAttempts = 20
	}
	if t.waitInterval <= 0 {
		t.waitInterval = 500 * time.Millisecond
	}
	if t.pollInterval <= 0 {
		t.pollInterval = 100 * time.Millisecond
	}
	return t
}

// Wait blocks until path exists. It gives up with a not found error after the
// configured number of attempts, or returns ctx's error if ctx ends first.
func (t *Tailer) Wait(ctx context.Context, path string) error {
	for attempt := 1; ; attempt++ {
		if exists(path) {
			return nil
		}
		if attempt >= t.waitAttempts {
			return apperrors.Missing("log", fmt.Sprintf("Log file not found at %s after waiting", path))
		}
		t.logger.Debug("Waiting for log file", "path", path, "attempt", attempt, "of", t.waitAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.waitInterval):
		}
	}
}

// Follow emits the current content of path, then every byte appended to it.
// No byte is emitted twice; a file that shrinks is not re-read.
//
// It returns nil when ctx ends, ErrRemoved when the file disappears, and the
// error from emit if emit fails.
func (t *Tailer) Follow(ctx context.Context, path string, emit func([]byte) error) error {
	if t.metrics != nil {
		t.metrics.RecordLogStreamOpened(ctx)
		defer t.metrics.RecordLogStreamClosed(context.WithoutCancel(ctx))
	}

	wake := t.watch(ctx, path)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	var offset int64
	for {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return ErrRemoved
		}
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		if size := info.Size(); size > offset {
			chunk, err := readRange(path, offset, size)
			if err != nil {
				return err
			}
			if len(chunk) > 0 {
				if err := emit(chunk); err != nil {
					return err
				}
				offset += int64(len(chunk))
				if t.metrics != nil {
					t.metrics.RecordLogBytes(ctx, len(chunk))
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

// watch returns a channel that receives when the file's directory reports an
// event for it. Without fsnotify support the channel never fires and Follow
// falls back to polling.
func (t *Tailer) watch(ctx context.Context, path string) <-chan struct{} {
	wake := make(chan struct{}, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Debug("File watching unavailable, polling only", "error", err)
		return wake
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		t.logger.Debug("File watching unavailable, polling only", "path", path, "error", err)
		return wake
	}

	target := filepath.Clean(path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return wake
}

// readRange reads bytes [from, to) of path. It may return fewer bytes if the
// file shrank in between.
func readRange(path string, from, to int64) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrRemoved
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, to-from)
	n, err := f.ReadAt(buf, from)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf[:n], nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
