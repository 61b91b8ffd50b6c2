package api

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"tomohub/internal/logtail"
)

// StreamLogs handles GET /reconstruction/centre/stream-logs
//
// It waits for the log to appear, then streams it as server-sent events:
// the current content first, then each append, until the client goes away or
// the file is removed.
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("log_path")
	if err := h.jobs.CheckLogPath(path); err != nil {
		h.handleError(w, r, err)
		return
	}
	path = filepath.Clean(path)
	logger := slog.With("component", "api", "log", path)

	if err := h.tailer.Wait(r.Context(), path); err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		// Client went away.
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("retry: 1000\n\n")); err != nil {
		return
	}
	_ = rc.Flush()

	err := h.tailer.Follow(r.Context(), path, func(chunk []byte) error {
		if _, err := w.Write(sseFrame(chunk)); err != nil {
			return err
		}
		return rc.Flush()
	})
	switch {
	case errors.Is(err, logtail.ErrRemoved):
		_, _ = w.Write([]byte("data: Log file no longer exists\n\n"))
		_ = rc.Flush()
	case err != nil:
		logger.Debug("Log stream ended", "error", err)
	}
}

// sseFrame wraps chunk as one event, prefixing every line with "data: ".
func sseFrame(chunk []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(chunk) + 16)
	buf.WriteString("data: ")
	buf.Write(bytes.ReplaceAll(chunk, []byte("\n"), []byte("\ndata: ")))
	buf.WriteString("\n\n")
	return buf.Bytes()
}
