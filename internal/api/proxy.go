package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// proxyWriteWindow bounds how long relaying one remote file may take.
const proxyWriteWindow = 10 * time.Minute

// ProxyTIFF handles GET /proxy/tiff?url=...
// Relays a remote result image so browsers can read buckets without CORS.
func (h *Handler) ProxyTIFF(w http.ResponseWriter, r *http.Request) {
	obj, err := h.proxy.Fetch(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.handleError(w, r, err)
		return
	}
	defer obj.Body.Close()

	_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(proxyWriteWindow))

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if n, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("Proxy relay interrupted", "bytes", n, "error", err)
	}
}
