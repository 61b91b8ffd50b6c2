// Package api provides the HTTP API handlers and routing for the tomohub service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"tomohub/internal/apperrors"
	"tomohub/internal/deployment"
	"tomohub/internal/health"
	"tomohub/internal/job"
	"tomohub/internal/logtail"
	"tomohub/internal/observability"
	"tomohub/internal/output"
	"tomohub/internal/proxy"
	"tomohub/internal/template"
)

// maxRequestBodySize limits JSON request bodies to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// maxMemoryUpload is the part of a multipart upload held in memory; the rest
// spills to temporary files.
const maxMemoryUpload = 32 << 20 // 32 MB

// HandlerConfig holds the dependencies of a Handler.
type HandlerConfig struct {
	Templates *template.Generator
	Jobs      *job.Service
	Resolver  *output.Resolver
	Tailer    *logtail.Tailer
	Health    *health.Checker
	Proxy     *proxy.Fetcher
	Metrics   *observability.Metrics // Optional
	Mode      deployment.Mode
}

// Handler contains HTTP handlers for the tomohub API
type Handler struct {
	templates *template.Generator
	jobs      *job.Service
	resolver  *output.Resolver
	tailer    *logtail.Tailer
	health    *health.Checker
	proxy     *proxy.Fetcher
	metrics   *observability.Metrics
	mode      deployment.Mode
}

// NewHandler creates a new API handler
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		templates: cfg.Templates,
		jobs:      cfg.Jobs,
		resolver:  cfg.Resolver,
		tailer:    cfg.Tailer,
		health:    cfg.Health,
		proxy:     cfg.Proxy,
		metrics:   cfg.Metrics,
		mode:      cfg.Mode,
	}
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if runs cannot be started.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.Ready() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// Deployment handles GET /system/deployment
func (h *Handler) Deployment(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"mode": string(h.mode)})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeMessage writes a {"message": ...} body, the shape the centre endpoints use.
func (h *Handler) writeMessage(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"message": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
// Internal errors carry the stack captured where they were raised.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status < 500 {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
		h.writeError(w, status, err.Error())
		return
	}

	slog.Error("Internal error", "error", err, "path", r.URL.Path)
	body := map[string]string{"error": err.Error()}
	if stack := apperrors.StackOf(err); stack != "" {
		body["detail"] = stack
	}
	h.writeJSON(w, status, body)
}

func isNotFound(err error) bool {
	return apperrors.HTTPStatus(err) == http.StatusNotFound
}
