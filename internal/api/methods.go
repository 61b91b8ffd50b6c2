package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"tomohub/internal/apperrors"
	"tomohub/internal/pipeline"
	"tomohub/internal/template"
)

// Methods handles GET /methods
func (h *Handler) Methods(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.templates.All(r.Context()))
}

// MethodsByCategory handles GET /methods/{category}
func (h *Handler) MethodsByCategory(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.Category(r.Context(), r.PathValue("category"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, templates)
}

// Loaders handles GET /methods/loaders
func (h *Handler) Loaders(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, template.Loaders())
}

// generateRequest is the body of POST /yaml/generate.
type generateRequest struct {
	Data        json.RawMessage `json:"data"`
	FileName    string          `json:"fileName"`
	SweepConfig *pipeline.Sweep `json:"sweepConfig"`
}

// GenerateYAML handles POST /yaml/generate
func (h *Handler) GenerateYAML(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.FileName) == "" {
		h.handleError(w, r, apperrors.Validation("fileName", "fileName is required"))
		return
	}
	if len(req.Data) == 0 {
		h.handleError(w, r, apperrors.Validation("data", "data is required"))
		return
	}

	stages, err := pipeline.DecodeStages(req.Data)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	content, err := pipeline.Build(stages, req.SweepConfig)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	filename := strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(req.FileName) + ".yaml"
	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
