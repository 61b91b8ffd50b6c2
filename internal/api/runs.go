package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tomohub/internal/apperrors"
	"tomohub/internal/job"
	"tomohub/internal/pipeline"
)

// RunHTTomo handles POST /httomo/run
func (h *Handler) RunHTTomo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemoryUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.writeError(w, http.StatusBadRequest, "Invalid form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	req := job.RunRequest{
		DataPath:   r.FormValue("data_path"),
		OutputPath: r.FormValue("output_path"),
		ConfigData: []byte(r.FormValue("config_data")),
	}

	if file, _, err := r.FormFile("config_file"); err == nil {
		req.ConfigFile, err = io.ReadAll(file)
		file.Close()
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Failed to read config_file: "+err.Error())
			return
		}
	}

	if raw := r.FormValue("sweep_config"); raw != "" {
		var sweep pipeline.Sweep
		if err := json.Unmarshal([]byte(raw), &sweep); err != nil {
			h.handleError(w, r, apperrors.Validation("sweep_config", "invalid sweep_config: "+err.Error()))
			return
		}
		// An incomplete designation means no sweep.
		if sweep.MethodID != "" && sweep.ParamName != "" && sweep.Kind != "" {
			req.Sweep = &sweep
		}
	}

	resp, err := h.jobs.Run(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HTTomoStatus handles GET /httomo/status
func (h *Handler) HTTomoStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.jobs.Registry().Status(r.URL.Query().Get("job_id"))
	if err != nil {
		if isNotFound(err) {
			h.writeJSON(w, http.StatusNotFound, job.Status{State: job.StateNotFound, Message: err.Error()})
			return
		}
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}
