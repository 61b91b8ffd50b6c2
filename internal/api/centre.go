package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tomohub/internal/apperrors"
	"tomohub/internal/job"
	"tomohub/internal/output"
	"tomohub/internal/pipeline"
)

// imageTypes maps the extensions served by the image endpoint to media types.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// RunCentre handles POST /reconstruction/centre/run
func (h *Handler) RunCentre(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemoryUpload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	spec, err := sweepFromValues(r.FormValue("start"), r.FormValue("stop"), r.FormValue("step"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if spec == nil {
		h.handleError(w, r, apperrors.Validation("start", "start, stop and step are required"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, r, apperrors.Validation("file", "an input file is required"))
		return
	}
	defer file.Close()

	run, err := h.jobs.RunCentre(r.Context(), job.CentreRequest{
		Filename:  header.Filename,
		Data:      file,
		Algorithm: r.FormValue("algorithm"),
		Sweep:     *spec,
		Loader:    []byte(r.FormValue("loader_context")),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// CentreStatus handles GET /reconstruction/centre/job-status
func (h *Handler) CentreStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	workDir := q.Get("temp_dir")
	if err := h.jobs.CheckPath(workDir); err != nil {
		h.handleError(w, r, err)
		return
	}
	spec, err := sweepFromValues(q.Get("start"), q.Get("stop"), q.Get("step"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	result, err := h.resolver.Resolve(r.Context(), output.Request{
		WorkDir:  filepath.Clean(workDir),
		Sweep:    spec,
		Filename: q.Get("filename"),
		Exited:   h.jobs.Exited(workDir),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// CentreImage handles GET /reconstruction/centre/image
func (h *Handler) CentreImage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := h.jobs.CheckPath(path); err != nil {
		h.handleError(w, r, err)
		return
	}
	contentType, ok := imageTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		h.handleError(w, r, apperrors.Validation("path", "unsupported image type"))
		return
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			h.writeError(w, http.StatusNotFound, "Image not found")
			return
		}
		h.handleError(w, r, apperrors.Internal("api.image", err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.writeError(w, http.StatusNotFound, "Image not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// FindLog handles GET /reconstruction/centre/find-log
func (h *Handler) FindLog(w http.ResponseWriter, r *http.Request) {
	loc, err := h.jobs.FindLog(r.URL.Query().Get("temp_dir"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loc)
}

// PreviousJob handles GET /reconstruction/centre/previous
func (h *Handler) PreviousJob(w http.ResponseWriter, r *http.Request) {
	dir, err := h.jobs.PreviousWorkDir()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if dir == "" {
		h.writeMessage(w, http.StatusNotFound, "No previous job found.")
		return
	}

	rec, err := output.ReadJobRecord(h.resolver.FS(), dir)
	if err != nil {
		if isNotFound(err) {
			h.writeMessage(w, http.StatusNotFound, "Job data file not found.")
			return
		}
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// DeleteTempDirs handles DELETE /reconstruction/centre/tempdir
func (h *Handler) DeleteTempDirs(w http.ResponseWriter, r *http.Request) {
	removed, err := h.jobs.Cleanup()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if removed == 0 {
		h.writeMessage(w, http.StatusOK, "No directories to delete.")
		return
	}
	h.writeMessage(w, http.StatusOK, fmt.Sprintf("Deleted %d directories successfully.", removed))
}

// sweepFromValues parses a sweep range. It returns nil when all three values
// are absent.
func sweepFromValues(start, stop, step string) (*pipeline.SweepSpec, error) {
	if start == "" && stop == "" && step == "" {
		return nil, nil
	}
	var spec pipeline.SweepSpec
	for _, f := range []struct {
		name  string
		value string
		dst   *int
	}{
		{"start", start, &spec.Start},
		{"stop", stop, &spec.Stop},
		{"step", step, &spec.Step},
	} {
		n, err := strconv.Atoi(strings.TrimSpace(f.value))
		if err != nil {
			return nil, apperrors.Validation(f.name, f.name+" must be an integer")
		}
		*f.dst = n
	}
	return &spec, nil
}
