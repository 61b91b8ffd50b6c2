// Package output maps the images a sweep run writes back to the sweep values
// that produced them.
package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"tomohub/internal/apperrors"
	"tomohub/internal/observability"
	"tomohub/internal/pipeline"
)

// Result states
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

const (
	sweepDir = "images_sweep_recon"
	tifDir   = "images8bit_tif"
	pngDir   = "images8bit_png"
	logFile  = "user.log"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	FS        Filesystem             // Default OS{}
	Converter Converter              // Default PNGConverter{}
	Metrics   *observability.Metrics // Optional
}

// Resolver polls a working directory for sweep results.
type Resolver struct {
	fs        Filesystem
	converter Converter
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	sources map[string]string // PNG path -> TIFF it was converted from
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		fs:        cfg.FS,
		converter: cfg.Converter,
		metrics:   cfg.Metrics,
		logger:    slog.With("component", "output"),
		sources:   make(map[string]string),
	}
	if r.fs == nil {
		r.fs = OS{}
	}
	if r.converter == nil {
		r.converter = PNGConverter{}
	}
	return r
}

// FS returns the filesystem the resolver reads.
func (r *Resolver) FS() Filesystem {
	return r.fs
}

// Request identifies the run to poll.
type Request struct {
	WorkDir  string
	Sweep    *pipeline.SweepSpec
	Filename string // Recorded in the job record; empty skips the record
	Exited   bool   // The run has exited, so no more images will appear
}

// Result is one poll of a working directory.
type Result struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Images  map[string]string `json:"images"`
	Warning string            `json:"warning,omitempty"`
}

// Resolve maps the images found so far to sweep values.
//
// Images are paired positionally with the sweep values in path order.
// Each one is converted to PNG, again only when the TIFF paired with a value
// changes or is rewritten; if conversion fails the TIFF path is used.
// When every value is mapped (or the run has exited) the result is
// completed and the job record is written to the working directory.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if req.Sweep == nil {
		return nil, apperrors.Validation("start", "start, stop and step are required")
	}
	if err := req.Sweep.Validate(); err != nil {
		return nil, err
	}
	logger := r.logger.With("workDir", req.WorkDir)

	if _, err := r.fs.Stat(req.WorkDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Result{Status: StatusError, Message: "Directory not found", Images: map[string]string{}}, nil
		}
		return nil, apperrors.Internal("output.resolve", err)
	}

	outputDir, err := NewestOutputDir(r.fs, req.WorkDir)
	if err != nil {
		return nil, apperrors.Internal("output.resolve", err)
	}
	if outputDir == "" {
		return &Result{Status: StatusRunning, Message: "Output directory not found yet", Images: map[string]string{}}, nil
	}

	files, err := r.images(outputDir)
	if err != nil {
		return nil, apperrors.Internal("output.resolve", err)
	}
	if len(files) == 0 {
		return &Result{Status: StatusRunning, Message: "No TIF files found yet", Images: map[string]string{}}, nil
	}

	values := req.Sweep.Values()
	pngPath := filepath.Join(outputDir, sweepDir, pngDir)
	if err := r.fs.MkdirAll(pngPath, 0o755); err != nil {
		return nil, apperrors.Internal("output.resolve", err)
	}

	n := min(len(files), len(values))
	images := make(map[string]string, n)
	for i := 0; i < n; i++ {
		key := strconv.Itoa(values[i])
		images[key] = r.convert(ctx, logger, files[i], filepath.Join(pngPath, "center_"+key+".png"))
	}

	res := &Result{Status: StatusCompleted, Images: images}
	switch {
	case len(files) < len(values) && !req.Exited:
		res.Status = StatusRunning
		res.Message = fmt.Sprintf("Found %d of %d center images", n, len(values))
		return res, nil
	case len(files) != len(values):
		res.Warning = fmt.Sprintf("found %d images for %d sweep values; only %d were mapped", len(files), len(values), n)
		logger.Warn("Image count does not match sweep", "images", len(files), "values", len(values))
	}
	res.Message = fmt.Sprintf("Found %d center images", n)

	if req.Filename != "" {
		rec := JobRecord{
			Start:        req.Sweep.Start,
			Stop:         req.Sweep.Stop,
			Step:         req.Sweep.Step,
			Filename:     req.Filename,
			CenterImages: images,
			LogPath:      filepath.Join(outputDir, logFile),
		}
		if err := WriteJobRecord(r.fs, req.WorkDir, rec); err != nil {
			logger.Error("Failed to save job record", "error", err)
		}
	}
	return res, nil
}

// images lists result images in path order: the fixed sweep folder if it
// exists, otherwise every .tif below outputDir.
func (r *Resolver) images(outputDir string) ([]string, error) {
	dir := filepath.Join(outputDir, sweepDir, tifDir)
	if _, err := r.fs.Stat(dir); err == nil {
		files, err := r.fs.Glob(filepath.Join(dir, "*.tif"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		return files, nil
	}

	var files []string
	err := r.fs.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish while the run is writing.
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tif") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (r *Resolver) convert(ctx context.Context, logger *slog.Logger, src, dst string) string {
	if r.converted(src, dst) {
		return dst
	}
	err := r.converter.Convert(r.fs, src, dst)
	if r.metrics != nil {
		r.metrics.RecordArtifactConverted(ctx, err == nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		delete(r.sources, dst)
		logger.Warn("Image conversion failed, serving TIFF", "src", src, "error", err)
		return src
	}
	r.sources[dst] = src
	return dst
}

// converted reports whether dst holds a conversion of src that is at least
// as new as src. Images shift position while a run is still writing, so the
// PNG for a value may come from a different TIFF than last time.
func (r *Resolver) converted(src, dst string) bool {
	dstInfo, err := r.fs.Stat(dst)
	if err != nil {
		return false
	}
	r.mu.Lock()
	prev, ok := r.sources[dst]
	r.mu.Unlock()
	if !ok || prev != src {
		return false
	}
	srcInfo, err := r.fs.Stat(src)
	if err != nil {
		return true
	}
	return !srcInfo.ModTime().After(dstInfo.ModTime())
}
