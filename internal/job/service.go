package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"tomohub/internal/apperrors"
	"tomohub/internal/output"
	"tomohub/internal/pipeline"
)

// CentreDirPrefix names the working directories of centre-finding runs.
const CentreDirPrefix = "centre_reconstruction_"

// Service prepares run inputs on disk and launches runs through a Registry.
//
// All files it creates live below the temp root. Working directories are only
// ever removed by an explicit cleanup; removing one does not stop its run.
type Service struct {
	registry *Registry
	tempRoot string
	logger   *slog.Logger
}

// NewService creates a service writing below tempRoot.
func NewService(registry *Registry, tempRoot string) *Service {
	return &Service{
		registry: registry,
		tempRoot: filepath.Clean(tempRoot),
		logger:   slog.With("component", "job"),
	}
}

// Registry returns the underlying run registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// TempRoot returns the directory all job files live under.
func (s *Service) TempRoot() string {
	return s.tempRoot
}

// RunRequest starts a run of a user supplied pipeline.
// Exactly one of ConfigFile and ConfigData is used; ConfigFile wins.
type RunRequest struct {
	DataPath   string
	OutputPath string
	ConfigFile []byte          // Uploaded YAML, used verbatim
	ConfigData []byte          // JSON stage list, converted to YAML
	Sweep      *pipeline.Sweep // Optional, applies to ConfigData only
}

// Run materialises the configuration and launches the run.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if req.DataPath == "" {
		return nil, apperrors.Validation("data_path", "data_path is required")
	}
	if req.OutputPath == "" {
		return nil, apperrors.Validation("output_path", "output_path is required")
	}

	var content []byte
	switch {
	case len(req.ConfigFile) > 0:
		content = req.ConfigFile
	case len(req.ConfigData) > 0:
		stages, err := pipeline.DecodeStages(req.ConfigData)
		if err != nil {
			return nil, err
		}
		if content, err = pipeline.Build(stages, req.Sweep); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.Validation("config", "Either config_file or config_data must be provided")
	}

	configPath := filepath.Join(s.tempRoot, "httomo_config_"+shortID()+".yaml")
	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return nil, apperrors.Internal("job.run", fmt.Errorf("write config: %w", err))
	}
	s.logger.Debug("Saved run config", "path", configPath)

	j, err := s.registry.Launch(ctx, LaunchRequest{
		InputPath:  req.DataPath,
		ConfigPath: configPath,
		OutputRoot: req.OutputPath,
	})
	if err != nil {
		_ = os.Remove(configPath)
		return nil, err
	}

	return &RunResponse{
		ID:      j.ID,
		Message: "HTTOMO run started",
		Status:  StateRunning,
		LogPath: j.LogPath,
	}, nil
}

// CentreRequest starts a centre-of-rotation sweep on an uploaded dataset.
type CentreRequest struct {
	Filename  string
	Data      io.Reader
	Algorithm string
	Sweep     pipeline.SweepSpec
	Loader    []byte // JSON loader stage: {"method", "module_path", "parameters"}
}

// CentreRun is the launched sweep.
type CentreRun struct {
	ID           string            `json:"job_id"`
	Message      string            `json:"message"`
	CenterImages map[string]string `json:"center_images"`
	TempDir      string            `json:"temp_dir"`
	Status       string            `json:"status"`
	Filename     string            `json:"filename"`
	LogPath      string            `json:"log_path"`
}

// RunCentre saves the dataset into a fresh working directory, writes the
// centre-finding pipeline next to it and launches the run there.
func (s *Service) RunCentre(ctx context.Context, req CentreRequest) (*CentreRun, error) {
	if err := req.Sweep.Validate(); err != nil {
		return nil, err
	}
	if req.Algorithm == "" {
		return nil, apperrors.Validation("algorithm", "algorithm is required")
	}
	name := filepath.Base(filepath.Clean("/" + req.Filename))
	if name == "/" || name == "." {
		return nil, apperrors.Validation("file", "an input file is required")
	}
	loader, err := pipeline.DecodeStage(req.Loader)
	if err != nil {
		return nil, err
	}
	stages, err := pipeline.CentrePipeline(loader, req.Algorithm, req.Sweep)
	if err != nil {
		return nil, err
	}
	config, err := pipeline.Build(stages, nil)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.tempRoot, CentreDirPrefix)
	if err != nil {
		return nil, apperrors.Internal("job.centre", fmt.Errorf("create working directory: %w", err))
	}
	logger := s.logger.With("workDir", dir)

	launched := false
	defer func() {
		if !launched {
			_ = os.RemoveAll(dir)
		}
	}()

	dataPath := filepath.Join(dir, name)
	if err := writeFile(dataPath, req.Data); err != nil {
		return nil, apperrors.Internal("job.centre", fmt.Errorf("save upload: %w", err))
	}
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, config, 0o644); err != nil {
		return nil, apperrors.Internal("job.centre", fmt.Errorf("write config: %w", err))
	}

	j, err := s.registry.Launch(ctx, LaunchRequest{
		InputPath:  dataPath,
		ConfigPath: configPath,
		OutputRoot: dir,
	})
	if err != nil {
		return nil, err
	}
	launched = true
	if m := s.registry.metrics; m != nil {
		m.RecordSweep(ctx, req.Algorithm, req.Sweep.Len())
	}
	logger.Info("Centre sweep launched", "jobId", j.ID, "algorithm", req.Algorithm,
		"start", req.Sweep.Start, "stop", req.Sweep.Stop, "step", req.Sweep.Step)

	return &CentreRun{
		ID: j.ID,
		Message: fmt.Sprintf("Reconstruction started. Algorithm: %s, Range: %d-%d (step %d)",
			req.Algorithm, req.Sweep.Start, req.Sweep.Stop, req.Sweep.Step),
		CenterImages: map[string]string{},
		TempDir:      dir,
		Status:       StateRunning,
		Filename:     name,
		LogPath:      j.LogPath,
	}, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CentreDirs returns the centre working directories, newest first.
func (s *Service) CentreDirs() ([]string, error) {
	entries, err := os.ReadDir(s.tempRoot)
	if err != nil {
		return nil, apperrors.Internal("job.centre_dirs", err)
	}
	type dirInfo struct {
		path    string
		modTime int64
	}
	var dirs []dirInfo
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), CentreDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, dirInfo{filepath.Join(s.tempRoot, e.Name()), info.ModTime().UnixNano()})
	}
	sort.Slice(dirs, func(a, b int) bool { return dirs[a].modTime > dirs[b].modTime })

	paths := make([]string, len(dirs))
	for i, d := range dirs {
		paths[i] = d.path
	}
	return paths, nil
}

// Cleanup removes every centre working directory and reports how many went.
func (s *Service) Cleanup() (int, error) {
	dirs, err := s.CentreDirs()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil {
			return removed, apperrors.Internal("job.cleanup", err)
		}
		removed++
		s.logger.Info("Deleted working directory", "path", d)
	}
	return removed, nil
}

// PreviousWorkDir returns the newest centre working directory, or "" if
// there is none.
func (s *Service) PreviousWorkDir() (string, error) {
	dirs, err := s.CentreDirs()
	if err != nil || len(dirs) == 0 {
		return "", err
	}
	return dirs[0], nil
}

// LogLocation is the result of a log lookup.
type LogLocation struct {
	Found   bool   `json:"found"`
	LogPath string `json:"log_path,omitempty"`
	Message string `json:"message"`
}

// FindLog locates the run log inside workDir, or inside the newest centre
// working directory when workDir is empty. A path is returned even when the
// log has not been written yet.
func (s *Service) FindLog(workDir string) (*LogLocation, error) {
	if workDir != "" {
		if err := s.CheckPath(workDir); err != nil {
			return nil, err
		}
		if _, err := os.Stat(workDir); err != nil {
			return &LogLocation{Message: "Invalid or non-existent temp directory: " + workDir}, nil
		}
	} else {
		dirs, err := s.CentreDirs()
		if err != nil {
			return nil, err
		}
		if len(dirs) == 0 {
			return &LogLocation{Message: "No reconstruction directory found"}, nil
		}
		workDir = dirs[0]
	}

	outputDir, err := output.NewestOutputDir(output.OS{}, workDir)
	if err != nil {
		return nil, apperrors.Internal("job.find_log", err)
	}
	if outputDir == "" {
		return &LogLocation{Message: "No output directory found in " + workDir}, nil
	}

	logPath := filepath.Join(outputDir, LogFileName)
	loc := &LogLocation{LogPath: logPath, Message: "Log file path determined but file not created yet"}
	if _, err := os.Stat(logPath); err == nil {
		loc.Found = true
		loc.Message = "Log file found"
	}
	return loc, nil
}

// CheckPath fails with a forbidden error unless path lies below the temp root.
func (s *Service) CheckPath(path string) error {
	if path == "" {
		return apperrors.Validation("path", "path is required")
	}
	if !filepath.IsAbs(path) {
		return apperrors.Forbidden("path", "Access denied: path must be absolute")
	}
	rel, err := filepath.Rel(s.tempRoot, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return apperrors.Forbidden("path", "Access denied: path must be inside "+s.tempRoot)
	}
	return nil
}

// CheckLogPath accepts paths below the temp root and the logs of launched runs.
func (s *Service) CheckLogPath(path string) error {
	if err := s.CheckPath(path); err == nil || !errors.Is(err, apperrors.ErrForbidden) {
		return err
	}
	if s.registry.IsLogPath(filepath.Clean(path)) {
		return nil
	}
	return apperrors.Forbidden("path", "Access denied: unknown log file")
}

// Exited reports whether the newest run writing into workDir has exited.
// Directories without a tracked run count as exited.
func (s *Service) Exited(workDir string) bool {
	j := s.registry.FindByOutputRoot(filepath.Clean(workDir))
	return j == nil || j.Exited()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
