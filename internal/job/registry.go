package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tomohub/internal/apperrors"
	"tomohub/internal/observability"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Executor Executor               // Starts runs (required)
	Metrics  *observability.Metrics // Metrics recorder (optional)
	Now      func() time.Time       // Clock for folder names (default time.Now)
	NewID    func() string          // Job ID generator (default random UUID)
}

// Registry tracks launched runs and admits at most one running run at a time.
type Registry struct {
	executor Executor
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	jobs      map[string]*Job
	latest    *Job
	launching bool

	watchWg   sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	r := &Registry{
		executor: cfg.Executor,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		newID:    cfg.NewID,
		jobs:     make(map[string]*Job),
		closing:  make(chan struct{}),
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r, nil
}

// LaunchRequest names the three paths handed to the executable.
type LaunchRequest struct {
	InputPath  string
	ConfigPath string
	OutputRoot string
}

// Launch starts a run and returns without waiting for it to exit.
// It fails with a conflict while a previously launched run is still running.
func (r *Registry) Launch(ctx context.Context, req LaunchRequest) (*Job, error) {
	if err := r.reserve(); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			r.release()
		}
	}()

	if err := os.MkdirAll(req.OutputRoot, 0o755); err != nil {
		return nil, apperrors.Internal("job.launch", fmt.Errorf("create output root: %w", err))
	}

	startedAt := r.now()
	j := &Job{
		ID:         r.newID(),
		InputPath:  req.InputPath,
		ConfigPath: req.ConfigPath,
		OutputRoot: req.OutputRoot,
		FolderName: startedAt.Format(folderLayout) + "_output",
		Executor:   r.executor.Name(),
		StartedAt:  startedAt,
	}
	j.LogPath = filepath.Join(j.OutputDir(), LogFileName)

	logger := slog.With("jobId", j.ID, "executor", j.Executor)

	proc, err := r.executor.Start(ctx, Command{
		JobID:      j.ID,
		InputPath:  j.InputPath,
		ConfigPath: j.ConfigPath,
		OutputRoot: j.OutputRoot,
		FolderName: j.FolderName,
	})
	if err != nil {
		logger.Error("Run failed to start", "error", err)
		return nil, apperrors.Internal("job.launch", err)
	}
	j.proc = proc

	r.commit(j)
	committed = true

	if r.metrics != nil {
		r.metrics.RecordJobCreated(ctx, j.Executor)
	}
	logger.Info("Run started", "input", j.InputPath, "config", j.ConfigPath, "output", j.OutputDir())

	r.watchWg.Add(1)
	go r.watch(logger, j)

	return j, nil
}

// reserve claims the single launch slot.
func (r *Registry) reserve() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.launching || (r.latest != nil && !r.latest.Exited()) {
		return apperrors.Conflict("job", "A HTTOMO process is already running. Please wait for it to complete.")
	}
	r.launching = true
	return nil
}

// commit records a started run and frees the launch slot.
func (r *Registry) commit(j *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
	r.latest = j
	r.launching = false
}

// release frees the launch slot after a failed start.
func (r *Registry) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launching = false
}

func (r *Registry) watch(logger *slog.Logger, j *Job) {
	defer r.watchWg.Done()
	select {
	case <-j.proc.Done():
	case <-r.closing:
		logger.Info("Run still going at shutdown; no longer watched")
		return
	}

	code, _ := j.proc.ExitCode()
	duration := r.now().Sub(j.StartedAt).Seconds()
	if r.metrics != nil {
		r.metrics.RecordJobCompleted(context.Background(), j.Executor, code == 0, duration)
	}
	if code == 0 {
		logger.Info("Run completed", "duration", duration)
		return
	}
	logger.Warn("Run failed", "exitCode", code, "duration", duration)
}

// Get returns a run by ID.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	return j, nil
}

// Latest returns the most recently launched run, or nil.
func (r *Registry) Latest() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// List returns all runs, newest first.
func (r *Registry) List() []*Job {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].StartedAt.After(jobs[b].StartedAt) })
	return jobs
}

// FindByOutputRoot returns the newest run writing below dir, or nil.
func (r *Registry) FindByOutputRoot(dir string) *Job {
	for _, j := range r.List() {
		if j.OutputRoot == dir {
			return j
		}
	}
	return nil
}

// IsLogPath reports whether path is the predicted log of a launched run.
func (r *Registry) IsLogPath(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.LogPath == path {
			return true
		}
	}
	return false
}

// Status reports the state of a run. An empty id selects the latest run.
func (r *Registry) Status(id string) (*Status, error) {
	var j *Job
	if id == "" {
		j = r.Latest()
		if j == nil {
			return nil, apperrors.Missing("job", "No HTTOMO task is running")
		}
	} else {
		var err error
		if j, err = r.Get(id); err != nil {
			return nil, err
		}
	}

	code, exited := j.proc.ExitCode()
	switch {
	case !exited:
		msg := "Process is running"
		if info, err := os.Stat(j.OutputDir()); err == nil && info.IsDir() {
			msg = "Process is running with output in " + j.OutputDir()
		}
		return &Status{ID: j.ID, State: StateRunning, Message: msg}, nil
	case code == 0:
		return &Status{ID: j.ID, State: StateCompleted, Message: "HTTOMO process completed successfully"}, nil
	default:
		stderr := j.proc.Stderr()
		return &Status{
			ID:      j.ID,
			State:   StateFailed,
			Message: fmt.Sprintf("HTTOMO process failed with exit code %d", code),
			Error:   &stderr,
		}, nil
	}
}

// Close stops watching runs and closes the executor. Runs themselves keep
// going; watchers of unexited runs return at once rather than waiting on them.
func (r *Registry) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.closing) })
	done := make(chan struct{})
	go func() {
		r.watchWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return r.executor.Close()
}
