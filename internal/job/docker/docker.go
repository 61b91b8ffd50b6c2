// Package docker implements job.Executor by running the reconstruction
// executable in a container on the host Docker daemon.
//
// The input, config and output directories are bind-mounted at the same
// paths inside the container, so the paths in a job.Command and the log path
// predicted from them are valid on both sides.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"tomohub/internal/job"
	"tomohub/pkg/backoff"
)

const (
	managedByLabel = "managed-by=tomohub"
	stderrTail     = "1000" // Lines of stderr kept for failed runs
	removeTimeout  = 30 * time.Second
)

var (
	waitRetry = &backoff.Config{Initial: 200 * time.Millisecond, Max: 5 * time.Second, Attempts: 5}
	pullRetry = &backoff.Config{Initial: time.Second, Max: 10 * time.Second, Attempts: 3}
)

// Config holds configuration for the docker executor.
type Config struct {
	Image      string // Image providing the reconstruction executable (required)
	Executable string // Executable inside the image (default "httomo")
	Options
}

// Executor implements job.Executor using Docker.
type Executor struct {
	client     *client.Client
	image      string
	executable string
	opts       Options
	state      *stateRepo
	logger     *slog.Logger

	watchCtx    context.Context
	cancelWatch context.CancelFunc
	watchWg     sync.WaitGroup
}

// New creates a docker executor.
// Containers left behind by a previous instance are removed once they have exited.
func New(ctx context.Context, cfg Config) (*Executor, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("image is required")
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	e := &Executor{
		client:     dockerClient,
		image:      cfg.Image,
		executable: cfg.Executable,
		opts:       cfg.Options,
		state:      newStateRepo(),
		logger:     slog.With("component", "docker-executor"),
	}
	if e.executable == "" {
		e.executable = "httomo"
	}
	e.watchCtx, e.cancelWatch = context.WithCancel(context.Background())

	if err := e.removeStale(ctx); err != nil {
		e.logger.Warn("Failed to remove stale containers", "error", err)
	}
	return e, nil
}

// removeStale deletes exited containers from earlier runs.
// Running ones are left alone: their output is still being written.
func (e *Executor) removeStale(ctx context.Context) error {
	containers, err := e.client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", managedByLabel),
			filters.Arg("status", "exited"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		_ = e.client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true})
		e.logger.Debug("Removed stale container", "jobId", c.Labels["job.id"], "containerId", c.ID)
	}
	if len(containers) > 0 {
		e.logger.Info("Stale containers removed", "count", len(containers))
	}
	return nil
}

// Name implements job.Executor.
func (e *Executor) Name() string { return "docker" }

// Start implements job.Executor.
func (e *Executor) Start(ctx context.Context, cmd job.Command) (job.Process, error) {
	if err := e.state.reserve(cmd.JobID); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			e.state.release(cmd.JobID)
		}
	}()

	if err := e.pullImageIfNeeded(ctx); err != nil {
		return nil, fmt.Errorf("pull %s: %w", e.image, err)
	}

	containerID, err := e.createContainer(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		e.removeContainer(containerID)
		return nil, fmt.Errorf("start container: %w", err)
	}

	e.state.commit(cmd.JobID, &runState{containerID: containerID})
	committed = true

	p := &Process{done: make(chan struct{})}
	e.watchWg.Add(1)
	go e.watch(cmd.JobID, containerID, p)

	e.logger.Debug("Container started", "jobId", cmd.JobID, "containerId", containerID)
	return p, nil
}

func (e *Executor) createContainer(ctx context.Context, cmd job.Command) (string, error) {
	mounts, err := bindMounts(cmd)
	if err != nil {
		return "", err
	}

	containerConfig := &container.Config{
		Image:      e.image,
		Cmd:        append([]string{e.executable}, cmd.Args()...),
		WorkingDir: cmd.OutputRoot,
		User:       e.opts.User,
		Labels: map[string]string{
			"job.id":     cmd.JobID,
			"managed-by": "tomohub",
		},
	}

	hostConfig := &container.HostConfig{
		Mounts:     mounts,
		ExtraHosts: e.opts.ExtraHosts,
	}
	if e.opts.GPUs {
		hostConfig.Resources.DeviceRequests = []container.DeviceRequest{
			{Count: -1, Capabilities: [][]string{{"gpu"}}},
		}
	}

	containerName := fmt.Sprintf("tomohub-%s", cmd.JobID)
	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// bindMounts mounts the directories of the command's paths at the same
// locations inside the container.
func bindMounts(cmd job.Command) ([]mount.Mount, error) {
	dirs := map[string]bool{}
	for _, p := range []string{filepath.Dir(cmd.InputPath), filepath.Dir(cmd.ConfigPath), cmd.OutputRoot} {
		if !filepath.IsAbs(p) {
			return nil, fmt.Errorf("path %q must be absolute", p)
		}
		dirs[filepath.Clean(p)] = true
	}

	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	mounts := make([]mount.Mount, 0, len(sorted))
	for _, d := range sorted {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: d, Target: d})
	}
	return mounts, nil
}

// watch waits for the container to exit, keeps the tail of its stderr and
// removes it.
func (e *Executor) watch(jobID, containerID string, p *Process) {
	defer e.watchWg.Done()
	logger := e.logger.With("jobId", jobID)

	code, err := e.waitForExit(e.watchCtx, logger, containerID)
	if errors.Is(err, context.Canceled) {
		// Executor closed; the container keeps running.
		return
	}
	if err != nil {
		logger.Warn("Container wait failed", "error", err)
	}

	stderr := e.collectStderr(containerID)
	if err != nil && code == 0 {
		code = -1
		stderr += err.Error()
	}
	p.exit(code, stderr)

	e.removeContainer(containerID)
	e.state.release(jobID)
	logger.Debug("Container removed", "exitCode", code)
}

// waitForExit blocks until the container stops. A wait interrupted by the
// daemon is retried; the container itself is unaffected by it.
func (e *Executor) waitForExit(ctx context.Context, logger *slog.Logger, containerID string) (int, error) {
	code := -1
	err := backoff.Retry(ctx, waitRetry, func(attempt int) error {
		statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case err := <-errCh:
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Warn("Container wait interrupted", "attempt", attempt, "error", err)
			return err
		case status := <-statusCh:
			code = int(status.StatusCode)
			if status.Error != nil {
				return backoff.Permanent(fmt.Errorf("%s", status.Error.Message))
			}
			return nil
		}
	})
	return code, err
}

func (e *Executor) collectStderr(containerID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	logs, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStderr: true,
		Tail:       stderrTail,
	})
	if err != nil {
		return ""
	}
	defer logs.Close()

	var stderr bytes.Buffer
	_, _ = stdcopy.StdCopy(io.Discard, &stderr, logs)
	return stderr.String()
}

func (e *Executor) pullImageIfNeeded(ctx context.Context) error {
	if _, err := e.client.ImageInspect(ctx, e.image); err == nil {
		return nil
	}

	return backoff.Retry(ctx, pullRetry, func(attempt int) error {
		e.logger.Info("Pulling image", "image", e.image, "attempt", attempt)
		reader, err := e.client.ImagePull(ctx, e.image, image.PullOptions{})
		if err != nil {
			return err
		}
		defer reader.Close()

		_, err = io.Copy(io.Discard, reader)
		return err
	})
}

func (e *Executor) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	_ = e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// Ready checks if the Docker daemon is reachable and responsive.
func (e *Executor) Ready(ctx context.Context) error {
	_, err := e.client.Ping(ctx)
	return err
}

// Close stops watching containers and releases the client.
// Running containers are NOT stopped.
func (e *Executor) Close() error {
	if n := e.state.len(); n > 0 {
		e.logger.Info("Detaching from running containers", "count", n)
	}
	e.cancelWatch()
	e.watchWg.Wait()
	return e.client.Close()
}

// Process is a run container.
type Process struct {
	done chan struct{}

	mu     sync.Mutex
	code   int
	exited bool
	stderr string
}

func (p *Process) exit(code int, stderr string) {
	p.mu.Lock()
	p.code, p.exited, p.stderr = code, true, stderr
	p.mu.Unlock()
	close(p.done)
}

// Done implements job.Process. It stays open when the executor is closed
// before the container exits; the container has not exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode implements job.Process.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.exited
}

// Stderr implements job.Process.
func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr
}

// Verify Executor implements job.Executor
var _ job.Executor = (*Executor)(nil)
