// Package process runs the reconstruction executable as a child process.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"tomohub/internal/job"
)

// DefaultStderrLimit bounds the captured standard error.
const DefaultStderrLimit = 1 << 20

// Config configures an Executor.
type Config struct {
	Executable  string // Name or path of the reconstruction executable
	StderrLimit int    // Bytes of stderr kept (default DefaultStderrLimit)
}

// Executor starts runs as local child processes.
type Executor struct {
	executable  string
	stderrLimit int
	logger      *slog.Logger
}

// New creates a process executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Executable == "" {
		return nil, fmt.Errorf("executable is required")
	}
	e := &Executor{
		executable:  cfg.Executable,
		stderrLimit: cfg.StderrLimit,
		logger:      slog.With("component", "process-executor"),
	}
	if e.stderrLimit <= 0 {
		e.stderrLimit = DefaultStderrLimit
	}
	return e, nil
}

// Name implements job.Executor.
func (e *Executor) Name() string { return "process" }

// Start implements job.Executor. The child is not tied to ctx.
func (e *Executor) Start(_ context.Context, cmd job.Command) (job.Process, error) {
	c := exec.Command(e.executable, cmd.Args()...)
	c.Stdout = io.Discard

	p := &Process{
		done:   make(chan struct{}),
		stderr: &tailBuffer{limit: e.stderrLimit},
	}
	c.Stderr = p.stderr

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", e.executable, err)
	}
	e.logger.Debug("Process started", "jobId", cmd.JobID, "pid", c.Process.Pid)

	go p.wait(c)
	return p, nil
}

// Ready implements job.Executor.
func (e *Executor) Ready(context.Context) error {
	if _, err := exec.LookPath(e.executable); err != nil {
		return fmt.Errorf("executable %q not available: %w", e.executable, err)
	}
	return nil
}

// Close implements job.Executor. Children keep running.
func (e *Executor) Close() error { return nil }

// Process is a running child.
type Process struct {
	done   chan struct{}
	stderr *tailBuffer

	mu   sync.Mutex
	code int
	ok   bool
}

func (p *Process) wait(c *exec.Cmd) {
	err := c.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
			p.stderr.Write([]byte(err.Error()))
		}
	}
	p.mu.Lock()
	p.code, p.ok = code, true
	p.mu.Unlock()
	close(p.done)
}

// Done implements job.Process.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode implements job.Process.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.ok
}

// Stderr implements job.Process.
func (p *Process) Stderr() string { return p.stderr.String() }

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(data)
	if len(data) >= b.limit {
		b.buf.Reset()
		data = data[len(data)-b.limit:]
	} else if over := b.buf.Len() + len(data) - b.limit; over > 0 {
		b.buf.Next(over)
	}
	b.buf.Write(data)
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
