// Package jobtest provides an in-memory executor for tests of packages that
// launch runs.
package jobtest

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"tomohub/internal/job"
)

// Executor records started commands and hands out controllable processes.
type Executor struct {
	mu       sync.Mutex
	started  []job.Command
	procs    []*Process
	startErr error
	readyErr error

	// CreateLog makes Start write an empty run log, as the real runner does.
	CreateLog bool
}

// Name implements job.Executor.
func (e *Executor) Name() string { return "fake" }

// Start implements job.Executor.
func (e *Executor) Start(_ context.Context, cmd job.Command) (job.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return nil, e.startErr
	}
	if e.CreateLog {
		dir := filepath.Join(cmd.OutputRoot, cmd.FolderName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, job.LogFileName), nil, 0o644); err != nil {
			return nil, err
		}
	}
	p := NewProcess()
	e.started = append(e.started, cmd)
	e.procs = append(e.procs, p)
	return p, nil
}

// Ready implements job.Executor.
func (e *Executor) Ready(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readyErr
}

// Close implements job.Executor.
func (e *Executor) Close() error { return nil }

// FailStart makes subsequent starts fail with err.
func (e *Executor) FailStart(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErr = err
}

// SetReady sets the error Ready returns.
func (e *Executor) SetReady(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readyErr = err
}

// Started returns the commands started so far.
func (e *Executor) Started() []job.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]job.Command(nil), e.started...)
}

// Last returns the most recently started process, or nil.
func (e *Executor) Last() *Process {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.procs) == 0 {
		return nil
	}
	return e.procs[len(e.procs)-1]
}

// Process is a run that exits when told to.
type Process struct {
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	code   int
	exited bool
	stderr string
}

// NewProcess returns a running process.
func NewProcess() *Process {
	return &Process{done: make(chan struct{})}
}

// Exit ends the process with code and stderr. Later calls are ignored.
func (p *Process) Exit(code int, stderr string) {
	p.once.Do(func() {
		p.mu.Lock()
		p.code, p.exited, p.stderr = code, true, stderr
		p.mu.Unlock()
		close(p.done)
	})
}

// Done implements job.Process.
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
