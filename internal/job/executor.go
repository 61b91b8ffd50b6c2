// Package job launches reconstruction runs and tracks them until they exit.
package job

import "context"

// Command is one invocation of the reconstruction executable:
//
//	<executable> run <input> <config> <output-root> --output-folder-name <folder>
type Command struct {
	JobID      string
	InputPath  string
	ConfigPath string
	OutputRoot string
	FolderName string
}

// Args returns the executable's arguments.
func (c Command) Args() []string {
	return []string{"run", c.InputPath, c.ConfigPath, c.OutputRoot, "--output-folder-name", c.FolderName}
}

// Executor starts reconstruction runs.
//
// Runs are fire-and-forget: the service observes them only through their exit
// code, their standard error and the files they write. A run is never stopped
// by the service once started.
type Executor interface {
	// Name identifies the executor in logs and metrics.
	Name() string

	// Start launches cmd and returns once it is running.
	// The run outlives ctx; ctx only bounds the start itself.
	Start(ctx context.Context, cmd Command) (Process, error)

	// Ready checks that runs can be started.
	// For processes: the executable resolves on PATH.
	// For Docker: the daemon is reachable.
	Ready(ctx context.Context) error

	// Close releases resources held by the executor.
	// Running processes are NOT stopped.
	Close() error
}

// Process is a started run.
type Process interface {
	// Done is closed once the run has exited. A run still going when its
	// executor closes may never close it.
	Done() <-chan struct{}

	// ExitCode returns the exit code and true once the run has exited.
	ExitCode() (int, bool)

	// Stderr returns the captured standard error, possibly truncated to its tail.
	Stderr() string
}
