package job

import (
	"path/filepath"
	"time"
)

// State constants
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateNotFound  = "not_found"
)

// LogFileName is the log the reconstruction runner writes into its output folder.
const LogFileName = "user.log"

// folderLayout names output folders after the launch time, e.g. 19-10-2026_14_03_59.
const folderLayout = "02-01-2006_15_04_05"

// Job is a launched run.
type Job struct {
	ID         string
	InputPath  string
	ConfigPath string
	OutputRoot string
	FolderName string
	LogPath    string
	Executor   string
	StartedAt  time.Time

	proc Process
}

// OutputDir returns the predicted output folder of the run.
func (j *Job) OutputDir() string {
	return filepath.Join(j.OutputRoot, j.FolderName)
}

// Exited reports whether the run has exited.
func (j *Job) Exited() bool {
	_, ok := j.proc.ExitCode()
	return ok
}

// Status is the externally visible state of a run.
type Status struct {
	ID      string  `json:"job_id,omitempty"`
	State   string  `json:"status"`
	Message string  `json:"message"`
	Error   *string `json:"error"`
}

// RunResponse is returned when a run has been launched.
type RunResponse struct {
	ID      string `json:"job_id"`
	Message string `json:"message"`
	Status  string `json:"status"`
	LogPath string `json:"log_path"`
}
