package docker

import (
	"sync"

	"tomohub/internal/apperrors"
)

// runState holds the runtime state for a single run.
type runState struct {
	containerID string
}

// stateRepo tracks the containers of runs that have not exited yet.
type stateRepo struct {
	mu   sync.RWMutex
	runs map[string]*runState
}

func newStateRepo() *stateRepo {
	return &stateRepo{
		runs: make(map[string]*runState),
	}
}

// reserve claims a job ID. The slot holds nil until commit is called.
func (r *stateRepo) reserve(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[jobID]; exists {
		return apperrors.Conflict("job", "job "+jobID+" already has a container")
	}
	r.runs[jobID] = nil
	return nil
}

// commit fills in a reserved slot.
func (r *stateRepo) commit(jobID string, rs *runState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[jobID] = rs
}

// release removes a run. Returns the state if it existed.
func (r *stateRepo) release(jobID string) (*runState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, exists := r.runs[jobID]
	if exists {
		delete(r.runs, jobID)
	}
	return rs, exists
}

// len returns the number of tracked runs.
func (r *stateRepo) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
