// Package health answers the liveness and readiness probes.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ReadinessChecker reports whether runs can be started.
// Implemented by job executors.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded" // passing, but slower than expected
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Ready reports whether the instance should receive traffic. A degraded
// instance still does.
func (r *Response) Ready() bool {
	return r.Status != StatusUnhealthy
}

type check func(ctx context.Context) error

// Checker runs the readiness checks and caches their outcome briefly so
// probes do not hammer the docker daemon.
type Checker struct {
	checks   map[string]check
	timeout  time.Duration
	slow     time.Duration
	cacheFor time.Duration

	mu           sync.Mutex
	lastCheck    time.Time
	cached       *Response
	shuttingDown bool
}

// NewChecker checks the executor and that tempRoot can take job files.
func NewChecker(executor ReadinessChecker, tempRoot string) *Checker {
	return &Checker{
		checks: map[string]check{
			"executor":  executorReady(executor),
			"temp_root": writableDir(tempRoot),
		},
		timeout:  5 * time.Second,
		slow:     2 * time.Second,
		cacheFor: time.Second,
	}
}

// Liveness always succeeds while the process can serve HTTP.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{Status: StatusHealthy}
}

// Readiness runs every check concurrently and folds them into one status.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}
	if c.cached != nil && time.Since(c.lastCheck) < c.cacheFor {
		cached := c.cached
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(c.checks))
	)
	for name, fn := range c.checks {
		wg.Go(func() {
			res := c.run(ctx, fn)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		})
	}
	wg.Wait()

	response := &Response{Status: StatusHealthy, Checks: results}
	for _, res := range results {
		switch res.Status {
		case StatusUnhealthy:
			response.Status = StatusUnhealthy
		case StatusDegraded:
			if response.Status == StatusHealthy {
				response.Status = StatusDegraded
			}
		}
	}

	c.mu.Lock()
	if !c.shuttingDown {
		c.cached = response
		c.lastCheck = time.Now()
	}
	c.mu.Unlock()
	return response
}

func (c *Checker) run(ctx context.Context, fn check) CheckResult {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	res := CheckResult{Status: StatusHealthy, LatencyMS: elapsed.Milliseconds()}
	switch {
	case err != nil:
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	case elapsed > c.slow:
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("took %s", elapsed.Round(time.Millisecond))
	}
	return res
}

// SetShuttingDown makes Readiness fail from now on so load balancers drain
// the instance before the server stops.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cached = nil
}

func executorReady(executor ReadinessChecker) check {
	return func(ctx context.Context) error {
		if executor == nil {
			return errors.New("executor not configured")
		}
		return executor.Ready(ctx)
	}
}

// writableDir checks that uploads and generated configs can be written
// under dir.
func writableDir(dir string) check {
	return func(context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		f, err := os.CreateTemp(dir, ".readyz-*")
		if err != nil {
			return fmt.Errorf("%s is not writable: %w", dir, err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}
}
