// Package testutil provides polling helpers and on-disk fixtures for tests
// of packages that launch runs or read their output.
package testutil

import (
	"os"
	"testing"
	"time"
)

// WaitOptions bounds a poll.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitOption adjusts WaitOptions.
type WaitOption func(*WaitOptions)

// WithTimeout sets the maximum wait time (default: 30s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Timeout = d
	}
}

// WithInterval sets the polling interval (default: 100ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *WaitOptions) {
		o.Interval = d
	}
}

func defaultOptions() WaitOptions {
	return WaitOptions{
		Timeout:  30 * time.Second,
		Interval: 100 * time.Millisecond,
	}
}

// Eventually calls fetch until done accepts its result or the timeout
// passes. It returns the last fetched value, which lets a test poll a
// status endpoint and then assert on the final payload without a refetch.
func Eventually[T any](tb testing.TB, fetch func() T, done func(T) bool, opts ...WaitOption) (T, bool) {
	tb.Helper()

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	timeout := time.NewTimer(o.Timeout)
	defer timeout.Stop()
	tick := time.NewTicker(o.Interval)
	defer tick.Stop()

	for {
		v := fetch()
		if done(v) {
			return v, true
		}
		select {
		case <-timeout.C:
			return v, false
		case <-tick.C:
		}
	}
}

// MustEventually is Eventually that fails the test on timeout, reporting
// the last value seen.
func MustEventually[T any](tb testing.TB, fetch func() T, done func(T) bool, opts ...WaitOption) T {
	tb.Helper()
	v, ok := Eventually(tb, fetch, done, opts...)
	if !ok {
		tb.Fatalf("timed out waiting; last value %+v", v)
	}
	return v
}

// WaitFor polls until condition returns true. It reports false on timeout.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()
	_, ok := Eventually(tb, condition, func(met bool) bool { return met }, opts...)
	return ok
}

// MustWaitFor polls until condition returns true or fails the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}

// WaitForFile polls until path exists, as a run's user.log or job_data.json
// appears some time after launch.
func WaitForFile(tb testing.TB, path string, opts ...WaitOption) bool {
	tb.Helper()
	return WaitFor(tb, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, opts...)
}

// MustWaitForFile polls until path exists or fails the test on timeout.
func MustWaitForFile(tb testing.TB, path string, opts ...WaitOption) {
	tb.Helper()
	if !WaitForFile(tb, path, opts...) {
		tb.Fatalf("timed out waiting for %s", path)
	}
}
