package job_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tomohub/internal/apperrors"
	"tomohub/internal/job"
	"tomohub/internal/job/jobtest"
	"tomohub/internal/testutil"
)

var launchTime = time.Date(2026, 10, 19, 14, 3, 59, 0, time.UTC)

func newRegistry(t *testing.T, exec *jobtest.Executor) *job.Registry {
	t.Helper()
	var n atomic.Int64
	reg, err := job.NewRegistry(job.RegistryConfig{
		Executor: exec,
		Now:      func() time.Time { return launchTime.Add(time.Duration(n.Load()) * time.Second) },
		NewID:    func() string { return fmt.Sprintf("job-%d", n.Add(1)) },
	})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	t.Cleanup(func() {
		if p := exec.Last(); p != nil {
			p.Exit(0, "")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Close(ctx)
	})
	return reg
}

func TestNewRegistry_RequiresExecutor(t *testing.T) {
	t.Parallel()
	if _, err := job.NewRegistry(job.RegistryConfig{}); err == nil {
		t.Error("expected error without executor")
	}
}

func TestLaunch_StartsCommand(t *testing.T) {
	t.Parallel()
	exec := &jobtest.Executor{}
	reg := newRegistry(t, exec)
	outputRoot := filepath.Join(t.TempDir(), "out", "nested")

	j, err := reg.Launch(context.Background(), job.LaunchRequest{
		InputPath:  "/data/scan.nxs",
		ConfigPath: "/tmp/config.yaml",
		OutputRoot: outputRoot,
	})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}

	if info, err := os.Stat(outputRoot); err != nil || !info.IsDir() {
		t.Errorf("output root not created: %v", err)
	}
	wantFolder := "19-10-2026_14_03_59_output"
	if j.FolderName != wantFolder {
		t.Errorf("FolderName = %q, want %q", j.FolderName, wantFolder)
	}
	if want := filepath.Join(outputRoot, wantFolder, "user.log"); j.LogPath != want {
		t.Errorf("LogPath = %q, want %q", j.LogPath, want)
	}

	started := exec.Started()
	if len(started) != 1 {
		t.Fatalf("started %d commands, want 1", len(started))
	}
	wantArgs := []string{"run", "/data/scan.nxs", "/tmp/config.yaml", outputRoot, "--output-folder-name", wantFolder}
	if diff := cmp.Diff(wantArgs, started[0].Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if started[0].JobID != j.ID {
		t.Errorf("command job id = %q, want %q", started[0].JobID, j.ID)
	}
}

func TestLaunch_ConflictWhileRunning(t *testing.T) {
	t.Parallel()
	exec := &jobtest.Executor{}
	reg := newRegistry(t, exec)
	req := job.LaunchRequest{InputPath: "in", ConfigPath: "cfg", OutputRoot: t.TempDir()}

	if _, err := reg.Launch(context.Background(), req); err != nil {
		t.Fatalf("first Launch() error: %v", err)
	}
	_, err := reg.Launch(context.Background(), req)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("second Launch() error = %v, want conflict", err)
	}
	if n := len(exec.Started()); n != 1 {
		t.Errorf("started %d processes, want 1", n)
	}

	exec.Last().Exit(0, "")
	if _, err := reg.Launch(context.Background(), req); err != nil {
		t.Errorf("Launch() after exit error: %v", err)
	}
}

func TestLaunch_ConcurrentCallsAdmitOne(t *testing.T) {
	t.Parallel()
	exec := &jobtest.Executor{}
	reg := newRegistry(t, exec)
	req := job.LaunchRequest{InputPath: "in", ConfigPath: "cfg", OutputRoot: t.TempDir()}

	var ok, conflicts atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := reg.Launch(context.Background(), req)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperrors.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if ok.Load() != 1 || conflicts.Load() != 9 {
		t.Errorf("got %d launched, %d conflicts; want 1 and 9", ok.Load(), conflicts.Load())
	}
}

func TestLaunch_StartFailureReleasesSlot(t *testing.T) {
	t.Parallel()
	exec := &jobtest.Executor{}
	reg := newRegistry(t, exec)
	req := job.LaunchRequest{InputPath: "in", ConfigPath: "cfg", OutputRoot: t.TempDir()}

	exec.FailStart(errors.New("exec: \"httomo\": executable file not found in $PATH"))
	_, err := reg.Launch(context.Background(), req)
	if !errors.Is(err, apperrors.ErrInternal) {
		t.Fatalf("Launch() error = %v, want internal", err)
	}
	if reg.Latest() != nil {
		t.Error("failed launch should not be tracked")
	}

	exec.FailStart(nil)
	if _, err := reg.Launch(context.Background(), req); err != nil {
		t.Errorf("Launch() after failed start error: %v", err)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	exec := &jobtest.Executor{CreateLog: true}
	reg := newRegistry(t, exec)

	if _, err := reg.Status(""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Status() with no runs error = %v, want not found", err)
	}

	j, err := reg.Launch(context.Background(), job.LaunchRequest{InputPath: "in", ConfigPath: "cfg", OutputRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}

	st, err := reg.Status("")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	want := &job.Status{ID: j.ID, State: job.StateRunning, Message: "Process is running with output in " + j.OutputDir()}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("running status mismatch (-want +got):\n%s", diff)
	}

	exec.Last().Exit(2, "Traceback: boom")
	st, err = reg.Status(j.ID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	stderr := "Traceback: boom"
	want = &job.Status{ID: j.ID, State: job.StateFailed, Message: "HTTOMO process failed with exit code 2", Error: &stderr}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("failed status mismatch (-want +got):\n%s", diff)
	}

	if _, err := reg.Status("missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Status(missing) error = %v, want not found", err)
	}
}

func TestStatus_Completed(t *testing.T) {
	t.Parallel()
	exec := &jobtest.Executor{}
	reg := newRegistry(t, exec)

	j, err := reg.Launch(context.Background(), job.LaunchRequest{InputPath: "in", ConfigPath: "cfg", OutputRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	st, _ := reg.Status(j.ID)
	if st.Message != "Process is running" {
		t.Errorf("message before output exists = %q", st.Message)
	}

	exec.Last().Exit(0, "warnings only")
	testutil.MustWaitFor(t, j.Exited, testutil.WithTimeout(time.Second), testutil.WithInterval(5*time.Millisecond))
	st, err = reg.Status(j.ID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if st.State != job.StateCompleted || st.Error != nil || st.Message != "HTTOMO process completed successfully" {
		t.Errorf("unexpected completed status %+v", st)
	}
}

func TestRegistry_Lookups(t *testing.T) {
	t.Parallel()
	exec := &jobtest.Executor{}
	reg := newRegistry(t, exec)
	rootA, rootB := t.TempDir(), t.TempDir()

	first, err := reg.Launch(context.Background(), job.LaunchRequest{InputPath: "in", ConfigPath: "cfg", OutputRoot: rootA})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	exec.Last().Exit(0, "")
	second, err := reg.Launch(context.Background(), job.LaunchRequest{InputPath: "in", ConfigPath: "cfg", OutputRoot: rootB})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}

	var ids []string
	for _, j := range reg.List() {
		ids = append(ids, j.ID)
	}
	if diff := cmp.Diff([]string{second.ID, first.ID}, ids); diff != "" {
		t.Errorf("List() order mismatch (-want +got):\n%s", diff)
	}
	if reg.Latest() != second {
		t.Error("Latest() should be the second run")
	}
	if got := reg.FindByOutputRoot(rootA); got != first {
		t.Errorf("FindByOutputRoot(rootA) = %v", got)
	}
	if got := reg.FindByOutputRoot(t.TempDir()); got != nil {
		t.Errorf("FindByOutputRoot(unknown) = %v, want nil", got)
	}
	if !reg.IsLogPath(second.LogPath) || reg.IsLogPath(filepath.Join(rootB, "user.log")) {
		t.Error("IsLogPath() mismatch")
	}
}

func TestClose_DoesNotWaitForRunningRun(t *testing.T) {
	t.Parallel()
	exec := &jobtest.Executor{}
	reg := newRegistry(t, exec)

	j, err := reg.Launch(context.Background(), job.LaunchRequest{InputPath: "in", ConfigPath: "cfg", OutputRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start := time.Now()
	if err := reg.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close() took %v with a run still going", elapsed)
	}
	if ctx.Err() != nil {
		t.Error("Close() ran until its deadline")
	}
	if j.Exited() {
		t.Error("closing the registry must not end the run")
	}
}
