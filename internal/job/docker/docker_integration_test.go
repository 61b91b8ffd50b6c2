//go:build integration

package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tomohub/internal/job"
	"tomohub/internal/testutil"
)

const testImage = "alpine:latest"

// newRunDir returns an output root holding a "run" script. The container runs
// "sh run <input> <config> <output> --output-folder-name <folder>" from there.
func newRunDir(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "run"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	e, err := New(context.Background(), Config{Image: testImage, Executable: "sh"})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	if err := e.Ready(context.Background()); err != nil {
		t.Skipf("Docker daemon not reachable: %v", err)
	}
	return e
}

func waitExit(t *testing.T, p job.Process) int {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Minute):
		t.Fatal("container did not exit")
	}
	code, _ := p.ExitCode()
	return code
}

func TestExecutor_WritesLogIntoBoundOutput(t *testing.T) {
	e := newExecutor(t)
	out := newRunDir(t, `mkdir -p "$3/$5" && echo "started $1" > "$3/$5/user.log"`+"\n")

	cmd := job.Command{
		JobID:      fmt.Sprintf("it-%d", time.Now().UnixNano()),
		InputPath:  filepath.Join(out, "scan.nxs"),
		ConfigPath: filepath.Join(out, "config.yaml"),
		OutputRoot: out,
		FolderName: "19-10-2026_10_00_00_output",
	}
	p, err := e.Start(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if code := waitExit(t, p); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, p.Stderr())
	}

	data, err := os.ReadFile(filepath.Join(out, cmd.FolderName, job.LogFileName))
	if err != nil {
		t.Fatalf("log not written to host: %v", err)
	}
	if !strings.Contains(string(data), "started "+cmd.InputPath) {
		t.Errorf("log = %q", data)
	}
}

func TestExecutor_CapturesStderrOnFailure(t *testing.T) {
	e := newExecutor(t)
	out := newRunDir(t, "echo 'to stdout'\necho 'Traceback: bad centre' >&2\nexit 4\n")

	p, err := e.Start(context.Background(), job.Command{
		JobID:      fmt.Sprintf("it-%d", time.Now().UnixNano()),
		InputPath:  filepath.Join(out, "scan.nxs"),
		ConfigPath: filepath.Join(out, "config.yaml"),
		OutputRoot: out,
		FolderName: "f_output",
	})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if code := waitExit(t, p); code != 4 {
		t.Errorf("exit code = %d, want 4", code)
	}
	if got := p.Stderr(); !strings.Contains(got, "Traceback: bad centre") || strings.Contains(got, "to stdout") {
		t.Errorf("Stderr() = %q", got)
	}

	testutil.MustWaitFor(t, func() bool { return e.state.len() == 0 }, testutil.WithTimeout(30*time.Second))
}
