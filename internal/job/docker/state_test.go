package docker

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tomohub/internal/apperrors"
	"tomohub/internal/job"
)

func TestStateRepo_ReserveCommitRelease(t *testing.T) {
	t.Parallel()
	repo := newStateRepo()

	if err := repo.reserve("job-1"); err != nil {
		t.Fatalf("reserve() error: %v", err)
	}
	if err := repo.reserve("job-1"); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("second reserve() error = %v, want conflict", err)
	}

	repo.commit("job-1", &runState{containerID: "c-1"})
	if err := repo.reserve("job-1"); err == nil {
		t.Error("reserve() after commit should fail")
	}

	rs, ok := repo.release("job-1")
	if !ok || rs == nil || rs.containerID != "c-1" {
		t.Errorf("release() = %+v, %v", rs, ok)
	}
	if _, ok := repo.release("job-1"); ok {
		t.Error("second release() should report missing")
	}
	if err := repo.reserve("job-1"); err != nil {
		t.Errorf("reserve() after release error: %v", err)
	}
}

func TestStateRepo_ReleaseReserved(t *testing.T) {
	t.Parallel()
	repo := newStateRepo()
	_ = repo.reserve("job-1")

	rs, ok := repo.release("job-1")
	if !ok || rs != nil {
		t.Errorf("release() of reserved slot = %+v, %v; want nil, true", rs, ok)
	}
}

func TestStateRepo_ConcurrentReserve(t *testing.T) {
	t.Parallel()
	repo := newStateRepo()

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.reserve("job-1") == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("%d reservations succeeded, want 1", won)
	}
	if repo.len() != 1 {
		t.Errorf("len() = %d, want 1", repo.len())
	}
}

func TestBindMounts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cmd     jobCommand
		want    []string
		wantErr bool
	}{
		{
			name: "centre run shares one directory",
			cmd:  jobCommand{"/tmp/centre_reconstruction_1/scan.nxs", "/tmp/centre_reconstruction_1/config.yaml", "/tmp/centre_reconstruction_1"},
			want: []string{"/tmp/centre_reconstruction_1"},
		},
		{
			name: "separate directories",
			cmd:  jobCommand{"/data/scan.nxs", "/tmp/httomo_config_ab12cd34.yaml", "/results/"},
			want: []string{"/data", "/results", "/tmp"},
		},
		{
			name:    "relative path",
			cmd:     jobCommand{"scan.nxs", "/tmp/c.yaml", "/out"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mounts, err := bindMounts(tt.cmd.command())
			if (err != nil) != tt.wantErr {
				t.Fatalf("bindMounts() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			var got []string
			for _, m := range mounts {
				if m.Source != m.Target {
					t.Errorf("mount %s -> %s, want identical paths", m.Source, m.Target)
				}
				got = append(got, m.Source)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mounts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type jobCommand struct{ input, config, output string }

func (c jobCommand) command() job.Command {
	return job.Command{JobID: "j", InputPath: c.input, ConfigPath: c.config, OutputRoot: c.output, FolderName: "f_output"}
}
