package policy

import (
	"testing"

	"tomohub/internal/catalog"
)

func TestValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		param catalog.Parameter
		want  any
	}{
		{"no default", catalog.Parameter{Name: "metadata_path"}, Required},
		{"real default", catalog.Parameter{Name: "kernel_size", Default: 3, HasDefault: true}, 3},
		{"nil default passes through", catalog.Parameter{Name: "recon_size", HasDefault: true}, nil},
		{"axis overridden", catalog.Parameter{Name: "axis", Default: 1, HasDefault: true}, "auto"},
		{"proj1 overridden without default", catalog.Parameter{Name: "proj1"}, "auto"},
		{"asynchronous overridden", catalog.Parameter{Name: "asynchronous", Default: false, HasDefault: true}, true},
		{"center reference", catalog.Parameter{Name: "center", HasDefault: true}, "${{centering.side_outputs.centre_of_rotation}}"},
		{"glob_stats reference", catalog.Parameter{Name: "glob_stats", HasDefault: true}, "${{statistics.side_outputs.glob_stats}}"},
		{"overlap reference", catalog.Parameter{Name: "overlap", Default: 0, HasDefault: true}, "${{centering.side_outputs.overlap}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Value(tt.param); got != tt.want {
				t.Errorf("Value() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiscarded(t *testing.T) {
	t.Parallel()
	for _, name := range DiscardedNames() {
		if !Discarded(name) {
			t.Errorf("Discarded(%q) = false", name)
		}
	}
	for _, name := range []string{"kernel_size", "center", "axis", "ratio"} {
		if Discarded(name) {
			t.Errorf("Discarded(%q) = true", name)
		}
	}
}

func TestOverridesAndDiscardsDisjoint(t *testing.T) {
	t.Parallel()
	for _, name := range OverriddenNames() {
		if Discarded(name) {
			t.Errorf("%q is both discarded and overridden", name)
		}
	}
}
