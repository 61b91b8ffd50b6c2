// Package policy decides which signature parameters are shown to users and
// what value each one starts with.
package policy

import "tomohub/internal/catalog"

// Required marks a parameter the user has to fill in.
const Required = "REQUIRED"

// discard lists parameters the pipeline runner supplies itself.
var discard = map[string]struct{}{
	"in_file":        {},
	"data_in":        {},
	"tomo":           {},
	"arr":            {},
	"prj":            {},
	"data":           {},
	"ncore":          {},
	"nchunk":         {},
	"flats":          {},
	"flat":           {},
	"dark":           {},
	"darks":          {},
	"theta":          {},
	"out":            {},
	"ang":            {},
	"comm_rank":      {},
	"out_dir":        {},
	"angles":         {},
	"gpu_id":         {},
	"comm":           {},
	"offset":         {},
	"shift_xy":       {},
	"step_xy":        {},
	"jpeg_quality":   {},
	"watermark_vals": {},
}

// overrides replace the signature default regardless of what it is.
var overrides = map[string]any{
	"proj1":        "auto",
	"proj2":        "auto",
	"axis":         "auto",
	"asynchronous": true,
	"center":       "${{centering.side_outputs.centre_of_rotation}}",
	"glob_stats":   "${{statistics.side_outputs.glob_stats}}",
	"overlap":      "${{centering.side_outputs.overlap}}",
}

// Discarded reports whether name is hidden from templates.
func Discarded(name string) bool {
	_, ok := discard[name]
	return ok
}

// Override returns the fixed value for name, if there is one.
func Override(name string) (any, bool) {
	v, ok := overrides[name]
	return v, ok
}

// Value returns the starting value of a parameter: its override, else its real
// default (nil included), else Required.
func Value(p catalog.Parameter) any {
	if v, ok := Override(p.Name); ok {
		return v
	}
	if p.HasDefault {
		return p.Default
	}
	return Required
}

// DiscardedNames returns the discard set, for documentation and tests.
func DiscardedNames() []string {
	names := make([]string, 0, len(discard))
	for n := range discard {
		names = append(names, n)
	}
	return names
}

// OverriddenNames returns the names that have a fixed starting value.
func OverriddenNames() []string {
	names := make([]string, 0, len(overrides))
	for n := range overrides {
		names = append(names, n)
	}
	return names
}
