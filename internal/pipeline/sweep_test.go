package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tomohub/internal/apperrors"
)

func TestSweepSpecValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		spec SweepSpec
		want []int
	}{
		{"inclusive stop", SweepSpec{Start: 10, Stop: 20, Step: 2}, []int{10, 12, 14, 16, 18, 20}},
		{"stop not on step", SweepSpec{Start: 10, Stop: 15, Step: 2}, []int{10, 12, 14}},
		{"single value", SweepSpec{Start: 5, Stop: 5, Step: 1}, []int{5}},
		{"negative step", SweepSpec{Start: 20, Stop: 10, Step: -5}, []int{20, 15}},
		{"zero step", SweepSpec{Start: 1, Stop: 5, Step: 0}, nil},
		{"empty positive", SweepSpec{Start: 5, Stop: 1, Step: 1}, nil},
		{"negative step excludes stop+1", SweepSpec{Start: 6, Stop: 5, Step: -1}, nil},
		{"top of int range", SweepSpec{Start: math.MaxInt - 2, Stop: math.MaxInt, Step: 1}, []int{math.MaxInt - 2, math.MaxInt - 1, math.MaxInt}},
		{"bottom of int range", SweepSpec{Start: math.MinInt + 4, Stop: math.MinInt, Step: -2}, []int{math.MinInt + 4, math.MinInt + 2}},
		{"too many values", SweepSpec{Start: 0, Stop: 2_000_000_000, Step: 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, tt.spec.Values()); diff != "" {
				t.Errorf("Values() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSweepSpecValidate(t *testing.T) {
	t.Parallel()
	valid := []SweepSpec{{10, 20, 2}, {5, 5, 1}, {20, 10, -1}, {1, MaxSweepValues, 1}}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%+v) error: %v", s, err)
		}
	}
	invalid := []SweepSpec{
		{1, 2, 0}, {5, 1, 1}, {1, 5, -1},
		{5, 5, -1},             // range(5, 6, -1) is empty
		{0, MaxSweepValues, 1}, // one value over the cap
		{math.MinInt, math.MaxInt, 1},
	}
	for _, s := range invalid {
		if err := s.Validate(); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("Validate(%+v) = %v, want validation error", s, err)
		}
	}
}

func TestSweepTag(t *testing.T) {
	t.Parallel()
	if got := (Sweep{Kind: "range"}).Tag(); got != "!SweepRange" {
		t.Errorf("range tag = %q", got)
	}
	if got := (Sweep{Kind: "values"}).Tag(); got != "!Sweep" {
		t.Errorf("list tag = %q", got)
	}
}

func TestSweepSpecLen(t *testing.T) {
	t.Parallel()
	tests := []struct {
		spec SweepSpec
		want int
	}{
		{SweepSpec{Start: 10, Stop: 20, Step: 2}, 6},
		{SweepSpec{Start: 20, Stop: 10, Step: -1}, 9},
		{SweepSpec{Start: math.MaxInt - 2, Stop: math.MaxInt, Step: 1}, 3},
		{SweepSpec{Start: 0, Stop: math.MaxInt, Step: math.MaxInt / 10}, 11},
		{SweepSpec{Start: 0, Stop: 2_000_000_000, Step: 1}, 0},
		{SweepSpec{Start: 1, Stop: 2, Step: 0}, 0},
	}
	for _, tt := range tests {
		if got := tt.spec.Len(); got != tt.want {
			t.Errorf("%+v.Len() = %d, want %d", tt.spec, got, tt.want)
		}
		if got := len(tt.spec.Values()); got != tt.want {
			t.Errorf("len(%+v.Values()) = %d, want %d", tt.spec, got, tt.want)
		}
	}
}
