package pipeline

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"tomohub/internal/apperrors"
)

// Sweep tags understood by the reconstruction runner.
const (
	TagSweepRange = "!SweepRange"
	TagSweep      = "!Sweep"
)

// MaxSweepValues bounds how many values one sweep may produce; each value is
// a full reconstruction.
const MaxSweepValues = 1000

// SweepSpec is an inclusive integer range of parameter values.
type SweepSpec struct {
	Start int `json:"start" yaml:"start"`
	Stop  int `json:"stop" yaml:"stop"`
	Step  int `json:"step" yaml:"step"`
}

// Validate checks that the range terminates with between 1 and
// MaxSweepValues values.
func (s SweepSpec) Validate() error {
	switch {
	case s.Step == 0:
		return apperrors.Validation("step", "step must not be zero")
	case s.Step > 0 && s.Stop < s.Start:
		return apperrors.Validation("stop", fmt.Sprintf("stop (%d) must not be below start (%d) for a positive step", s.Stop, s.Start))
	case s.Step < 0 && s.Stop > s.Start:
		return apperrors.Validation("stop", fmt.Sprintf("stop (%d) must not be above start (%d) for a negative step", s.Stop, s.Start))
	}
	switch n := s.count(); {
	case n == 0:
		return apperrors.Validation("stop", fmt.Sprintf("range %d to %d with step %d has no values", s.Start, s.Stop, s.Step))
	case n > MaxSweepValues:
		return apperrors.Validation("step", fmt.Sprintf("range %d to %d with step %d has more than %d values", s.Start, s.Stop, s.Step, MaxSweepValues))
	}
	return nil
}

// Len returns the number of values, or 0 for an invalid range.
func (s SweepSpec) Len() int {
	if s.Validate() != nil {
		return 0
	}
	return int(s.count())
}

// count follows range(start, stop+1, step) without forming stop+1: a
// positive step reaches stop, a negative one stops above stop+1. Distances
// are taken in uint64 so extreme bounds do not overflow.
func (s SweepSpec) count() uint64 {
	switch {
	case s.Step > 0 && s.Stop >= s.Start:
		return (uint64(s.Stop)-uint64(s.Start))/uint64(s.Step) + 1
	case s.Step < 0 && s.Stop <= s.Start:
		d := uint64(s.Start) - uint64(s.Stop)
		if d <= 1 {
			return 0
		}
		return (d-2)/(uint64(-(s.Step+1))+1) + 1
	}
	return 0
}

// Values materialises the range: start, start+step, ... up to and including
// stop. Validate bounds its length.
func (s SweepSpec) Values() []int {
	n := s.Len()
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = s.Start + i*s.Step
	}
	return out
}

// Node encodes the range as a !SweepRange mapping.
func (s SweepSpec) Node() *yaml.Node {
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  TagSweepRange,
		Content: []*yaml.Node{
			scalar("start"), intScalar(s.Start),
			scalar("stop"), intScalar(s.Stop),
			scalar("step"), intScalar(s.Step),
		},
	}
}

// Sweep designates the stage parameter that is run across several values.
type Sweep struct {
	MethodID   string `json:"methodId"`
	ParamName  string `json:"paramName"`
	Kind       string `json:"sweepType"`            // "range" or any other value for a discrete list
	StageIndex *int   `json:"stageIndex,omitempty"` // Pins the stage when several share MethodID
}

// Tag returns the YAML tag for the sweep kind.
func (s Sweep) Tag() string {
	if s.Kind == "range" {
		return TagSweepRange
	}
	return TagSweep
}

// Validate checks that the designation names a stage and parameter.
func (s Sweep) Validate() error {
	if s.MethodID == "" {
		return apperrors.Validation("methodId", "sweep methodId is required")
	}
	if s.ParamName == "" {
		return apperrors.Validation("paramName", "sweep paramName is required")
	}
	if s.Kind == "" {
		return apperrors.Validation("sweepType", "sweep sweepType is required")
	}
	if s.StageIndex != nil && *s.StageIndex < 0 {
		return apperrors.Validation("stageIndex", "stageIndex must not be negative")
	}
	return nil
}
