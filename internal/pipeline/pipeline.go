// Package pipeline builds the YAML configuration documents consumed by the
// reconstruction runner.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"tomohub/internal/apperrors"
)

// Stage is one method of a pipeline.
type Stage struct {
	Method     string
	ModulePath string
	Parameters *yaml.Node // Mapping node; nil encodes as {}
	extra      []*yaml.Node
}

// NewStage creates a stage from plain Go parameter values, encoded in the order given.
func NewStage(method, modulePath string, params ...Param) (Stage, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range params {
		val := p.Node
		if val == nil {
			val = &yaml.Node{}
			if err := val.Encode(p.Value); err != nil {
				return Stage{}, fmt.Errorf("encode %s.%s: %w", method, p.Name, err)
			}
		}
		node.Content = append(node.Content, scalar(p.Name), val)
	}
	if len(node.Content) == 0 {
		node.Style = yaml.FlowStyle
	}
	return Stage{Method: method, ModulePath: modulePath, Parameters: node}, nil
}

// Param is a named parameter value for NewStage. Node, when set, is used as is.
type Param struct {
	Name  string
	Value any
	Node  *yaml.Node
}

// Param returns the value node of a parameter, or nil.
func (s Stage) Param(name string) *yaml.Node {
	if i := s.paramIndex(name); i >= 0 {
		return s.Parameters.Content[i]
	}
	return nil
}

// paramIndex returns the index of the named parameter's value in
// Parameters.Content, or -1.
func (s Stage) paramIndex(name string) int {
	if s.Parameters == nil || s.Parameters.Kind != yaml.MappingNode {
		return -1
	}
	for i := 0; i+1 < len(s.Parameters.Content); i += 2 {
		if s.Parameters.Content[i].Value == name {
			return i + 1
		}
	}
	return -1
}

// DecodeStages parses a JSON (or YAML) array of stage objects.
// Key order inside each stage and its parameters is preserved.
func DecodeStages(data []byte) ([]Stage, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.Validation("config_data", fmt.Sprintf("invalid pipeline data: %v", err))
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.SequenceNode {
		return nil, apperrors.Validation("config_data", "pipeline data must be a list of stages")
	}

	seq := doc.Content[0]
	stages := make([]Stage, 0, len(seq.Content))
	for i, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			return nil, apperrors.Validation("config_data", fmt.Sprintf("stage %d is not an object", i))
		}
		normalize(item)
		stage, err := stageFromNode(i, item)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// DecodeStage parses a single JSON stage object, such as a loader context.
func DecodeStage(data []byte) (Stage, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Stage{}, apperrors.Validation("loader_context", fmt.Sprintf("invalid loader context: %v", err))
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return Stage{}, apperrors.Validation("loader_context", "loader context must be an object")
	}
	node := doc.Content[0]
	normalize(node)
	stage, err := stageFromNode(0, node)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			appErr.Field = "loader_context"
		}
		return Stage{}, err
	}
	return stage, nil
}

func stageFromNode(index int, node *yaml.Node) (Stage, error) {
	var s Stage
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "method":
			s.Method = val.Value
		case "module_path":
			s.ModulePath = val.Value
		case "parameters":
			if val.Kind != yaml.MappingNode && !isNull(val) {
				return Stage{}, apperrors.Validation("config_data", fmt.Sprintf("stage %d: parameters must be an object", index))
			}
			if val.Kind == yaml.MappingNode {
				s.Parameters = val
			}
		default:
			s.extra = append(s.extra, key, val)
		}
	}
	if s.Method == "" {
		return Stage{}, apperrors.Validation("config_data", fmt.Sprintf("stage %d: method is required", index))
	}
	return s, nil
}

// Build serialises stages and tags the designated sweep parameter.
// The first stage whose method matches is used unless the sweep pins a stage index.
// The caller's stages are left untouched.
func Build(stages []Stage, sweep *Sweep) ([]byte, error) {
	if sweep != nil {
		if err := sweep.Validate(); err != nil {
			return nil, err
		}
		si, vi, err := findSweepTarget(stages, *sweep)
		if err != nil {
			return nil, err
		}
		stages = slices.Clone(stages)
		stages[si] = stages[si].withTagged(vi, sweep.Tag())
	}

	root := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, s := range stages {
		root.Content = append(root.Content, s.node())
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, apperrors.Internal("pipeline.build", err)
	}
	if err := enc.Close(); err != nil {
		return nil, apperrors.Internal("pipeline.build", err)
	}
	return buf.Bytes(), nil
}

// findSweepTarget returns the stage index and the index of the parameter
// value within that stage's Parameters.Content.
func findSweepTarget(stages []Stage, sweep Sweep) (int, int, error) {
	if sweep.StageIndex != nil {
		i := *sweep.StageIndex
		if i >= len(stages) || stages[i].Method != sweep.MethodID {
			return 0, 0, apperrors.Validation("stageIndex",
				fmt.Sprintf("stage %d is not a %s stage", i, sweep.MethodID))
		}
		vi, err := paramOrError(stages[i], sweep)
		return i, vi, err
	}
	for i, s := range stages {
		if s.Method == sweep.MethodID {
			vi, err := paramOrError(s, sweep)
			return i, vi, err
		}
	}
	return 0, 0, apperrors.Validation("methodId", fmt.Sprintf("no stage runs method %s", sweep.MethodID))
}

func paramOrError(s Stage, sweep Sweep) (int, error) {
	if i := s.paramIndex(sweep.ParamName); i >= 0 {
		return i, nil
	}
	return 0, apperrors.Validation("paramName",
		fmt.Sprintf("stage %s has no parameter %s", s.Method, sweep.ParamName))
}

// withTagged returns a copy of s whose parameter value at Content[vi]
// carries tag. The parameters mapping is copied; other values are shared.
func (s Stage) withTagged(vi int, tag string) Stage {
	params := *s.Parameters
	params.Content = slices.Clone(s.Parameters.Content)
	tagged := *params.Content[vi]
	tagged.Tag = tag
	tagged.Style &^= yaml.FlowStyle
	params.Content[vi] = &tagged
	s.Parameters = &params
	return s
}

func (s Stage) node() *yaml.Node {
	params := s.Parameters
	if params == nil {
		params = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: yaml.FlowStyle}
	}
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	n.Content = append(n.Content, scalar("method"), scalar(s.Method))
	n.Content = append(n.Content, scalar("module_path"), scalar(s.ModulePath))
	n.Content = append(n.Content, scalar("parameters"), params)
	n.Content = append(n.Content, s.extra...)
	return n
}

// normalize drops the JSON presentation (flow collections, quoted scalars)
// so documents encode in block style. Strings a YAML 1.1 reader would take
// for another type keep single quotes; other quoting is re-derived on encode.
func normalize(n *yaml.Node) {
	n.Style = 0
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str" && needsQuotes(n.Value) {
		n.Style = yaml.SingleQuotedStyle
	}
	for _, c := range n.Content {
		normalize(c)
	}
	if n.Kind == yaml.MappingNode && len(n.Content) == 0 {
		n.Style = yaml.FlowStyle
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func intScalar(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}
