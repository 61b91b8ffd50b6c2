package template

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParameterInfo describes one user-facing parameter of a method.
type ParameterInfo struct {
	Type  string `json:"type" yaml:"type"`
	Value any    `json:"value" yaml:"value"`
	Desc  string `json:"desc" yaml:"desc"`
}

// Parameters is an ordered name to ParameterInfo mapping.
// It encodes as a JSON or YAML object in signature order.
type Parameters struct {
	names  []string
	byName map[string]ParameterInfo
}

// Set adds or replaces a parameter. New names are appended.
func (p *Parameters) Set(name string, info ParameterInfo) {
	if p.byName == nil {
		p.byName = make(map[string]ParameterInfo)
	}
	if _, ok := p.byName[name]; !ok {
		p.names = append(p.names, name)
	}
	p.byName[name] = info
}

// Get returns a parameter by name.
func (p Parameters) Get(name string) (ParameterInfo, bool) {
	info, ok := p.byName[name]
	return info, ok
}

// Names returns parameter names in order.
func (p Parameters) Names() []string {
	return append([]string(nil), p.names...)
}

// Len returns the number of parameters.
func (p Parameters) Len() int {
	return len(p.names)
}

// MarshalJSON encodes the parameters as an object in insertion order.
func (p Parameters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.byName[name])
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, keeping key order.
func (p *Parameters) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parameters: expected object")
	}
	*p = Parameters{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("parameters: expected key")
		}
		var info ParameterInfo
		if err := dec.Decode(&info); err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
		p.Set(name, info)
	}
	_, err = dec.Token()
	return err
}

// MarshalYAML encodes the parameters as a mapping in insertion order.
func (p Parameters) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, name := range p.names {
		var val yaml.Node
		if err := val.Encode(p.byName[name]); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
			&val,
		)
	}
	return node, nil
}

// MethodTemplate is the UI description of one library method.
type MethodTemplate struct {
	MethodName string     `json:"method_name" yaml:"method_name"`
	ModulePath string     `json:"module_path" yaml:"module_path"`
	MethodDesc string     `json:"method_desc" yaml:"method_desc"`
	MethodDoc  string     `json:"method_doc" yaml:"method_doc"`
	Parameters Parameters `json:"parameters" yaml:"parameters"`
}

// ModuleTemplates maps method name to template.
type ModuleTemplates map[string]MethodTemplate

// AllTemplates maps module path to its method templates.
type AllTemplates map[string]ModuleTemplates
