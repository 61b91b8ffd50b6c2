// Package catalog holds the static registry of processing-library methods that
// templates are generated from. The registry is indexed once at startup from
// YAML signature descriptions and is read-only afterwards.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tomohub/internal/apperrors"
)

//go:embed data/*.yaml
var embedded embed.FS

// Parameter is one entry of a method signature.
type Parameter struct {
	Name       string
	Annotation string   // Annotation text as declared
	Type       TypeExpr // Parsed annotation
	Default    any      // Real default; nil is a legitimate default when HasDefault is set
	HasDefault bool
	Variadic   bool // *args or **kwargs
}

// Method is a resolvable library callable.
type Method struct {
	Module string
	Name   string
	Doc    string
	Params []Parameter
}

// Module groups the methods of one library module in declaration order.
type Module struct {
	Path    string
	methods map[string]*Method
	order   []string
}

// Methods returns the module's method names in declaration order.
func (m *Module) Methods() []string {
	return append([]string(nil), m.order...)
}

// Registry resolves (module, method) identities to signatures.
type Registry struct {
	modules map[string]*Module
}

// Default loads the registry from the embedded signature files.
func Default() (*Registry, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("open embedded catalog: %w", err)
	}
	return Load(sub)
}

// Load indexes every *.yaml file at the root of fsys.
func Load(fsys fs.FS) (*Registry, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list catalog files: %w", err)
	}
	sort.Strings(names)

	r := &Registry{modules: make(map[string]*Module)}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if err := r.add(path.Base(name), data); err != nil {
			return nil, err
		}
	}
	return r, nil
}

type moduleFile struct {
	Module  string       `yaml:"module"`
	Methods []methodSpec `yaml:"methods"`
}

type methodSpec struct {
	Name   string      `yaml:"name"`
	Doc    string      `yaml:"doc"`
	Params []paramSpec `yaml:"params"`
}

type paramSpec struct {
	Name       string
	Annotation string
	Variadic   bool
	Default    *yaml.Node // nil when the key is absent
}

// UnmarshalYAML keeps "default: null" distinguishable from a missing default.
func (p *paramSpec) UnmarshalYAML(value *yaml.Node) error {
	var plain struct {
		Name       string `yaml:"name"`
		Annotation string `yaml:"annotation"`
		Variadic   bool   `yaml:"variadic"`
	}
	if err := value.Decode(&plain); err != nil {
		return err
	}
	p.Name, p.Annotation, p.Variadic = plain.Name, plain.Annotation, plain.Variadic
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "default" {
			p.Default = value.Content[i+1]
		}
	}
	return nil
}

func (r *Registry) add(file string, data []byte) error {
	var mf moduleFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	if mf.Module == "" {
		return fmt.Errorf("parse %s: missing module path", file)
	}
	if _, dup := r.modules[mf.Module]; dup {
		return fmt.Errorf("parse %s: module %s declared twice", file, mf.Module)
	}

	mod := &Module{Path: mf.Module, methods: make(map[string]*Method, len(mf.Methods))}
	for _, ms := range mf.Methods {
		if _, dup := mod.methods[ms.Name]; dup {
			return fmt.Errorf("parse %s: method %s declared twice", file, ms.Name)
		}
		method := &Method{Module: mf.Module, Name: ms.Name, Doc: ms.Doc}
		for _, ps := range ms.Params {
			param, err := ps.resolve()
			if err != nil {
				return fmt.Errorf("parse %s: %s.%s: %w", file, ms.Name, ps.Name, err)
			}
			method.Params = append(method.Params, param)
		}
		mod.methods[ms.Name] = method
		mod.order = append(mod.order, ms.Name)
	}
	r.modules[mf.Module] = mod
	return nil
}

func (ps paramSpec) resolve() (Parameter, error) {
	name := strings.TrimLeft(ps.Name, "*")
	param := Parameter{
		Name:       name,
		Annotation: ps.Annotation,
		Variadic:   ps.Variadic || name != ps.Name,
	}
	typ, err := ParseAnnotation(ps.Annotation)
	if err != nil {
		return Parameter{}, err
	}
	param.Type = typ
	if ps.Default != nil {
		var v any
		if err := ps.Default.Decode(&v); err != nil {
			return Parameter{}, fmt.Errorf("default: %w", err)
		}
		param.Default = v
		param.HasDefault = true
	}
	return param, nil
}

// Module returns a module by path.
func (r *Registry) Module(modulePath string) (*Module, error) {
	mod, ok := r.modules[modulePath]
	if !ok {
		return nil, apperrors.NotFound("module", modulePath)
	}
	return mod, nil
}

// Modules returns all module paths in sorted order.
func (r *Registry) Modules() []string {
	paths := make([]string, 0, len(r.modules))
	for p := range r.modules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Lookup resolves a method. Unknown identities return a not-found error.
func (r *Registry) Lookup(modulePath, method string) (*Method, error) {
	mod, err := r.Module(modulePath)
	if err != nil {
		return nil, err
	}
	m, ok := mod.methods[method]
	if !ok {
		return nil, apperrors.NotFound("method", modulePath+"."+method)
	}
	return m, nil
}

// Introspect returns the method's named parameters in signature order.
// Variadic parameters cannot be assigned by name and are left out.
func Introspect(m *Method) []Parameter {
	params := make([]Parameter, 0, len(m.Params))
	for _, p := range m.Params {
		if p.Variadic {
			continue
		}
		params = append(params, p)
	}
	return params
}
