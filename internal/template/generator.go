// Package template builds method templates: the parameter descriptions the UI
// renders for each processing method.
package template

import (
	"context"
	"log/slog"
	"strings"

	"tomohub/internal/apperrors"
	"tomohub/internal/catalog"
	"tomohub/internal/docstring"
	"tomohub/internal/observability"
	"tomohub/internal/policy"
)

const (
	docBaseCPU = "https://diamondlightsource.github.io/httomolib/api/"
	docBaseGPU = "https://diamondlightsource.github.io/httomolibgpu/api/"
)

// Generator produces templates from the method registry.
type Generator struct {
	registry *catalog.Registry
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewGenerator creates a generator. metrics may be nil.
func NewGenerator(registry *catalog.Registry, metrics *observability.Metrics) *Generator {
	return &Generator{
		registry: registry,
		metrics:  metrics,
		logger:   slog.With("component", "template"),
	}
}

// DocURL returns the API documentation page for a module.
func DocURL(module string) string {
	top, _, _ := strings.Cut(module, ".")
	if top == "httomolib" {
		return docBaseCPU + module + ".html"
	}
	return docBaseGPU + module + ".html"
}

// Method builds the template for one method.
func (g *Generator) Method(module, method string) (MethodTemplate, error) {
	m, err := g.registry.Lookup(module, method)
	if err != nil {
		return MethodTemplate{}, err
	}

	doc := docstring.Parse(m.Doc)
	tmpl := MethodTemplate{
		MethodName: method,
		ModulePath: module,
		MethodDesc: doc.Desc,
		MethodDoc:  DocURL(module),
	}
	for _, p := range catalog.Introspect(m) {
		if policy.Discarded(p.Name) {
			continue
		}
		tmpl.Parameters.Set(p.Name, ParameterInfo{
			Type:  p.Type.String(),
			Value: policy.Value(p),
			Desc:  doc.Parameters[p.Name].Description,
		})
	}
	return tmpl, nil
}

// Modules builds templates for the listed methods. Methods that cannot be
// resolved are logged and skipped; the rest are still returned.
func (g *Generator) Modules(ctx context.Context, modules []catalog.ModuleMethods) AllTemplates {
	all := make(AllTemplates, len(modules))
	for _, mm := range modules {
		for _, name := range mm.Methods {
			tmpl, err := g.Method(mm.Module, name)
			if g.metrics != nil {
				g.metrics.RecordTemplate(ctx, mm.Module, err == nil)
			}
			if err != nil {
				g.logger.Warn("skipping method", "module", mm.Module, "method", name, "error", err)
				continue
			}
			if all[mm.Module] == nil {
				all[mm.Module] = make(ModuleTemplates)
			}
			all[mm.Module][name] = tmpl
		}
	}
	return all
}

// Category builds the templates of one named category.
func (g *Generator) Category(ctx context.Context, name string) (AllTemplates, error) {
	c, ok := catalog.CategoryByName(name)
	if !ok {
		return nil, apperrors.NotFound("category", name)
	}
	return g.Modules(ctx, c.Modules), nil
}

// All builds the templates of every categorised method.
func (g *Generator) All(ctx context.Context) AllTemplates {
	return g.Modules(ctx, catalog.AllModules())
}
