// template-gen writes the method templates of every catalogued module as YAML,
// one file per module.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"tomohub/internal/catalog"
	"tomohub/internal/template"
)

func main() {
	output := flag.String("output", "templates", "directory the YAML templates are written to")
	modules := flag.String("modules", "", "comma separated module paths (default: every catalogued module)")
	verbose := flag.Bool("v", false, "log each generated file")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var selected []string
	if *modules != "" {
		for _, m := range strings.Split(*modules, ",") {
			if m = strings.TrimSpace(m); m != "" {
				selected = append(selected, m)
			}
		}
	}

	written, err := run(context.Background(), *output, selected)
	if err != nil {
		slog.Error("Template generation failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("The methods as YAML templates have been successfully generated! (%d files in %s)\n", len(written), *output)
}

// run generates the templates of modules (all when empty) into dir and
// returns the written paths.
func run(ctx context.Context, dir string, modules []string) ([]string, error) {
	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("load method catalog: %w", err)
	}
	if len(modules) == 0 {
		modules = cat.Modules()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	gen := template.NewGenerator(cat, nil)
	written := make([]string, 0, len(modules))
	for _, path := range modules {
		mod, err := cat.Module(path)
		if err != nil {
			return written, err
		}
		templates := gen.Modules(ctx, []catalog.ModuleMethods{{Module: path, Methods: mod.Methods()}})

		content, err := encode(templates[path])
		if err != nil {
			return written, fmt.Errorf("encode %s: %w", path, err)
		}
		file := filepath.Join(dir, path+".yaml")
		if err := os.WriteFile(file, content, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", file, err)
		}
		slog.Debug("Wrote templates", "module", path, "methods", len(templates[path]), "file", file)
		written = append(written, file)
	}
	return written, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
