package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
)

const defaultFileInclude = "**/*"

type templateConfig struct {
	Template string `yaml:"template"`
	File     string `yaml:"file"`
}

type templateStep struct {
	tmpl *template.Template
}

func newTemplate(params map[string]any) (pipeline.Step, error) {
	var cfg templateConfig
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}

	text := cfg.Template
	switch {
	case cfg.Template != "" && cfg.File != "":
		return nil, errors.New("template and file are mutually exclusive")
	case cfg.File != "":
		content, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("reading template file: %w", err)
		}
		text = string(content)
	case cfg.Template == "":
		return nil, errors.New("template or file is required")
	}

	tmpl, err := template.New("template").Funcs(sprig.FuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	return &templateStep{tmpl: tmpl}, nil
}

// Run renders with the input's keys when it is a mapping, otherwise with the
// input under .data. The pipeline context is always available as .context.
func (s *templateStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	vars := map[string]any{}
	if m, ok := data.(map[string]any); ok {
		maps.Copy(vars, m)
	} else {
		vars["data"] = data
	}
	vars["context"] = map[string]any(pc)

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}

	slog.Info("rendered template", "variables", len(vars), "chars", buf.Len())
	return buf.String(), nil
}

type renderFilesConfig struct {
	Dir     string   `yaml:"dir"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// renderFilesStep renders matching files in place with the pipeline context
// as template data.
type renderFilesStep struct{ cfg renderFilesConfig }

func newRenderFiles(params map[string]any) (pipeline.Step, error) {
	cfg := renderFilesConfig{Dir: "."}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	return &renderFilesStep{cfg: cfg}, nil
}

func (s *renderFilesStep) Run(_ context.Context, _ any, pc pipeline.Context) (any, error) {
	files, err := filterFiles(os.DirFS(s.cfg.Dir), s.cfg.Include, s.cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("filtering files: %w", err)
	}

	slog.Info("render_files processing files", "dir", s.cfg.Dir, "count", len(files))

	rendered := make([]string, 0, len(files))
	for _, file := range files {
		if err := processFile(s.cfg.Dir, file, pc); err != nil {
			return nil, fmt.Errorf("processing %s: %w", file, err)
		}
		rendered = append(rendered, filepath.Join(s.cfg.Dir, filepath.FromSlash(file)))
	}

	pc["rendered_count"] = len(rendered)
	return rendered, nil
}

func filterFiles(fsys fs.FS, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{defaultFileInclude}
	}

	included, err := globFS(fsys, include)
	if err != nil {
		return nil, fmt.Errorf("include filter: %w", err)
	}

	excluded, err := globFS(fsys, exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude filter: %w", err)
	}

	var result []string
	for _, f := range included {
		if slices.Contains(excluded, f) {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

func processFile(workDir, filename string, data map[string]any) error {
	absPath := filepath.Join(workDir, filename)

	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	tmpl, err := template.New(filepath.Base(filename)).Funcs(sprig.FuncMap()).Parse(string(content))
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	// Render fully before touching the file so a failed template leaves it intact.
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if err := os.WriteFile(absPath, buf.Bytes(), info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	slog.Debug("template rendered", "file", filename)
	return nil
}
