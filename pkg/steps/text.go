package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
)

type grepConfig struct {
	Pattern       string `yaml:"pattern"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	Invert        bool   `yaml:"invert"`
}

type grepStep struct {
	re     *regexp.Regexp
	invert bool
}

func newGrep(params map[string]any) (pipeline.Step, error) {
	cfg := grepConfig{CaseSensitive: true}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Pattern == "" {
		return nil, errors.New("pattern is required")
	}

	expr := cfg.Pattern
	if !cfg.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}
	return &grepStep{re: re, invert: cfg.Invert}, nil
}

func (s *grepStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	lines, err := toLines(data)
	if err != nil {
		return nil, err
	}

	matches := []string{}
	for _, line := range lines {
		if s.re.MatchString(line) != s.invert {
			matches = append(matches, line)
		}
	}

	pc["match_count"] = len(matches)
	pc["total_lines"] = len(lines)

	slog.Info("grep", "pattern", s.re.String(), "lines", len(lines), "matches", len(matches))
	return matches, nil
}

type replaceConfig struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Count       int    `yaml:"count"`
}

type replaceStep struct {
	re          *regexp.Regexp
	replacement string
	count       int
}

// backref matches \1 style group references.
var backref = regexp.MustCompile(`\\(\d+)`)

// expandTemplate turns a replacement into a Regexp.Expand template. A literal
// $ stays literal and \N refers to group N.
func expandTemplate(replacement string) string {
	return backref.ReplaceAllString(strings.ReplaceAll(replacement, "$", "$$"), "$${$1}")
}

func newReplace(params map[string]any) (pipeline.Step, error) {
	var cfg replaceConfig
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Pattern == "" {
		return nil, errors.New("pattern is required")
	}
	if cfg.Count < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", cfg.Count)
	}

	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}
	return &replaceStep{
		re:          re,
		replacement: expandTemplate(cfg.Replacement),
		count:       cfg.Count,
	}, nil
}

func (s *replaceStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	text := toText(data)

	limit := -1
	if s.count > 0 {
		limit = s.count
	}
	matches := s.re.FindAllStringSubmatchIndex(text, limit)

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		b.Write(s.re.ExpandString(nil, s.replacement, text, m))
		last = m[1]
	}
	b.WriteString(text[last:])

	pc["replacement_count"] = len(matches)

	slog.Info("replace", "pattern", s.re.String(), "replacements", len(matches))
	return b.String(), nil
}

type splitLinesConfig struct {
	Strip     bool `yaml:"strip"`
	SkipEmpty bool `yaml:"skip_empty"`
}

type splitLinesStep struct{ cfg splitLinesConfig }

func newSplitLines(params map[string]any) (pipeline.Step, error) {
	cfg := splitLinesConfig{Strip: true}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	return &splitLinesStep{cfg: cfg}, nil
}

func (s *splitLinesStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	lines := splitLines(toText(data))

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if s.cfg.Strip {
			line = strings.TrimSpace(line)
		}
		if s.cfg.SkipEmpty && line == "" {
			continue
		}
		out = append(out, line)
	}

	pc["line_count"] = len(out)
	return out, nil
}

type joinLinesConfig struct {
	Separator string `yaml:"separator"`
}

type joinLinesStep struct{ sep string }

func newJoinLines(params map[string]any) (pipeline.Step, error) {
	cfg := joinLinesConfig{Separator: "\n"}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	return &joinLinesStep{sep: cfg.Separator}, nil
}

func (s *joinLinesStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	var lines []string
	if text, ok := data.(string); ok {
		lines = []string{text}
	} else {
		var err error
		if lines, err = toLines(data); err != nil {
			return nil, err
		}
	}

	out := strings.Join(lines, s.sep)
	pc["line_count"] = len(lines)
	pc["output_length"] = len(out)
	return out, nil
}

// caseStep maps text through fn.
type caseStep struct{ fn func(string) string }

func newCase(fn func(string) string) registry.Constructor {
	return func(params map[string]any) (pipeline.Step, error) {
		if err := registry.Decode(params, &struct{}{}); err != nil {
			return nil, err
		}
		return &caseStep{fn: fn}, nil
	}
}

func (s *caseStep) Run(_ context.Context, data any, _ pipeline.Context) (any, error) {
	return s.fn(toText(data)), nil
}
