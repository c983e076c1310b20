package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const (
	condEquals   = "equals"
	condContains = "contains"
	condGT       = "gt"
	condLT       = "lt"
	condExists   = "exists"
)

type filterConfig struct {
	Field      string `yaml:"field"`
	Value      any    `yaml:"value"`
	Condition  string `yaml:"condition"`
	Expression string `yaml:"expression"`
}

type filterStep struct {
	cfg     filterConfig
	program *vm.Program
}

func newFilter(params map[string]any) (pipeline.Step, error) {
	cfg := filterConfig{Condition: condEquals}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}

	if cfg.Expression != "" {
		if cfg.Field != "" {
			return nil, errors.New("expression and field are mutually exclusive")
		}
		program, err := expr.Compile(cfg.Expression, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compiling expression: %w", err)
		}
		return &filterStep{cfg: cfg, program: program}, nil
	}

	if cfg.Field == "" {
		return nil, errors.New("field or expression is required")
	}
	switch cfg.Condition {
	case condEquals, condContains, condGT, condLT, condExists:
	default:
		return nil, fmt.Errorf("unknown condition %q (valid: equals, contains, gt, lt, exists)", cfg.Condition)
	}
	return &filterStep{cfg: cfg}, nil
}

func (s *filterStep) Run(_ context.Context, data any, pc pipeline.Context) (any, error) {
	items, err := toRecords(data)
	if err != nil {
		return nil, err
	}

	kept := []map[string]any{}
	for i, item := range items {
		keep, err := s.keep(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if keep {
			kept = append(kept, item)
		}
	}

	pc["input_count"] = len(items)
	pc["output_count"] = len(kept)

	slog.Info("filtered items", "input", len(items), "kept", len(kept))
	return kept, nil
}

func (s *filterStep) keep(item map[string]any) (bool, error) {
	if s.program != nil {
		out, err := expr.Run(s.program, item)
		if err != nil {
			return false, fmt.Errorf("evaluating expression: %w", err)
		}
		keep, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("expression returned %T, want bool", out)
		}
		return keep, nil
	}

	v, present := item[s.cfg.Field]
	switch s.cfg.Condition {
	case condExists:
		return present, nil
	case condEquals:
		return looseEqual(v, s.cfg.Value), nil
	case condContains:
		return strings.Contains(toText(v), toText(s.cfg.Value)), nil
	case condGT:
		c, ok := compare(v, s.cfg.Value)
		return ok && c > 0, nil
	case condLT:
		c, ok := compare(v, s.cfg.Value)
		return ok && c < 0, nil
	}
	return false, nil
}

// looseEqual treats numbers of different Go types as equal when their values are.
func looseEqual(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two numbers or two strings; ok is false for anything else.
func compare(a, b any) (int, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}
