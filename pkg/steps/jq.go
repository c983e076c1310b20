package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"github.com/itchyny/gojq"
)

type jqConfig struct {
	Expression string `yaml:"expression"`
	All        bool   `yaml:"all"`
}

// jqStep runs a jq program against the input. The pipeline context is bound
// to $context.
type jqStep struct {
	code *gojq.Code
	all  bool
}

func newJQ(params map[string]any) (pipeline.Step, error) {
	var cfg jqConfig
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.Expression == "" {
		return nil, errors.New("expression is required")
	}

	query, err := gojq.Parse(cfg.Expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", cfg.Expression, err)
	}
	code, err := gojq.Compile(query, gojq.WithVariables([]string{"$context"}))
	if err != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", cfg.Expression, err)
	}
	return &jqStep{code: code, all: cfg.All}, nil
}

// Run returns the single result of the program, nil for no result, or a list
// when the program yields several values or all is set.
func (s *jqStep) Run(ctx context.Context, data any, pc pipeline.Context) (any, error) {
	input, err := normalizeForJQ(data)
	if err != nil {
		return nil, fmt.Errorf("normalizing input: %w", err)
	}
	vars, err := normalizeForJQ(map[string]any(pc))
	if err != nil {
		return nil, fmt.Errorf("normalizing context: %w", err)
	}

	results := []any{}
	iter := s.code.RunWithContext(ctx, input, vars)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, fmt.Errorf("evaluating expression: %w", err)
		}
		results = append(results, v)
	}

	if s.all {
		return results, nil
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// normalizeForJQ converts native Go values into the JSON-shaped values gojq
// accepts.
func normalizeForJQ(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
