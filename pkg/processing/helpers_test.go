package processing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
)

type suffixConfig struct {
	Suffix string `yaml:"suffix"`
}

// testRegistry holds two small steps plus one whose constructor always fails.
func testRegistry(t *testing.T) (*registry.Registry, *int) {
	t.Helper()
	reg := registry.New()
	upperCalls := new(int)

	reg.Register("echo_upper", func(map[string]any) (pipeline.Step, error) {
		return pipeline.StepFunc(func(_ context.Context, data any, pc pipeline.Context) (any, error) {
			*upperCalls++
			pc["upper_ran"] = true
			return strings.ToUpper(fmt.Sprint(data)), nil
		}), nil
	})
	reg.Register("append_suffix", func(params map[string]any) (pipeline.Step, error) {
		var cfg suffixConfig
		if err := registry.Decode(params, &cfg); err != nil {
			return nil, err
		}
		if cfg.Suffix == "" {
			return nil, errors.New("suffix is required")
		}
		return pipeline.StepFunc(func(_ context.Context, data any, _ pipeline.Context) (any, error) {
			return fmt.Sprint(data) + cfg.Suffix, nil
		}), nil
	})
	reg.Register("from_context", func(map[string]any) (pipeline.Step, error) {
		return pipeline.StepFunc(func(_ context.Context, _ any, pc pipeline.Context) (any, error) {
			return pc["app"], nil
		}), nil
	})
	reg.Register("fail", func(map[string]any) (pipeline.Step, error) {
		return pipeline.StepFunc(func(context.Context, any, pipeline.Context) (any, error) {
			return nil, errors.New("boom")
		}), nil
	})
	return reg, upperCalls
}

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	f := filepath.Join(dir, name)
	if err := os.WriteFile(f, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return f
}
