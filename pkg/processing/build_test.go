package processing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/api"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/cache"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
)

const shoutConfig = `
pipeline:
  name: shout
  steps:
    - type: echo_upper
    - type: append_suffix
      suffix: "!"
`

func TestBuild_RunsInOrder(t *testing.T) {
	reg, _ := testRegistry(t)
	cfg, err := api.ParseConfig([]byte(shoutConfig))
	if err != nil {
		t.Fatal(err)
	}

	p, err := Build(cfg, reg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "shout" || p.Len() != 2 {
		t.Fatalf("unexpected pipeline %q with %d steps", p.Name(), p.Len())
	}

	out, err := p.Run(context.Background(), "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "HI!" {
		t.Errorf("expected %q, got %v", "HI!", out)
	}

	names := []string{pipeline.StepName(p.Steps()[0]), pipeline.StepName(p.Steps()[1])}
	if names[0] != "echo_upper" || names[1] != "append_suffix" {
		t.Errorf("step names = %v", names)
	}
}

func TestBuild_UnknownType(t *testing.T) {
	reg, _ := testRegistry(t)
	cfg, err := api.ParseConfig([]byte(`
pipeline:
  steps:
    - type: echo_upper
    - type: nope
`))
	if err != nil {
		t.Fatal(err)
	}

	_, err = Build(cfg, reg, nil)
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BuildError, got %v", err)
	}
	if be.Position != 2 || be.Type != "nope" {
		t.Errorf("BuildError = %+v", be)
	}

	var nf *registry.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected wrapped *registry.NotFoundError, got %v", err)
	}
	for _, name := range []string{"append_suffix", "echo_upper"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not list %s", err, name)
		}
	}
}

func TestBuild_ConstructorErrors(t *testing.T) {
	tests := []struct {
		name    string
		step    string
		wantErr string
	}{
		{"missing required", "    - type: append_suffix\n", "suffix is required"},
		{"unknown field", "    - type: append_suffix\n      sufix: x\n", "field sufix not found"},
	}

	reg, _ := testRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := api.ParseConfig([]byte("pipeline:\n  steps:\n" + tt.step))
			if err != nil {
				t.Fatal(err)
			}
			_, err = Build(cfg, reg, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "step 1 (append_suffix)") || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuild_CachesOnlyMarkedSteps(t *testing.T) {
	reg, upperCalls := testRegistry(t)
	cfg, err := api.ParseConfig([]byte(`
pipeline:
  steps:
    - type: echo_upper
      cache_ttl: 60
    - type: append_suffix
      suffix: "?"
`))
	if err != nil {
		t.Fatal(err)
	}

	store := cache.NewMemoryStore()
	for i := 0; i < 3; i++ {
		p, err := Build(cfg, reg, store)
		if err != nil {
			t.Fatal(err)
		}
		out, err := p.Run(context.Background(), "cached", nil)
		if err != nil {
			t.Fatal(err)
		}
		if out != "CACHED?" {
			t.Errorf("run %d: got %v", i, out)
		}
	}
	if *upperCalls != 1 {
		t.Errorf("echo_upper ran %d times, want 1", *upperCalls)
	}

	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Step != "echo_upper" {
		t.Errorf("cached entries = %+v", entries)
	}
}

func TestBuild_TTLWithoutStoreRunsUncached(t *testing.T) {
	reg, upperCalls := testRegistry(t)
	cfg, err := api.ParseConfig([]byte("pipeline:\n  steps:\n    - type: echo_upper\n      cache_ttl: 1h\n"))
	if err != nil {
		t.Fatal(err)
	}

	p, err := Build(cfg, reg, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := p.Run(context.Background(), "x", nil); err != nil {
			t.Fatal(err)
		}
	}
	if *upperCalls != 2 {
		t.Errorf("echo_upper ran %d times, want 2", *upperCalls)
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	reg, _ := testRegistry(t)
	if _, err := Build(&api.Config{}, reg, nil); err == nil {
		t.Fatal("expected error for config without pipeline")
	}
}
