package steps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
)

// writeTestFile writes content to a file in dir, failing the test on error.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

// newStep constructs a built-in through a registry the same way a config would.
func newStep(t *testing.T, name string, params map[string]any) pipeline.Step {
	t.Helper()
	reg := registry.New()
	RegisterBuiltins(reg)
	ctor, err := reg.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	step, err := ctor(params)
	if err != nil {
		t.Fatalf("constructing %s: %v", name, err)
	}
	return step
}

func runStep(t *testing.T, step pipeline.Step, data any) (any, pipeline.Context) {
	t.Helper()
	pc := pipeline.Context{}
	out, err := step.Run(context.Background(), data, pc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out, pc
}

func constructErr(t *testing.T, name string, params map[string]any) error {
	t.Helper()
	for _, b := range Builtins() {
		if b.Name == name {
			_, err := b.New(params)
			return err
		}
	}
	t.Fatalf("no builtin %q", name)
	return nil
}
