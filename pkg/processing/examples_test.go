package processing

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/steps"
)

func builtinRegistry() *registry.Registry {
	reg := registry.New()
	steps.RegisterBuiltins(reg)
	return reg
}

func TestExamplesBuild(t *testing.T) {
	configs, err := Discover("../../examples", -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) == 0 {
		t.Fatal("no example configs found")
	}

	reg := builtinRegistry()
	for _, cfg := range configs {
		t.Run(cfg.Pipeline.Name, func(t *testing.T) {
			if _, err := Build(cfg, reg, nil); err != nil {
				t.Errorf("%s: %v", cfg.FilePath, err)
			}
		})
	}
}

func TestExampleServices(t *testing.T) {
	t.Chdir("../..")

	res, err := RunFile(context.Background(), "examples/services.pipeline.yaml", nil, Options{Registry: builtinRegistry()})
	if err != nil {
		t.Fatal(err)
	}

	var got []map[string]string
	if err := json.Unmarshal([]byte(res.Output.(string)), &got); err != nil {
		t.Fatalf("output %v: %v", res.Output, err)
	}

	want := []string{"auth", "mailer", "search"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i, name := range want {
		if got[i]["name"] != name {
			t.Errorf("row %d = %v, want %s", i, got[i], name)
		}
	}
	if res.Context["row_count"] != 5 || res.Context["output_count"] != 3 {
		t.Errorf("context = %v", res.Context)
	}
}
