package api

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg: Config{Pipeline: &PipelineConfig{Steps: []StepDescriptor{
				{Type: "read_file", Params: map[string]any{"path": "in.txt"}},
				{Type: "to_uppercase"},
			}}},
		},
		{
			name:    "missing pipeline key",
			cfg:     Config{},
			wantErr: `missing "pipeline" key`,
		},
		{
			name:    "no steps",
			cfg:     Config{Pipeline: &PipelineConfig{Name: "x"}},
			wantErr: "no steps",
		},
		{
			name: "missing type reports position",
			cfg: Config{Pipeline: &PipelineConfig{Steps: []StepDescriptor{
				{Type: "grep"},
				{Params: map[string]any{"pattern": "x"}},
			}}},
			wantErr: "step 2: type is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_UnknownTypeIsNotStructural(t *testing.T) {
	cfg := Config{Pipeline: &PipelineConfig{Steps: []StepDescriptor{{Type: "no_such_step"}}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unknown types are resolved at build time, got %v", err)
	}
}
