package api

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Valid(t *testing.T) {
	content := `
pipeline:
  name: feed_digest
  context:
    app: feeds
  steps:
    - type: http_get
      url: https://example.com/feed.xml
      timeout: 10
      cache_ttl: 1h
    - type: parse_rss
      limit: 5
    - type: to_uppercase
`
	dir := t.TempDir()
	f := filepath.Join(dir, "feeds.pipeline.yaml")
	if err := os.WriteFile(f, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Dir != dir || cfg.FilePath != f {
		t.Fatalf("expected Dir=%q FilePath=%q, got %q %q", dir, f, cfg.Dir, cfg.FilePath)
	}
	p := cfg.Pipeline
	if p.Name != "feed_digest" || p.Context["app"] != "feeds" {
		t.Fatalf("unexpected pipeline header: %+v", p)
	}
	if len(p.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(p.Steps))
	}

	get := p.Steps[0]
	if get.Type != "http_get" || get.CacheTTL != time.Hour {
		t.Errorf("step 1 = %+v", get)
	}
	if get.Params["url"] != "https://example.com/feed.xml" || get.Params["timeout"] != 10 {
		t.Errorf("step 1 params = %v", get.Params)
	}
	if _, leaked := get.Params[KeyType]; leaked {
		t.Error("reserved key type left in params")
	}
	if _, leaked := get.Params[KeyCacheTTL]; leaked {
		t.Error("reserved key cache_ttl left in params")
	}

	if p.Steps[1].CacheTTL != 0 || p.Steps[1].Params["limit"] != 5 {
		t.Errorf("step 2 = %+v", p.Steps[1])
	}
	if p.Steps[2].Params != nil {
		t.Errorf("expected nil params for bare step, got %v", p.Steps[2].Params)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/x.pipeline.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading pipeline file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "x.pipeline.yaml")
	if err := os.WriteFile(f, []byte("{{invalid"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(f)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing pipeline file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfig_ValidationFails(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "x.pipeline.yaml")
	if err := os.WriteFile(f, []byte("pipeline:\n  name: empty\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(f)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "validating pipeline") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseConfig_StepErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"scalar step", "pipeline:\n  steps:\n    - grep\n", "step must be a mapping"},
		{"non-string type", "pipeline:\n  steps:\n    - type: 3\n", "type must be a string"},
		{"bad ttl", "pipeline:\n  steps:\n    - type: grep\n      cache_ttl: soon\n", "invalid duration"},
		{"negative ttl", "pipeline:\n  steps:\n    - type: grep\n      cache_ttl: -5\n", "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseTTL(t *testing.T) {
	tests := []struct {
		in   any
		want time.Duration
	}{
		{nil, 0},
		{0, 0},
		{3600, time.Hour},
		{"120", 2 * time.Minute},
		{"90m", 90 * time.Minute},
		{1.5, 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		got, err := ParseTTL(tt.in)
		if err != nil {
			t.Errorf("ParseTTL(%v) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseTTL([]string{"1h"}); err == nil {
		t.Error("expected error for list value")
	}
}

func TestStepDescriptor_MarshalYAML(t *testing.T) {
	d := StepDescriptor{Type: "grep", CacheTTL: time.Minute, Params: map[string]any{"pattern": "x"}}
	out, err := d.MarshalYAML()
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	if m[KeyType] != "grep" || m[KeyCacheTTL] != "1m0s" || m["pattern"] != "x" {
		t.Errorf("MarshalYAML = %v", m)
	}
}
