package api

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// KeyType and KeyCacheTTL are reserved in a step mapping; every other key
	// is passed to the step constructor as a parameter.
	KeyType     = "type"
	KeyCacheTTL = "cache_ttl"

	// ConfigSuffix marks pipeline configs picked up by discovery.
	ConfigSuffix = ".pipeline.yaml"
)

// Config is the pipeline configuration file format.
type Config struct {
	Pipeline *PipelineConfig `yaml:"pipeline"`

	// Set by the loader, not from YAML.
	Dir      string `yaml:"-"`
	FilePath string `yaml:"-"`
}

// PipelineConfig describes a named, ordered list of steps.
type PipelineConfig struct {
	Name    string           `yaml:"name"`
	Context map[string]any   `yaml:"context"`
	Steps   []StepDescriptor `yaml:"steps"`
}

// StepDescriptor is one entry of pipeline.steps.
type StepDescriptor struct {
	Type     string
	CacheTTL time.Duration
	Params   map[string]any
}

// UnmarshalYAML splits the reserved keys out of a step mapping and keeps the
// rest as Params.
func (d *StepDescriptor) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: step must be a mapping", value.Line)
	}

	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if t, ok := raw[KeyType]; ok {
		s, isString := t.(string)
		if !isString {
			return fmt.Errorf("line %d: %s must be a string, got %T", value.Line, KeyType, t)
		}
		d.Type = s
	}

	if v, ok := raw[KeyCacheTTL]; ok {
		ttl, err := ParseTTL(v)
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", value.Line, KeyCacheTTL, err)
		}
		d.CacheTTL = ttl
	}

	delete(raw, KeyType)
	delete(raw, KeyCacheTTL)
	if len(raw) == 0 {
		raw = nil
	}
	d.Params = raw
	return nil
}

// MarshalYAML renders the descriptor back into the flat file shape.
func (d StepDescriptor) MarshalYAML() (any, error) {
	out := make(map[string]any, len(d.Params)+2)
	for k, v := range d.Params {
		out[k] = v
	}
	out[KeyType] = d.Type
	if d.CacheTTL > 0 {
		out[KeyCacheTTL] = d.CacheTTL.String()
	}
	return out, nil
}

// ParseTTL accepts whole seconds as an integer or numeric string, or a Go
// duration string such as "90m". Negative values are rejected; zero disables
// caching.
func ParseTTL(v any) (time.Duration, error) {
	var ttl time.Duration
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		ttl = time.Duration(x) * time.Second
	case int64:
		ttl = time.Duration(x) * time.Second
	case uint64:
		ttl = time.Duration(x) * time.Second
	case float64:
		ttl = time.Duration(x * float64(time.Second))
	case string:
		if n, err := strconv.Atoi(x); err == nil {
			ttl = time.Duration(n) * time.Second
			break
		}
		d, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", x)
		}
		ttl = d
	default:
		return 0, fmt.Errorf("expected seconds or a duration string, got %T", v)
	}

	if ttl < 0 {
		return 0, fmt.Errorf("must not be negative, got %v", ttl)
	}
	return ttl, nil
}
