package api

import "fmt"

// Validate checks the structure of the configuration. Step types are not
// checked here; they are resolved against a registry when the pipeline is built.
func (c *Config) Validate() error {
	if c.Pipeline == nil {
		return fmt.Errorf("missing %q key", "pipeline")
	}
	if len(c.Pipeline.Steps) == 0 {
		return fmt.Errorf("pipeline has no steps")
	}

	for i, step := range c.Pipeline.Steps {
		if step.Type == "" {
			return fmt.Errorf("step %d: %s is required", i+1, KeyType)
		}
	}

	return nil
}
