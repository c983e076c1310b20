package processing

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/api"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/cache"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
)

// BuildError reports which step of a config could not be constructed.
type BuildError struct {
	Position int // 1-based
	Type     string
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Position, e.Type, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Build resolves every step descriptor against reg and assembles the pipeline.
// Steps with a positive cache TTL are wrapped with store; when store is nil
// they run uncached.
func Build(cfg *api.Config, reg *registry.Registry, store cache.Store, opts ...cache.Option) (*pipeline.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	built := make([]pipeline.Step, 0, len(cfg.Pipeline.Steps))
	for i, d := range cfg.Pipeline.Steps {
		step, err := buildStep(d, reg, store, opts)
		if err != nil {
			return nil, &BuildError{Position: i + 1, Type: d.Type, Err: err}
		}
		built = append(built, step)
	}

	return pipeline.New(cfg.Pipeline.Name, built...), nil
}

func buildStep(d api.StepDescriptor, reg *registry.Registry, store cache.Store, opts []cache.Option) (pipeline.Step, error) {
	ctor, err := reg.Lookup(d.Type)
	if err != nil {
		return nil, err
	}

	// Constructors may consume their params; the cache key needs the originals.
	step, err := ctor(maps.Clone(d.Params))
	if err != nil {
		return nil, err
	}

	if d.CacheTTL > 0 {
		if store == nil {
			slog.Warn("cache_ttl set but no cache configured, step will not be cached", "step", d.Type)
		} else {
			step = cache.Wrap(d.Type, d.Params, step, store, d.CacheTTL, opts...)
		}
	}
	return pipeline.Named(d.Type, step), nil
}
