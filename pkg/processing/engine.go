package processing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/api"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/cache"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
)

// Options carries what a run needs besides the config itself.
type Options struct {
	Registry *registry.Registry // nil means registry.Default
	Store    cache.Store        // nil disables caching
	Context  map[string]any     // overrides the config's own context entries
	Cache    []cache.Option
}

func (o Options) registry() *registry.Registry {
	if o.Registry == nil {
		return registry.Default
	}
	return o.Registry
}

// Result is what a finished run produced.
type Result struct {
	Output  any
	Context pipeline.Context
}

// RunConfig builds cfg and runs it with input as the initial data.
func RunConfig(ctx context.Context, cfg *api.Config, input any, opts Options) (*Result, error) {
	p, err := Build(cfg, opts.registry(), opts.Store, opts.Cache...)
	if err != nil {
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	pc := pipeline.Context(MergeContext(cfg.Pipeline.Context, opts.Context))
	out, err := p.Run(ctx, input, pc)
	if err != nil {
		return nil, err
	}
	return &Result{Output: out, Context: pc}, nil
}

// RunFile loads a config file and runs it.
func RunFile(ctx context.Context, filename string, input any, opts Options) (*Result, error) {
	cfg, err := api.LoadConfig(filename)
	if err != nil {
		return nil, err
	}
	return RunConfig(ctx, cfg, input, opts)
}

// RunAll discovers configs under root and runs each with no initial data.
// A failing config does not stop the others; the returned error lists every
// config that failed.
func RunAll(ctx context.Context, root string, maxDepth int, opts Options) error {
	configs, err := Discover(root, maxDepth)
	if err != nil {
		return fmt.Errorf("discovering pipelines: %w", err)
	}

	if len(configs) == 0 {
		slog.Warn("no pipeline configs found", "dir", root, "pattern", "*"+api.ConfigSuffix)
		return nil
	}

	slog.Info("discovered pipelines", "count", len(configs))

	var failed []string
	for _, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return err
		}

		slog.Info("executing pipeline", "path", cfg.FilePath)
		if _, pErr := RunConfig(ctx, cfg, nil, opts); pErr != nil {
			slog.Error("pipeline failed", "path", cfg.FilePath, "error", pErr)
			failed = append(failed, cfg.FilePath)
		} else {
			slog.Info("pipeline succeeded", "path", cfg.FilePath)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d pipeline(s) failed: %v", len(failed), failed)
	}

	return nil
}
