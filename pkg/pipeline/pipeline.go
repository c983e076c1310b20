// Package pipeline executes an ordered sequence of steps over one data value
// and a shared Context.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/metrics"
	"github.com/google/uuid"
)

// DefaultName is used for pipelines constructed without a name.
const DefaultName = "unnamed_pipeline"

// Pipeline is an immutable, ordered sequence of steps.
type Pipeline struct {
	name  string
	steps []Step
}

// New creates a pipeline. The steps are copied; their order is the execution order.
func New(name string, steps ...Step) *Pipeline {
	if name == "" {
		name = DefaultName
	}
	return &Pipeline{name: name, steps: slices.Clone(steps)}
}

// Name returns the pipeline's label.
func (p *Pipeline) Name() string { return p.name }

// Len returns the number of steps.
func (p *Pipeline) Len() int { return len(p.steps) }

// Steps returns a copy of the step sequence.
func (p *Pipeline) Steps() []Step { return slices.Clone(p.steps) }

// Run executes every step in order, threading data and pc through them.
//
// A nil pc is replaced with a fresh empty Context; a caller-supplied pc is
// used as is, so its mutations are visible to the caller afterwards. The
// first failing step aborts the run with a *StepError and no result.
func (p *Pipeline) Run(ctx context.Context, data any, pc Context) (any, error) {
	if pc == nil {
		pc = make(Context)
	}

	logger := slog.With("pipeline", p.name, "run_id", uuid.NewString())
	logger.Info("pipeline starting", "steps", len(p.steps))

	current := data
	for i, step := range p.steps {
		name := StepName(step)
		position := fmt.Sprintf("%d/%d", i+1, len(p.steps))

		logger.Info("step starting", "step", name, "position", position)
		start := time.Now()

		out, err := step.Run(ctx, current, pc)
		elapsed := time.Since(start)
		metrics.Default.ObserveStep(p.name, name, elapsed, err)

		if err != nil {
			logger.Error("step failed", "step", name, "position", position, "duration", elapsed, "error", err)
			return nil, &StepError{
				Pipeline: p.name,
				Position: i + 1,
				Total:    len(p.steps),
				Step:     name,
				Err:      err,
			}
		}

		logger.Info("step completed", "step", name, "position", position, "duration", elapsed)
		current = out
	}

	logger.Info("pipeline completed")
	return current, nil
}
