package pipeline

import (
	"context"
	"fmt"
)

// Context is the mutable mapping shared by every step of one run.
// Keys are not namespaced; step authors avoid collisions by convention.
type Context map[string]any

// Step is the unit of work all pipeline steps implement.
//
// Run receives the previous step's output (or the run's initial data) and the
// shared Context, and returns the data handed to the next step. The
// context.Context only carries cancellation for steps that perform I/O.
type Step interface {
	Run(ctx context.Context, data any, pc Context) (any, error)
}

// StepFunc adapts an ordinary function to the Step interface.
type StepFunc func(ctx context.Context, data any, pc Context) (any, error)

// Run calls f.
func (f StepFunc) Run(ctx context.Context, data any, pc Context) (any, error) {
	return f(ctx, data, pc)
}

// Namer is implemented by steps that carry a stable identity.
type Namer interface {
	Name() string
}

type namedStep struct {
	name string
	Step
}

func (s *namedStep) Name() string { return s.name }

// Named attaches an identity, usually the registered type name, to a step.
func Named(name string, step Step) Step {
	return &namedStep{name: name, Step: step}
}

// StepName returns the identity of a step: its Name if it has one, otherwise its Go type.
func StepName(step Step) string {
	if n, ok := step.(Namer); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", step)
}
