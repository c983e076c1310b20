package pipeline

import "fmt"

// StepError annotates a step failure with the step's identity and position.
type StepError struct {
	Pipeline string
	Position int // 1-based
	Total    int
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline %q failed at step %d/%d (%s): %v", e.Pipeline, e.Position, e.Total, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
