package engine

import "fmt"

// RunnerError reports that the test runner could not be started or waited on.
// A runner that exits with a non-zero status is not an error.
type RunnerError struct {
	Err error
}

func (e *RunnerError) Error() string {
	return fmt.Sprintf("runner: %v", e.Err)
}

func (e *RunnerError) Unwrap() error {
	return e.Err
}

// ReadinessError reports that the configured readiness wait failed, so the
// runner was never launched.
type ReadinessError struct {
	Err error
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("server not ready: %v", e.Err)
}

func (e *ReadinessError) Unwrap() error {
	return e.Err
}
