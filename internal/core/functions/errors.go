package functions

import (
	"errors"
	"fmt"
)

// Deploy path.
var (
	ErrInvalidHandlerRef   = errors.New("invalid handler reference")
	ErrInvalidSpec         = errors.New("invalid function spec")
	ErrBuildFailed         = errors.New("build failed")
	ErrRegistryWriteFailed = errors.New("registry write failed")
)

// Invoke path.
var (
	ErrNotFound          = errors.New("function not found")
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrSubmissionFailed  = errors.New("workload submission failed")
	ErrTimeout           = errors.New("workload timed out")
	ErrExecutionFailed   = errors.New("workload execution failed")
	ErrMalformedResult   = errors.New("malformed result")
	ErrOutputUnavailable = errors.New("workload output unavailable")
)

// BuildError carries the build tool's diagnostic output.
type BuildError struct {
	Image  string
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Image, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// InvocationError ties an invoke failure to the workload that produced it.
// Output is the raw workload output when it could be fetched.
type InvocationError struct {
	Function string
	Workload string
	Output   string
	Err      error
}

func (e *InvocationError) Error() string {
	if e.Workload == "" {
		return fmt.Sprintf("invoke %s: %v", e.Function, e.Err)
	}
	return fmt.Sprintf("invoke %s (workload %s): %v", e.Function, e.Workload, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
