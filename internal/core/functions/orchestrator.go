package functions

import (
	"context"
	"time"
)

// Builder turns a function spec into a runnable image.
type Builder interface {
	Build(ctx context.Context, spec FunctionSpec) (string, error)
}

// Registry stores the latest FunctionRecord per name. Get returns ErrNotFound
// when the name was never deployed.
type Registry interface {
	Upsert(ctx context.Context, rec *FunctionRecord) error
	Get(ctx context.Context, name string) (*FunctionRecord, error)
	List(ctx context.Context) ([]FunctionRecord, error)
	Delete(ctx context.Context, name string) error
}

// Orchestrator submits one-shot workloads and observes them to a terminal state.
type Orchestrator interface {
	// Submit creates the workload. It never retries.
	Submit(ctx context.Context, w Workload) error

	// Await blocks until the workload is Succeeded or Failed, or reports
	// TimedOut once timeout has elapsed. The workload is never deleted here.
	Await(ctx context.Context, workloadName string, timeout time.Duration) (TerminalState, error)

	// Output returns the combined output of the workload's single attempt.
	Output(ctx context.Context, workloadName string) (string, error)
}
