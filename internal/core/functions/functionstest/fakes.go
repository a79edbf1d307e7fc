// Package functionstest provides in-memory doubles of the functions ports.
package functionstest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/husseinmohab/radical-faas/internal/core/functions"
)

// Registry is a map-backed functions.Registry.
type Registry struct {
	mu      sync.Mutex
	records map[string]functions.FunctionRecord

	// UpsertErr, when set, is returned by every Upsert.
	UpsertErr error
}

func NewRegistry() *Registry {
	return &Registry{records: map[string]functions.FunctionRecord{}}
}

func (r *Registry) Upsert(_ context.Context, rec *functions.FunctionRecord) error {
	if r.UpsertErr != nil {
		return r.UpsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Name] = *rec
	return nil
}

func (r *Registry) Get(_ context.Context, name string) (*functions.FunctionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", functions.ErrNotFound, name)
	}
	return &rec, nil
}

func (r *Registry) List(_ context.Context) ([]functions.FunctionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]functions.FunctionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Registry) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[name]; !ok {
		return fmt.Errorf("%w: %s", functions.ErrNotFound, name)
	}
	delete(r.records, name)
	return nil
}

// Builder records specs and returns "{Registry}/{name}:latest". Like a real
// engine build, it fails when ctx is already done.
type Builder struct {
	Registry string
	Err      error

	mu    sync.Mutex
	Specs []functions.FunctionSpec
}

func (b *Builder) Build(ctx context.Context, spec functions.FunctionSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	b.Specs = append(b.Specs, spec)
	b.mu.Unlock()
	if b.Err != nil {
		return "", b.Err
	}
	return fmt.Sprintf("%s/%s:latest", b.Registry, spec.Name), nil
}

// Handler stands in for user code baked into an image.
type Handler func(payload any) (any, error)

// Orchestrator runs Handlers in-process and renders their output the way the
// execution shim does.
type Orchestrator struct {
	// Handlers is keyed by image reference.
	Handlers map[string]Handler

	// Hang makes Await report TimedOut after the timeout elapses.
	Hang      bool
	SubmitErr error

	mu        sync.Mutex
	workloads map[string]functions.Workload
	outputs   map[string]string
	states    map[string]functions.TerminalState
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{
		Handlers:  map[string]Handler{},
		workloads: map[string]functions.Workload{},
		outputs:   map[string]string{},
		states:    map[string]functions.TerminalState{},
	}
}

func (o *Orchestrator) Submit(_ context.Context, w functions.Workload) error {
	if o.SubmitErr != nil {
		return o.SubmitErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.workloads[w.Name]; ok {
		return fmt.Errorf("workload %s already exists", w.Name)
	}
	o.workloads[w.Name] = w

	state, out := o.run(w)
	o.states[w.Name] = state
	o.outputs[w.Name] = out
	return nil
}

// run mirrors the shim: diagnostics, then a delimited JSON result, or a
// diagnostic line and a failed state.
func (o *Orchestrator) run(w functions.Workload) (functions.TerminalState, string) {
	var out strings.Builder
	h, ok := o.Handlers[w.Image]
	if !ok {
		fmt.Fprintf(&out, "Wrapper Error: no module for %s\n", w.Handler)
		return functions.Failed, out.String()
	}
	var payload any
	if err := json.Unmarshal([]byte(w.Payload), &payload); err != nil {
		fmt.Fprintf(&out, "Wrapper Error: %v\n", err)
		return functions.Failed, out.String()
	}
	fmt.Fprintf(&out, "Wrapper: Executing function with payload: %v\n", payload)
	result, err := h(payload)
	if err != nil {
		fmt.Fprintf(&out, "Wrapper Error: %v\n", err)
		return functions.Failed, out.String()
	}
	b, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(&out, "Wrapper Error: %v\n", err)
		return functions.Failed, out.String()
	}
	fmt.Fprintf(&out, "%s\n%s\n%s\n", functions.ResultStart, b, functions.ResultEnd)
	return functions.Succeeded, out.String()
}

func (o *Orchestrator) Await(ctx context.Context, name string, timeout time.Duration) (functions.TerminalState, error) {
	if o.Hang {
		select {
		case <-time.After(timeout):
			return functions.TimedOut, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.states[name]
	if !ok {
		return "", fmt.Errorf("unknown workload %s", name)
	}
	return state, nil
}

func (o *Orchestrator) Output(_ context.Context, name string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out, ok := o.outputs[name]
	if !ok {
		return "", fmt.Errorf("unknown workload %s", name)
	}
	return out, nil
}

// SetOutput overrides what Output returns for a submitted workload.
func (o *Orchestrator) SetOutput(name, out string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outputs[name] = out
}

// Workloads returns every submitted workload.
func (o *Orchestrator) Workloads() []functions.Workload {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]functions.Workload, 0, len(o.workloads))
	for _, w := range o.workloads {
		out = append(out, w)
	}
	return out
}

// Calculator is the sample calculator function from examples/calculator.
func Calculator(payload any) (any, error) {
	p, _ := payload.(map[string]any)
	op, _ := p["operation"].(string)
	nums, ok := p["numbers"].([]any)
	if p["numbers"] == nil {
		nums, ok = []any{}, true
	}
	if !ok {
		return map[string]any{"error": "Input 'numbers' must be a list."}, nil
	}

	switch op {
	case "sum":
		var total float64
		for _, n := range nums {
			f, _ := n.(float64)
			total += f
		}
		return map[string]any{"operation": "sum", "result": total}, nil
	case "multiply":
		total := 1.0
		for _, n := range nums {
			f, _ := n.(float64)
			total *= f
		}
		return map[string]any{"operation": "multiply", "result": total}, nil
	default:
		return map[string]any{"error": fmt.Sprintf("Unsupported operation: '%s'. Please use 'sum' or 'multiply'.", op)}, nil
	}
}
