package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/husseinmohab/radical-faas/internal/config"
	"github.com/husseinmohab/radical-faas/pkg/rand"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

type Manager struct {
	registry     Registry
	builder      Builder
	orchestrator Orchestrator
	cfg          config.Config
	lg           zerolog.Logger

	// nil means unbounded
	slots *semaphore.Weighted
	now   func() time.Time
}

func NewManager(reg Registry, b Builder, orch Orchestrator, cfg config.Config, lg zerolog.Logger) *Manager {
	m := &Manager{
		registry:     reg,
		builder:      b,
		orchestrator: orch,
		cfg:          cfg,
		lg:           lg.With().Str("component", "function-manager").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	if cfg.MaxConcurrentInvocations > 0 {
		m.slots = semaphore.NewWeighted(int64(cfg.MaxConcurrentInvocations))
	}
	return m
}

// Deploy builds the function image and then records it. Nothing is recorded
// if the build fails. Once started, a deploy runs to completion even if the
// caller goes away.
func (m *Manager) Deploy(ctx context.Context, spec FunctionSpec) (*FunctionRecord, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	lg := m.lg.With().Str("function", spec.Name).Logger()
	lg.Info().Str("runtime", spec.Runtime).Str("handler", spec.Handler).Msg("deploying function")

	image, err := m.builder.Build(ctx, spec)
	if err != nil {
		if !errors.Is(err, ErrBuildFailed) && !errors.Is(err, ErrInvalidHandlerRef) {
			err = fmt.Errorf("%w: %w", ErrBuildFailed, err)
		}
		lg.Error().Err(err).Msg("build failed")
		return nil, err
	}

	rec := &FunctionRecord{
		Name:         spec.Name,
		ImageRef:     image,
		Handler:      spec.Handler,
		Runtime:      spec.Runtime,
		Dependencies: spec.Dependencies,
		CreatedAt:    m.now(),
	}
	if err := m.registry.Upsert(ctx, rec); err != nil {
		lg.Error().Err(err).Str("image", image).Msg("registry write failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrRegistryWriteFailed, spec.Name, err)
	}

	lg.Info().Str("image", image).Msg("function deployed")
	return rec, nil
}

// Invoke runs the function once with payload and returns its decoded result.
// Failures are reported as-is; nothing is retried here.
func (m *Manager) Invoke(ctx context.Context, functionName string, payload json.RawMessage) (json.RawMessage, error) {
	rec, err := m.registry.Get(ctx, functionName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &InvocationError{Function: functionName, Err: err}
		}
		return nil, fmt.Errorf("lookup %s: %w", functionName, err)
	}

	payloadText, err := canonicalPayload(payload)
	if err != nil {
		return nil, &InvocationError{Function: functionName, Err: err}
	}

	if m.slots != nil {
		if err := m.slots.Acquire(ctx, 1); err != nil {
			return nil, &InvocationError{Function: functionName, Err: fmt.Errorf("%w: admission: %w", ErrSubmissionFailed, err)}
		}
		defer m.slots.Release(1)
	}

	w := Workload{
		Name:      WorkloadName(functionName),
		Function:  functionName,
		Image:     rec.ImageRef,
		Handler:   rec.Handler,
		Payload:   payloadText,
		Retention: m.cfg.JobTTL,
	}
	lg := m.lg.With().Str("function", functionName).Str("workload", w.Name).Logger()

	if err := m.orchestrator.Submit(ctx, w); err != nil {
		lg.Error().Err(err).Msg("submit workload")
		return nil, &InvocationError{Function: functionName, Workload: w.Name, Err: fmt.Errorf("%w: %w", ErrSubmissionFailed, err)}
	}
	lg.Info().Msg("workload submitted, awaiting completion")

	state, err := m.orchestrator.Await(ctx, w.Name, m.cfg.InvokeTimeout)
	if err != nil {
		return nil, &InvocationError{Function: functionName, Workload: w.Name, Err: err}
	}
	lg.Info().Str("state", string(state)).Msg("workload finished")

	switch state {
	case Succeeded:
		out, err := m.orchestrator.Output(ctx, w.Name)
		if err != nil {
			return nil, &InvocationError{Function: functionName, Workload: w.Name, Err: fmt.Errorf("%w: %w", ErrOutputUnavailable, err)}
		}
		result, err := ExtractResult(out)
		if err != nil {
			lg.Warn().Err(err).Msg("could not extract result")
			return nil, &InvocationError{Function: functionName, Workload: w.Name, Output: out, Err: err}
		}
		return result, nil
	case Failed:
		// best effort: the shim's diagnostic line is the only clue
		out, oerr := m.orchestrator.Output(ctx, w.Name)
		if oerr != nil {
			lg.Debug().Err(oerr).Msg("no output for failed workload")
		}
		return nil, &InvocationError{Function: functionName, Workload: w.Name, Output: out, Err: ErrExecutionFailed}
	default:
		return nil, &InvocationError{
			Function: functionName,
			Workload: w.Name,
			Err:      fmt.Errorf("%w: no terminal state within %s", ErrTimeout, m.cfg.InvokeTimeout),
		}
	}
}

func (m *Manager) GetFunction(ctx context.Context, name string) (*FunctionRecord, error) {
	return m.registry.Get(ctx, name)
}

func (m *Manager) ListFunctions(ctx context.Context) ([]FunctionRecord, error) {
	return m.registry.List(ctx)
}

// RemoveFunction drops the registry record. Built images are left in place.
func (m *Manager) RemoveFunction(ctx context.Context, name string) error {
	if err := m.registry.Delete(ctx, name); err != nil {
		return err
	}
	m.lg.Info().Str("function", name).Msg("function removed")
	return nil
}

// WorkloadName derives a collision-resistant name for one invocation.
func WorkloadName(functionName string) string {
	return functionName + "-" + rand.Suffix()
}
