package docker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/husseinmohab/radical-faas/internal/config"
	"github.com/husseinmohab/radical-faas/internal/core/functions"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitStartsContainer(t *testing.T) {
	c, api := testClient(t, config.Config{})
	w := functions.Workload{
		Name:     "calculator-0a1b2c3d",
		Function: "calculator",
		Image:    "registry.local/faas/calculator:latest",
		Handler:  "sample_function.handle",
		Payload:  `{"operation":"sum","numbers":[1,2]}`,
	}
	api.waits[w.Name] = []waitOutcome{{code: 0}}

	require.NoError(t, c.Submit(context.Background(), w))

	assert.Equal(t, []string{w.Image}, api.pulled)
	assert.Equal(t, []string{"id-" + w.Name}, api.started)
	cfg := api.created[w.Name]
	require.NotNil(t, cfg)
	assert.Equal(t, w.Image, cfg.Image)
	assert.ElementsMatch(t, []string{
		"RADICAL_PAYLOAD=" + w.Payload,
		"RADICAL_HANDLER=" + w.Handler,
	}, cfg.Env)
	assert.Equal(t, "calculator", cfg.Labels[labelFunction])

	select {
	case name := <-api.removed:
		assert.Equal(t, w.Name, name)
	case <-time.After(2 * time.Second):
		t.Fatal("exited container was not collected")
	}
}

func TestSubmitSkipsPullForLocalImage(t *testing.T) {
	c, api := testClient(t, config.Config{})
	api.images["registry.local/faas/calculator:latest"] = true

	err := c.Submit(context.Background(), functions.Workload{
		Name:      "calculator-00000001",
		Image:     "registry.local/faas/calculator:latest",
		Retention: time.Hour,
	})
	require.NoError(t, err)
	assert.Empty(t, api.pulled)
}

func TestSubmitNameCollision(t *testing.T) {
	c, api := testClient(t, config.Config{})
	api.images["img"] = true
	w := functions.Workload{Name: "calculator-00000002", Image: "img", Retention: time.Hour}

	require.NoError(t, c.Submit(context.Background(), w))
	assert.Error(t, c.Submit(context.Background(), w))
}

func TestAwait(t *testing.T) {
	tests := []struct {
		name   string
		script []waitOutcome
		want   functions.TerminalState
	}{
		{name: "clean exit", script: []waitOutcome{{code: 0}}, want: functions.Succeeded},
		{name: "non-zero exit", script: []waitOutcome{{code: 1}}, want: functions.Failed},
		{
			name:   "wait stream interrupted",
			script: []waitOutcome{{err: errors.New("connection reset")}, {code: 0}},
			want:   functions.Succeeded,
		},
		{
			name:   "container vanished",
			script: []waitOutcome{{err: errdefs.NotFound(errors.New("no such container"))}},
			want:   functions.Failed,
		},
		{name: "never exits", want: functions.TimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api := testClient(t, config.Config{})
			api.waits["job"] = tt.script

			timeout := 2 * time.Second
			if tt.want == functions.TimedOut {
				timeout = 50 * time.Millisecond
			}
			state, err := c.Await(context.Background(), "job", timeout)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestAwaitCallerCancelled(t *testing.T) {
	c, _ := testClient(t, config.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.Await(ctx, "job", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutputDemuxesLogs(t *testing.T) {
	c, api := testClient(t, config.Config{})
	api.logs["job"] = "Wrapper: Executing function with payload: {}\n---RESULT_START---\n{\"x\": 1}\n---RESULT_END---\n"

	out, err := c.Output(context.Background(), "job")
	require.NoError(t, err)
	assert.Equal(t, api.logs["job"], out)

	_, err = c.Output(context.Background(), "missing")
	assert.Error(t, err)
}

func managedContainer(id, name, state string) container.Summary {
	return container.Summary{
		ID:     id,
		Names:  []string{"/" + name},
		State:  state,
		Labels: map[string]string{labelManagedBy: managedBy, labelFunction: "calculator"},
	}
}

// drainRemoved collects removals until none arrive for wait.
func drainRemoved(api *fakeAPI, wait time.Duration) []string {
	var names []string
	for {
		select {
		case name := <-api.removed:
			names = append(names, name)
		case <-time.After(wait):
			return names
		}
	}
}

func TestReclaimRemovesExpiredContainers(t *testing.T) {
	c, api := testClient(t, config.Config{JobTTL: time.Hour})
	api.containers = []container.Summary{
		managedContainer("id-old", "calculator-00000001", "exited"),
		managedContainer("id-recent", "calculator-00000002", "exited"),
		managedContainer("id-unknown", "calculator-00000003", "dead"),
		managedContainer("id-created", "calculator-00000004", "created"),
	}
	api.finishedAt["id-old"] = time.Now().Add(-2 * time.Hour)
	api.finishedAt["id-recent"] = time.Now().Add(-time.Minute)

	require.NoError(t, c.Reclaim(context.Background()))

	assert.Equal(t, []string{"label=" + labelManagedBy + "=" + managedBy}, labelFilters(api))
	assert.True(t, api.listOpts.All)
	assert.ElementsMatch(t,
		[]string{"calculator-00000001", "calculator-00000003", "calculator-00000004"},
		drainRemoved(api, 100*time.Millisecond))
	for _, opts := range api.rmOpts {
		assert.True(t, opts.Force)
	}
}

func TestReclaimSchedulesRemainingContainers(t *testing.T) {
	c, api := testClient(t, config.Config{JobTTL: 200 * time.Millisecond})
	api.containers = []container.Summary{
		managedContainer("id-recent", "calculator-00000005", "exited"),
		managedContainer("id-running", "calculator-00000006", "running"),
	}
	api.finishedAt["id-recent"] = time.Now()
	api.waits["calculator-00000006"] = []waitOutcome{{code: 0}}

	require.NoError(t, c.Reclaim(context.Background()))
	assert.Empty(t, drainRemoved(api, 50*time.Millisecond), "removed before retention passed")

	assert.ElementsMatch(t,
		[]string{"calculator-00000005", "calculator-00000006"},
		drainRemoved(api, time.Second))
}

func TestCollectorForcesRemovalAfterLostWait(t *testing.T) {
	c, api := testClient(t, config.Config{})
	api.waits["calculator-00000007"] = []waitOutcome{{err: errors.New("connection reset")}}

	c.collect("calculator-00000007", 0)

	require.Equal(t, []string{"calculator-00000007"}, drainRemoved(api, 10*time.Millisecond))
	require.Len(t, api.rmOpts, 1)
	assert.True(t, api.rmOpts[0].Force)
}

func labelFilters(api *fakeAPI) []string {
	api.mu.Lock()
	defer api.mu.Unlock()
	var out []string
	for _, v := range api.listOpts.Filters.Get("label") {
		out = append(out, "label="+v)
	}
	return out
}
