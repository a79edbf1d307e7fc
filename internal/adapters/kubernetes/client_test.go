package kubernetes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/husseinmohab/radical-faas/internal/config"
	"github.com/husseinmohab/radical-faas/internal/core/functions"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	apiv1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

const ns = "faas"

func testClient(objects ...runtime.Object) (*Client, *fake.Clientset) {
	cs := fake.NewSimpleClientset(objects...)
	cfg := config.Config{JobNamespace: ns, ImagePullSecret: "regcred"}
	return newClient(cs, cfg, zerolog.Nop()), cs
}

func workload() functions.Workload {
	return functions.Workload{
		Name:      "calculator-1a2b3c4d",
		Function:  "calculator",
		Image:     "registry.local/faas/calculator:latest",
		Handler:   "sample_function.handle",
		Payload:   `{"operation":"sum","numbers":[10,20,35]}`,
		Retention: 10 * time.Minute,
	}
}

func runningJob(name string) *batchv1.Job {
	return &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns}}
}

func finishedJob(name string, cond batchv1.JobConditionType) *batchv1.Job {
	j := runningJob(name)
	j.Status.Conditions = []batchv1.JobCondition{{Type: cond, Status: apiv1.ConditionTrue}}
	return j
}

// serveWatchers hands out ws in order, one per Watch call.
func serveWatchers(cs *fake.Clientset, ws ...watch.Interface) {
	var mu sync.Mutex
	cs.PrependWatchReactor("jobs", func(k8stesting.Action) (bool, watch.Interface, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(ws) == 0 {
			return true, watch.NewRaceFreeFake(), nil
		}
		w := ws[0]
		ws = ws[1:]
		return true, w, nil
	})
}

func TestSubmitCreatesJob(t *testing.T) {
	c, cs := testClient()
	w := workload()

	require.NoError(t, c.Submit(context.Background(), w))

	job, err := cs.BatchV1().Jobs(ns).Get(context.Background(), w.Name, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), *job.Spec.BackoffLimit)
	assert.Equal(t, int32(600), *job.Spec.TTLSecondsAfterFinished)
	assert.Equal(t, "calculator", job.Labels[labelFunction])

	pod := job.Spec.Template.Spec
	assert.Equal(t, apiv1.RestartPolicyNever, pod.RestartPolicy)
	assert.Equal(t, []apiv1.LocalObjectReference{{Name: "regcred"}}, pod.ImagePullSecrets)
	require.Len(t, pod.Containers, 1)
	ctr := pod.Containers[0]
	assert.Equal(t, w.Image, ctr.Image)
	assert.Equal(t, apiv1.PullIfNotPresent, ctr.ImagePullPolicy)
	assert.Equal(t, []apiv1.EnvVar{
		{Name: "RADICAL_PAYLOAD", Value: w.Payload},
		{Name: "RADICAL_HANDLER", Value: w.Handler},
	}, ctr.Env)
}

func TestSubmitRejectsExistingName(t *testing.T) {
	c, _ := testClient(runningJob(workload().Name))

	err := c.Submit(context.Background(), workload())
	require.Error(t, err)
	assert.True(t, apierrors.IsAlreadyExists(err))
}

func TestJobState(t *testing.T) {
	tests := []struct {
		name string
		job  *batchv1.Job
		want functions.TerminalState
	}{
		{name: "running", job: runningJob("j"), want: ""},
		{name: "complete condition", job: finishedJob("j", batchv1.JobComplete), want: functions.Succeeded},
		{name: "failed condition", job: finishedJob("j", batchv1.JobFailed), want: functions.Failed},
		{name: "succeeded count", job: &batchv1.Job{Status: batchv1.JobStatus{Succeeded: 1}}, want: functions.Succeeded},
		{name: "failed count", job: &batchv1.Job{Status: batchv1.JobStatus{Failed: 1}}, want: functions.Failed},
		{
			name: "condition not true",
			job: &batchv1.Job{Status: batchv1.JobStatus{Conditions: []batchv1.JobCondition{
				{Type: batchv1.JobComplete, Status: apiv1.ConditionFalse},
			}}},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jobState(tt.job))
		})
	}
}

func TestAwaitWatchEvents(t *testing.T) {
	const name = "calculator-1a2b3c4d"
	tests := []struct {
		name   string
		events func(w *watch.RaceFreeFakeWatcher)
		want   functions.TerminalState
	}{
		{
			name: "completes",
			events: func(w *watch.RaceFreeFakeWatcher) {
				w.Modify(runningJob(name))
				w.Modify(finishedJob(name, batchv1.JobComplete))
			},
			want: functions.Succeeded,
		},
		{
			name:   "fails",
			events: func(w *watch.RaceFreeFakeWatcher) { w.Modify(finishedJob(name, batchv1.JobFailed)) },
			want:   functions.Failed,
		},
		{
			name: "other jobs are ignored",
			events: func(w *watch.RaceFreeFakeWatcher) {
				w.Modify(finishedJob("calculator-ffffffff", batchv1.JobFailed))
				w.Modify(finishedJob(name, batchv1.JobComplete))
			},
			want: functions.Succeeded,
		},
		{
			name:   "deleted",
			events: func(w *watch.RaceFreeFakeWatcher) { w.Delete(runningJob(name)) },
			want:   functions.Failed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, cs := testClient(runningJob(name))
			w := watch.NewRaceFreeFake()
			tt.events(w)
			serveWatchers(cs, w)

			state, err := c.Await(context.Background(), name, 5*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestAwaitAlreadyFinished(t *testing.T) {
	const name = "calculator-00000000"
	c, cs := testClient(finishedJob(name, batchv1.JobComplete))
	cs.PrependWatchReactor("jobs", func(k8stesting.Action) (bool, watch.Interface, error) {
		t.Error("watch opened for a finished job")
		return true, watch.NewRaceFreeFake(), nil
	})

	state, err := c.Await(context.Background(), name, time.Second)
	require.NoError(t, err)
	assert.Equal(t, functions.Succeeded, state)
}

func TestAwaitReconnects(t *testing.T) {
	const name = "calculator-5e5e5e5e"

	t.Run("closed stream", func(t *testing.T) {
		c, cs := testClient(runningJob(name))
		dropped := watch.NewRaceFreeFake()
		dropped.Stop()
		next := watch.NewRaceFreeFake()
		next.Modify(finishedJob(name, batchv1.JobComplete))
		serveWatchers(cs, dropped, next)

		state, err := c.Await(context.Background(), name, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, functions.Succeeded, state)
	})

	t.Run("error event", func(t *testing.T) {
		c, cs := testClient(runningJob(name))
		broken := watch.NewRaceFreeFake()
		broken.Error(&metav1.Status{Status: metav1.StatusFailure, Code: 410, Reason: metav1.StatusReasonGone})
		next := watch.NewRaceFreeFake()
		next.Modify(finishedJob(name, batchv1.JobFailed))
		serveWatchers(cs, broken, next)

		state, err := c.Await(context.Background(), name, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, functions.Failed, state)
	})
}

func TestAwaitTimesOut(t *testing.T) {
	const name = "calculator-77777777"
	c, cs := testClient(runningJob(name))
	serveWatchers(cs, watch.NewRaceFreeFake())

	start := time.Now()
	state, err := c.Await(context.Background(), name, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, functions.TimedOut, state)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestAwaitCallerCancelled(t *testing.T) {
	const name = "calculator-88888888"
	c, cs := testClient(runningJob(name))
	serveWatchers(cs, watch.NewRaceFreeFake())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := c.Await(ctx, name, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitMissingJob(t *testing.T) {
	c, _ := testClient()
	state, err := c.Await(context.Background(), "ghost-00000000", time.Second)
	require.NoError(t, err)
	assert.Equal(t, functions.Failed, state)
}

func TestOutput(t *testing.T) {
	const name = "calculator-1a2b3c4d"
	pod := &apiv1.Pod{ObjectMeta: metav1.ObjectMeta{
		Name:      name + "-xk2p9",
		Namespace: ns,
		Labels:    map[string]string{"job-name": name},
	}}
	c, _ := testClient(pod)

	out, err := c.Output(context.Background(), name)
	require.NoError(t, err)
	// the fake clientset serves a fixed log body
	assert.Equal(t, "fake logs", out)

	_, err = c.Output(context.Background(), "calculator-00000000")
	assert.Error(t, err)
}
