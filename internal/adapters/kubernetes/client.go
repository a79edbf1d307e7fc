package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/husseinmohab/radical-faas/internal/config"
	"github.com/husseinmohab/radical-faas/internal/core/functions"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	batchv1 "k8s.io/api/batch/v1"
	apiv1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	containerName = "function"

	envPayload = "RADICAL_PAYLOAD"
	envHandler = "RADICAL_HANDLER"

	labelManagedBy = "app.kubernetes.io/managed-by"
	labelFunction  = "radical-faas/function"
	managedBy      = "radical-faas"
)

// Client runs invocations as batch/v1 Jobs.
type Client struct {
	clientset kubernetes.Interface
	lg        zerolog.Logger
	cfg       config.Config
}

// New prefers an explicit KUBECONFIG, then the in-cluster service account,
// then ~/.kube/config.
func New(cfg config.Config, lg zerolog.Logger) (*Client, error) {
	restCfg, err := restConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return newClient(clientset, cfg, lg), nil
}

func newClient(cs kubernetes.Interface, cfg config.Config, lg zerolog.Logger) *Client {
	return &Client{
		clientset: cs,
		lg:        lg.With().Str("adapter", "kubernetes").Logger(),
		cfg:       cfg,
	}
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		c, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig %s: %w", kubeconfig, err)
		}
		return c, nil
	}
	if c, err := rest.InClusterConfig(); err == nil {
		return c, nil
	}
	if _, err := os.Stat(clientcmd.RecommendedHomeFile); err != nil {
		return nil, fmt.Errorf("no in-cluster config and no kubeconfig at %s", clientcmd.RecommendedHomeFile)
	}
	c, err := clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	return c, nil
}

func (c *Client) job(w functions.Workload) *batchv1.Job {
	labels := map[string]string{
		labelManagedBy: managedBy,
		labelFunction:  w.Function,
	}

	podSpec := apiv1.PodSpec{
		RestartPolicy: apiv1.RestartPolicyNever,
		Containers: []apiv1.Container{
			{
				Name:            containerName,
				Image:           w.Image,
				ImagePullPolicy: apiv1.PullIfNotPresent,
				Env: []apiv1.EnvVar{
					{Name: envPayload, Value: w.Payload},
					{Name: envHandler, Value: w.Handler},
				},
			},
		},
	}
	if c.cfg.ImagePullSecret != "" {
		podSpec.ImagePullSecrets = []apiv1.LocalObjectReference{{Name: c.cfg.ImagePullSecret}}
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      w.Name,
			Namespace: c.cfg.JobNamespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            int32Ptr(0),
			TTLSecondsAfterFinished: int32Ptr(int32(w.Retention / time.Second)),
			Template: apiv1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}
}

// Submit creates the Job. A name collision is an error, never an adoption.
func (c *Client) Submit(ctx context.Context, w functions.Workload) error {
	_, err := c.clientset.BatchV1().Jobs(c.cfg.JobNamespace).Create(ctx, c.job(w), metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", w.Name, err)
	}
	c.lg.Info().Str("job", w.Name).Str("namespace", c.cfg.JobNamespace).Msg("created kubernetes job")
	return nil
}

// Await watches the Job until it completes or fails. A dropped watch is
// re-established with backoff until timeout elapses, at which point the
// Job is left for its TTL controller.
func (c *Client) Await(ctx context.Context, name string, timeout time.Duration) (functions.TerminalState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jobs := c.clientset.BatchV1().Jobs(c.cfg.JobNamespace)
	lg := c.lg.With().Str("job", name).Logger()
	bo := backoff.WithContext(newBackOff(), ctx)

	for {
		state, err := c.watchOnce(ctx, jobs, name)
		if err == nil && state != "" {
			return state, nil
		}
		if ctx.Err() != nil {
			return deadlineState(ctx)
		}
		if apierrors.IsNotFound(err) {
			lg.Warn().Msg("job not found")
			return functions.Failed, nil
		}

		d := bo.NextBackOff()
		if d == backoff.Stop {
			return deadlineState(ctx)
		}
		lg.Warn().Err(err).Dur("retry_in", d).Msg("job watch interrupted, re-subscribing")
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return deadlineState(ctx)
		}
	}
}

type jobClient interface {
	Get(ctx context.Context, name string, opts metav1.GetOptions) (*batchv1.Job, error)
	Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)
}

var errWatchClosed = errors.New("watch channel closed")

// watchOnce returns a terminal state, or an error when the subscription
// ended without one.
func (c *Client) watchOnce(ctx context.Context, jobs jobClient, name string) (functions.TerminalState, error) {
	// the job may have finished while no watch was open
	job, err := jobs.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	if state := jobState(job); state != "" {
		return state, nil
	}

	w, err := jobs.Watch(ctx, metav1.ListOptions{
		FieldSelector:   fields.OneTermEqualSelector("metadata.name", name).String(),
		ResourceVersion: job.ResourceVersion,
	})
	if err != nil {
		return "", err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-w.ResultChan():
			if !ok {
				return "", errWatchClosed
			}
			switch ev.Type {
			case watch.Error:
				return "", apierrors.FromObject(ev.Object)
			case watch.Deleted:
				if j, ok := ev.Object.(*batchv1.Job); ok && j.Name == name {
					c.lg.Warn().Str("job", name).Msg("job deleted before finishing")
					return functions.Failed, nil
				}
			case watch.Added, watch.Modified:
				j, ok := ev.Object.(*batchv1.Job)
				if !ok || j.Name != name {
					continue
				}
				if state := jobState(j); state != "" {
					return state, nil
				}
			}
		}
	}
}

// jobState maps Job status to a terminal state, or "" while it is running.
func jobState(job *batchv1.Job) functions.TerminalState {
	for _, cond := range job.Status.Conditions {
		if cond.Status != apiv1.ConditionTrue {
			continue
		}
		switch cond.Type {
		case batchv1.JobComplete:
			return functions.Succeeded
		case batchv1.JobFailed:
			return functions.Failed
		}
	}
	if job.Status.Succeeded > 0 {
		return functions.Succeeded
	}
	if job.Status.Failed > 0 {
		return functions.Failed
	}
	return ""
}

// Output returns the log of the Job's pod.
func (c *Client) Output(ctx context.Context, name string) (string, error) {
	pods, err := c.clientset.CoreV1().Pods(c.cfg.JobNamespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + name,
	})
	if err != nil {
		return "", fmt.Errorf("list pods for job %s: %w", name, err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pods found for job %s", name)
	}

	pod := pods.Items[0].Name
	rc, err := c.clientset.CoreV1().Pods(c.cfg.JobNamespace).GetLogs(pod, &apiv1.PodLogOptions{Container: containerName}).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("stream logs for pod %s: %w", pod, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read logs for pod %s: %w", pod, err)
	}
	return string(b), nil
}

func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

func deadlineState(ctx context.Context) (functions.TerminalState, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return functions.TimedOut, nil
	}
	return "", ctx.Err()
}

func int32Ptr(i int32) *int32 { return &i }
