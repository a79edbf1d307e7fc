package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/husseinmohab/radical-faas/internal/core/functions"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Submit creates and starts a one-shot container for w. A background
// collector removes it once it has exited and the retention period passed.
func (c *Client) Submit(ctx context.Context, w functions.Workload) error {
	if err := c.ensureImage(ctx, w.Image); err != nil {
		return err
	}

	resp, err := c.api.ContainerCreate(ctx,
		&container.Config{
			Image: w.Image,
			Env: []string{
				EnvPayload + "=" + w.Payload,
				EnvHandler + "=" + w.Handler,
			},
			Labels: map[string]string{
				labelManagedBy: managedBy,
				labelFunction:  w.Function,
			},
		},
		&container.HostConfig{},
		nil, nil, w.Name,
	)
	if err != nil {
		return fmt.Errorf("docker create: %w", err)
	}

	if err := c.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		c.removeContainer(context.WithoutCancel(ctx), w.Name)
		return fmt.Errorf("docker start: %w", err)
	}

	c.lg.Info().
		Str("container_id", resp.ID).
		Str("workload", w.Name).
		Str("function", w.Function).
		Msg("workload container started")

	go c.collect(w.Name, w.Retention)
	return nil
}

func (c *Client) collect(name string, retention time.Duration) {
	ctx := context.Background()
	waitCh, errCh := c.api.ContainerWait(ctx, name, container.WaitConditionNotRunning)
	select {
	case <-waitCh:
	case err := <-errCh:
		if client.IsErrNotFound(err) {
			return
		}
		c.lg.Warn().Err(err).Str("workload", name).Msg("collector lost track of container")
	}
	c.expire(name, retention)
}

// expire removes the container after d. Removal is forced because a
// container the collector lost track of may still be running.
func (c *Client) expire(name string, d time.Duration) {
	time.Sleep(d)
	c.removeContainer(context.Background(), name)
}

func (c *Client) removeContainer(ctx context.Context, name string) {
	err := c.api.ContainerRemove(ctx, name, container.RemoveOptions{RemoveVolumes: true, Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		c.lg.Warn().Err(err).Str("workload", name).Msg("failed to remove workload container")
		return
	}
	c.lg.Debug().Str("workload", name).Msg("workload container removed")
}

// Reclaim takes over the workload containers left by a previous process.
// Containers past their retention are removed now, the rest get a collector
// for the time remaining. It is meant to run once at startup.
func (c *Client) Reclaim(ctx context.Context) error {
	list, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelManagedBy+"="+managedBy)),
	})
	if err != nil {
		return fmt.Errorf("list workload containers: %w", err)
	}

	retention := c.cfg.JobTTL
	var removed, scheduled int
	for _, ctr := range list {
		name := ctr.ID
		if len(ctr.Names) > 0 {
			name = strings.TrimPrefix(ctr.Names[0], "/")
		}
		lg := c.lg.With().Str("workload", name).Str("state", string(ctr.State)).Logger()

		switch string(ctr.State) {
		case "running", "restarting", "paused":
			go c.collect(name, retention)
			scheduled++
		case "exited", "dead":
			left, err := c.retentionLeft(ctx, ctr.ID, retention)
			if err != nil {
				lg.Warn().Err(err).Msg("cannot read finish time, removing container")
			}
			if left <= 0 {
				c.removeContainer(ctx, name)
				removed++
				continue
			}
			go c.expire(name, left)
			scheduled++
		default:
			// created but never started, or mid-removal
			c.removeContainer(ctx, name)
			removed++
		}
	}

	c.lg.Info().Int("removed", removed).Int("scheduled", scheduled).Msg("reclaimed workload containers")
	return nil
}

func (c *Client) retentionLeft(ctx context.Context, id string, retention time.Duration) (time.Duration, error) {
	info, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("container inspect: %w", err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return 0, errors.New("container inspect: no state")
	}
	finished, err := time.Parse(time.RFC3339Nano, info.State.FinishedAt)
	if err != nil {
		return 0, fmt.Errorf("parse finish time %q: %w", info.State.FinishedAt, err)
	}
	return time.Until(finished.Add(retention)), nil
}

// Await blocks until the container exits or timeout elapses. A broken wait
// stream is re-attached with backoff.
func (c *Client) Await(ctx context.Context, name string, timeout time.Duration) (functions.TerminalState, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bo := backoff.WithContext(newBackOff(), ctx)
	for {
		waitCh, errCh := c.api.ContainerWait(ctx, name, container.WaitConditionNotRunning)
		select {
		case resp := <-waitCh:
			if resp.Error != nil || resp.StatusCode != 0 {
				c.lg.Info().Str("workload", name).Int64("exit_code", resp.StatusCode).Msg("workload container failed")
				return functions.Failed, nil
			}
			return functions.Succeeded, nil
		case err := <-errCh:
			if ctx.Err() != nil {
				return deadlineState(ctx)
			}
			if client.IsErrNotFound(err) {
				c.lg.Warn().Str("workload", name).Msg("workload container disappeared")
				return functions.Failed, nil
			}
			d := bo.NextBackOff()
			if d == backoff.Stop {
				return deadlineState(ctx)
			}
			c.lg.Warn().Err(err).Str("workload", name).Dur("retry_in", d).Msg("container wait interrupted")
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return deadlineState(ctx)
			}
		case <-ctx.Done():
			return deadlineState(ctx)
		}
	}
}

// Output returns the container's combined stdout and stderr.
func (c *Client) Output(ctx context.Context, name string) (string, error) {
	rc, err := c.api.ContainerLogs(ctx, name, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("container logs %s: %w", name, err)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return "", fmt.Errorf("read logs %s: %w", name, err)
	}
	return out.String(), nil
}

func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

// deadlineState reports TimedOut when the await deadline passed and the
// caller's own error otherwise.
func deadlineState(ctx context.Context) (functions.TerminalState, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return functions.TimedOut, nil
	}
	return "", ctx.Err()
}
