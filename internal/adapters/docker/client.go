package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/husseinmohab/radical-faas/internal/config"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
)

const (
	// EnvPayload and EnvHandler are read by the execution shim.
	EnvPayload = "RADICAL_PAYLOAD"
	EnvHandler = "RADICAL_HANDLER"

	labelManagedBy = "app.kubernetes.io/managed-by"
	labelFunction  = "radical-faas/function"
	managedBy      = "radical-faas"
)

// dockerAPI is the part of the engine client used here.
type dockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (image.InspectResponse, []byte, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	Close() error
}

// Client builds function images and, with DEPLOYMENT_ENV=docker, runs
// invocations as one-shot containers on the local engine.
type Client struct {
	api        dockerAPI
	lg         zerolog.Logger
	cfg        config.Config
	authHeader string
}

func New(cfg config.Config, lg zerolog.Logger) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return newClient(cli, cfg, lg)
}

func newClient(api dockerAPI, cfg config.Config, lg zerolog.Logger) (*Client, error) {
	c := &Client{api: api, cfg: cfg, lg: lg.With().Str("adapter", "docker").Logger()}

	if cfg.RegistryUser != "" && cfg.RegistryPass != "" {
		authConfig := registry.AuthConfig{
			Username:      cfg.RegistryUser,
			Password:      cfg.RegistryPass,
			ServerAddress: cfg.ContainerRegistry,
		}
		encodedJSON, err := json.Marshal(authConfig)
		if err != nil {
			return nil, fmt.Errorf("marshal auth config: %w", err)
		}
		c.authHeader = base64.URLEncoding.EncodeToString(encodedJSON)
		c.lg.Info().Str("registry", cfg.ContainerRegistry).Msg("configured registry authentication")
	}

	return c, nil
}

func (c *Client) Close() error {
	return c.api.Close()
}

func (c *Client) ensureImage(ctx context.Context, img string) error {
	_, _, err := c.api.ImageInspectWithRaw(ctx, img)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("image inspect: %w", err)
	}

	c.lg.Info().Str("image", img).Msg("pulling image from registry")
	rc, err := c.api.ImagePull(ctx, img, image.PullOptions{RegistryAuth: c.authHeader})
	if err != nil {
		return fmt.Errorf("image pull: %w", err)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)

	return nil
}
