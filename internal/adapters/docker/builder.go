package docker

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/husseinmohab/radical-faas/internal/core/functions"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/google/go-containerregistry/pkg/name"
)

// ImageRef is where the image for a function is tagged.
func ImageRef(registry, function string) string {
	return fmt.Sprintf("%s/%s:latest", registry, function)
}

// Build packages the function source with the execution shim and builds an
// image from it. The build directory is removed on every path.
func (c *Client) Build(ctx context.Context, spec functions.FunctionSpec) (string, error) {
	source, err := sourceFile(spec.Handler)
	if err != nil {
		return "", err
	}
	ref := ImageRef(c.cfg.ContainerRegistry, spec.Name)
	if _, err := name.NewTag(ref, name.WeakValidation); err != nil {
		return "", fmt.Errorf("%w: image reference %q: %w", functions.ErrBuildFailed, ref, err)
	}
	lg := c.lg.With().Str("function", spec.Name).Str("image", ref).Logger()

	dir, err := os.MkdirTemp(c.cfg.BuildRoot, "build-"+spec.Name+"-")
	if err != nil {
		return "", fmt.Errorf("%w: create build context: %w", functions.ErrBuildFailed, err)
	}
	lg.Debug().Str("dir", dir).Msg("created build context")
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			lg.Warn().Err(err).Str("dir", dir).Msg("failed to remove build context")
		}
	}()

	if err := writeBuildContext(dir, source, spec); err != nil {
		return "", err
	}

	tarball, err := archive.TarWithOptions(dir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("%w: archive build context: %w", functions.ErrBuildFailed, err)
	}
	defer tarball.Close()

	lg.Info().Msg("building image")
	resp, err := c.api.ImageBuild(ctx, tarball, build.ImageBuildOptions{
		Tags:        []string{ref},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", functions.ErrBuildFailed, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, &out, 0, false, nil); err != nil {
		lg.Error().Err(err).Msg("image build failed")
		return "", &functions.BuildError{Image: ref, Output: out.String(), Err: fmt.Errorf("%w: %w", functions.ErrBuildFailed, err)}
	}

	if c.cfg.PushImages {
		if err := c.push(ctx, ref); err != nil {
			return "", &functions.BuildError{Image: ref, Err: fmt.Errorf("%w: push: %w", functions.ErrBuildFailed, err)}
		}
	}

	lg.Info().Bool("pushed", c.cfg.PushImages).Msg("image ready")
	return ref, nil
}

func (c *Client) push(ctx context.Context, ref string) error {
	c.lg.Info().Str("image", ref).Msg("pushing image")
	rc, err := c.api.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: c.authHeader})
	if err != nil {
		return err
	}
	defer rc.Close()

	var out bytes.Buffer
	return jsonmessage.DisplayJSONMessagesStream(rc, &out, 0, false, nil)
}
