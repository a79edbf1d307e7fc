package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type waitOutcome struct {
	code int64
	err  error
}

// fakeAPI is an in-memory engine. Waits for a container are answered from
// its scripted outcomes in order; once exhausted, waits block.
type fakeAPI struct {
	mu sync.Mutex

	buildStream string
	buildErr    error
	buildOpts   build.ImageBuildOptions
	buildFiles  map[string]string

	pushed []string
	pushOp image.PushOptions

	images map[string]bool
	pulled []string

	created map[string]*container.Config
	started []string
	waits   map[string][]waitOutcome
	logs    map[string]string
	removed chan string
	rmOpts  []container.RemoveOptions

	// containers is what ContainerList returns; finishedAt is keyed by ID.
	containers []container.Summary
	finishedAt map[string]time.Time
	listOpts   container.ListOptions
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		buildStream: `{"stream":"Step 1/4 : FROM python:3.9-slim\n"}` + "\n" + `{"stream":"Successfully built 0123abcd\n"}` + "\n",
		images:      map[string]bool{},
		created:     map[string]*container.Config{},
		waits:       map[string][]waitOutcome{},
		logs:        map[string]string{},
		removed:     make(chan string, 16),
		finishedAt:  map[string]time.Time{},
	}
}

func (f *fakeAPI) ImageBuild(_ context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error) {
	files := map[string]string{}
	tr := tar.NewReader(buildContext)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return build.ImageBuildResponse{}, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return build.ImageBuildResponse{}, err
		}
		files[strings.TrimPrefix(hdr.Name, "./")] = string(b)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildOpts = options
	f.buildFiles = files
	if f.buildErr != nil {
		return build.ImageBuildResponse{}, f.buildErr
	}
	return build.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(f.buildStream))}, nil
}

func (f *fakeAPI) ImagePush(_ context.Context, ref string, options image.PushOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, ref)
	f.pushOp = options
	return io.NopCloser(strings.NewReader(`{"status":"Pushed"}` + "\n")), nil
}

func (f *fakeAPI) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, ref)
	f.images[ref] = true
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeAPI) ImageInspectWithRaw(_ context.Context, ref string) (image.InspectResponse, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.images[ref] {
		return image.InspectResponse{}, nil, errdefs.NotFound(errors.New("no such image"))
	}
	return image.InspectResponse{ID: "sha256:" + ref}, nil, nil
}

func (f *fakeAPI) ContainerCreate(_ context.Context, cfg *container.Config, _ *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.created[name]; ok {
		return container.CreateResponse{}, errdefs.Conflict(errors.New("name in use"))
	}
	f.created[name] = cfg
	return container.CreateResponse{ID: "id-" + name}, nil
}

func (f *fakeAPI) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeAPI) ContainerWait(_ context.Context, name string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	respCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.waits[name]
	if len(script) == 0 {
		return respCh, errCh
	}
	next := script[0]
	f.waits[name] = script[1:]
	if next.err != nil {
		errCh <- next.err
	} else {
		respCh <- container.WaitResponse{StatusCode: next.code}
	}
	return respCh, errCh
}

func (f *fakeAPI) ContainerLogs(_ context.Context, name string, _ container.LogsOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.logs[name]
	if !ok {
		return nil, errdefs.NotFound(errors.New("no such container"))
	}
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(out))
	return io.NopCloser(&buf), nil
}

func (f *fakeAPI) ContainerRemove(_ context.Context, name string, opts container.RemoveOptions) error {
	f.mu.Lock()
	f.rmOpts = append(f.rmOpts, opts)
	f.mu.Unlock()
	f.removed <- name
	return nil
}

func (f *fakeAPI) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOpts = opts
	return f.containers, nil
}

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.finishedAt[id]
	if !ok {
		return container.InspectResponse{}, errdefs.NotFound(errors.New("no such container"))
	}
	return container.InspectResponse{ContainerJSONBase: &container.ContainerJSONBase{
		ID:    id,
		State: &container.State{Status: "exited", FinishedAt: at.Format(time.RFC3339Nano)},
	}}, nil
}

func (f *fakeAPI) Close() error { return nil }
