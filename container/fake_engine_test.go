package container

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/babydragon/buildtest/relay"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeEngine is a scripted Engine that records the calls it receives.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	pingErr error

	buildBody    string
	buildErr     error
	buildOpts    types.ImageBuildOptions
	buildContext []byte

	pullBody string
	pullErr  error
	pulled   []string

	createID       string
	createErr      error
	createWarnings []string
	config         *container.Config

	startErr error

	// waitResp is delivered on the status channel; otherwise waitErr on the
	// error channel; with neither, the status channel is closed.
	waitResp *container.WaitResponse
	waitErr  error

	logs     []byte
	logsErr  error
	logsTail error
	logsOpts container.LogsOptions

	removeErr  error
	removed    []string
	removeOpts []container.RemoveOptions

	closed bool
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.46"}, f.pingErr
}

func (f *fakeEngine) ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	f.record("build")
	f.buildOpts = options
	data, err := io.ReadAll(buildContext)
	if err != nil {
		return types.ImageBuildResponse{}, err
	}
	f.buildContext = data
	if f.buildErr != nil {
		return types.ImageBuildResponse{}, f.buildErr
	}
	return types.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(f.buildBody))}, nil
}

func (f *fakeEngine) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	f.record("pull")
	f.pulled = append(f.pulled, refStr)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(strings.NewReader(f.pullBody)), nil
}

func (f *fakeEngine) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.record("create")
	f.config = config
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	return container.CreateResponse{ID: f.createID, Warnings: f.createWarnings}, nil
}

func (f *fakeEngine) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.record("start")
	return f.startErr
}

func (f *fakeEngine) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	f.record("wait")
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	switch {
	case condition != container.WaitConditionNotRunning:
		errCh <- io.ErrUnexpectedEOF
	case f.waitResp != nil:
		statusCh <- *f.waitResp
	case f.waitErr != nil:
		errCh <- f.waitErr
	default:
		close(statusCh)
	}
	return statusCh, errCh
}

func (f *fakeEngine) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	f.record("logs")
	f.logsOpts = options
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	var r io.Reader = bytes.NewReader(f.logs)
	if f.logsTail != nil {
		r = io.MultiReader(r, iotest.ErrReader(f.logsTail))
	}
	return io.NopCloser(r), nil
}

func (f *fakeEngine) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.record("remove")
	f.removed = append(f.removed, containerID)
	f.removeOpts = append(f.removeOpts, options)
	return f.removeErr
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

// frame is one multiplexed log record.
type frame struct {
	stream stdcopy.StdType
	text   string
}

func muxed(frames ...frame) []byte {
	var buf bytes.Buffer
	for _, fr := range frames {
		w := stdcopy.NewStdWriter(&buf, fr.stream)
		if _, err := w.Write([]byte(fr.text)); err != nil {
			panic(err)
		}
	}
	return buf.Bytes()
}

// recordingSink collects forwarded text. With closeAfter > 0 it accepts that
// many items and then behaves like a disconnected consumer.
type recordingSink struct {
	mu         sync.Mutex
	texts      []string
	closeAfter int
}

func (s *recordingSink) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeAfter > 0 && len(s.texts) >= s.closeAfter {
		return relay.ErrSinkClosed
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func newTestManager(t *testing.T, f *fakeEngine, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(append([]ManagerOption{WithEngine(f)}, opts...)...)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if !m.IsAvailable() {
		t.Fatal("NewManager() with a reachable engine should be available")
	}
	return m
}
