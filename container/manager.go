package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/babydragon/buildtest/internal/buildctx"
	"github.com/babydragon/buildtest/relay"
	"github.com/docker/docker/client"
)

// Labels attached to every container Run creates.
const (
	LabelRunID     = "buildtest.run-id"
	LabelManagedBy = "buildtest.managed-by"
	managedBy      = "buildtest"
)

// Manager builds images and runs commands against a Docker engine.
// A Manager may be used by several goroutines at once; each Build or Run
// call is independent.
type Manager struct {
	engine     Engine
	host       string
	apiVersion string
	dockerfile string
	available  bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEngine uses e instead of connecting to a Docker daemon.
func WithEngine(e Engine) ManagerOption {
	return func(m *Manager) {
		m.engine = e
	}
}

// WithHost connects to the given daemon address (e.g. "unix:///var/run/docker.sock")
// instead of probing the usual locations.
func WithHost(host string) ManagerOption {
	return func(m *Manager) {
		m.host = host
	}
}

// WithAPIVersion pins the engine API version instead of negotiating it.
func WithAPIVersion(version string) ManagerOption {
	return func(m *Manager) {
		m.apiVersion = version
	}
}

// WithDockerfile sets the descriptor content used by Build.
func WithDockerfile(content string) ManagerOption {
	return func(m *Manager) {
		m.dockerfile = content
	}
}

// NewManager creates a new Manager.
// If Docker is unavailable, it returns a Manager with available=false.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		dockerfile: buildctx.DefaultDescriptor,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.engine == nil {
		cli, err := createDockerClient(m.host, m.apiVersion)
		if err != nil {
			slog.Debug("docker client unavailable", "error", err)
			return m, nil
		}
		m.engine = cli
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := m.engine.Ping(ctx); err != nil {
		slog.Debug("docker ping failed", "error", err)
		m.engine.Close()
		m.engine = nil
		return m, nil
	}

	m.available = true
	return m, nil
}

// createDockerClient creates a Docker client. An explicit host is used as is;
// otherwise the environment (DOCKER_HOST, ...) is tried first, then the
// common socket locations.
func createDockerClient(host, apiVersion string) (*client.Client, error) {
	versionOpt := client.WithAPIVersionNegotiation()
	if apiVersion != "" {
		versionOpt = client.WithVersion(apiVersion)
	}

	if host != "" {
		return client.NewClientWithOpts(client.WithHost(host), versionOpt)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, versionOpt)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := cli.Ping(ctx); err == nil {
			return cli, nil
		}
		cli.Close()
	}

	socketPaths := []string{
		"unix://" + os.Getenv("HOME") + "/.docker/run/docker.sock", // Docker Desktop macOS
		"unix:///var/run/docker.sock",                               // Linux default
		"unix://" + os.Getenv("HOME") + "/.colima/docker.sock",     // Colima
	}

	for _, socketPath := range socketPaths {
		cli, err := client.NewClientWithOpts(client.WithHost(socketPath), versionOpt)
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err = cli.Ping(ctx)
		cancel()

		if err == nil {
			return cli, nil
		}
		cli.Close()
	}

	return nil, fmt.Errorf("could not connect to Docker daemon")
}

// IsAvailable returns whether Docker is available.
func (m *Manager) IsAvailable() bool {
	return m.available
}

// Close closes the engine client.
func (m *Manager) Close() error {
	if m.engine != nil {
		return m.engine.Close()
	}
	return nil
}

// hasSink reports whether s can receive text. A nil *relay.Sender stored in
// the interface counts as no sink.
func hasSink(s relay.Sink) bool {
	if s == nil {
		return false
	}
	if tx, ok := s.(*relay.Sender); ok && tx == nil {
		return false
	}
	return true
}

func forward(ctx context.Context, s relay.Sink, text string) error {
	if !hasSink(s) {
		return nil
	}
	return s.Send(ctx, text)
}
