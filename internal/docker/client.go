package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"github.com/osss-dev/osss-compose/internal/model"
)

// defaultPingTimeout is the maximum duration to wait for the engine during
// Ping. Podman machines on macOS answer noticeably slower than native
// Docker, so this stays generous.
const defaultPingTimeout = 5 * time.Second

// Well-known engine socket paths. Variables so tests can point them at a
// scratch directory.
var (
	dockerSocketPath        = "/var/run/docker.sock"
	rootfulPodmanSocketPath = "/run/podman/podman.sock"
)

// API is the subset of the Docker SDK used by osss-compose. *client.Client
// satisfies it; tests substitute a fake.
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error)
	VolumeRemove(ctx context.Context, volumeID string, force bool) error
	NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
}

var _ API = (*client.Client)(nil)

// EngineHint steers socket detection.
type EngineHint struct {
	// Engine is "auto", "docker" or "podman".
	Engine string

	// PodmanSocket is the host-side path of a podman machine's API socket,
	// as reported by `podman machine inspect`. Optional.
	PodmanSocket string
}

// Client wraps the Docker Engine SDK client.
//
// Usage:
//
//	c, err := docker.NewClient(docker.EngineHint{Engine: "auto"})
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* engine not running */ }
type Client struct {
	inner *client.Client
	host  string
}

// NewClient creates a client with automatic socket detection.
//
// The detection order is:
//  1. DOCKER_HOST (used as-is)
//  2. Docker sockets, unless the hint says podman:
//     - Linux: /var/run/docker.sock
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine
//  3. Podman sockets, unless the hint says docker:
//     $XDG_RUNTIME_DIR/podman/podman.sock, /run/podman/podman.sock, then
//     the machine socket from the hint
//
// With Engine "podman" the podman sockets are tried first.
func NewClient(hint EngineHint) (*Client, error) {
	if dockerHost := os.Getenv("DOCKER_HOST"); dockerHost != "" {
		return newClientWithHost(dockerHost)
	}

	host, err := detectHost(hint)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitEngineUnavailable,
			"container engine socket not found",
			err,
		)
	}
	return newClientWithHost(host)
}

func newClientWithHost(host string) (*Client, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitEngineUnavailable,
			fmt.Sprintf("failed to create engine client for host %q", host),
			err,
		)
	}
	return &Client{inner: c, host: host}, nil
}

func detectHost(hint EngineHint) (string, error) {
	var candidates []string
	switch hint.Engine {
	case "docker":
		candidates = dockerSockets()
	case "podman":
		candidates = podmanSockets(hint.PodmanSocket)
	default:
		candidates = append(dockerSockets(), podmanSockets(hint.PodmanSocket)...)
	}

	if runtime.GOOS == "windows" && hint.Engine != "podman" {
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err == nil {
			conn.Close()
			return "npipe://" + pipePath, nil
		}
	}

	return detectUnixSocket(candidates)
}

func dockerSockets() []string {
	paths := []string{dockerSocketPath}
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
		}
	}
	return paths
}

func podmanSockets(machineSocket string) []string {
	var paths []string
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "podman", "podman.sock"))
	}
	paths = append(paths, rootfulPodmanSocketPath)
	if machineSocket != "" {
		paths = append(paths, machineSocket)
	}
	return paths
}

// detectUnixSocket returns the host URI for the first path that exists.
// Existence is enough here; Ping checks that something is listening.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("no engine socket at any of %v; is docker or podman running?", paths)
}

// Ping verifies the engine answers within defaultPingTimeout.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitEngineUnavailable,
			fmt.Sprintf("container engine at %s is not responding", c.host),
			err,
		)
	}
	return nil
}

// Host returns the engine address in use.
func (c *Client) Host() string {
	return c.host
}

// Close releases the client's resources. Safe to call more than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// API returns the client as the API interface used by the query helpers.
func (c *Client) API() API {
	return c.inner
}
