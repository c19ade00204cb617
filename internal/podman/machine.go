package podman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/process"
)

// DefaultMachineName is the machine podman creates when none is named.
const DefaultMachineName = "podman-machine-default"

const (
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 2 * time.Minute
)

// ErrMachineNotFound means `podman machine inspect` does not know the
// machine.
var ErrMachineNotFound = errors.New("podman machine not found")

// State is the lifecycle state reported by `podman machine inspect`.
type State string

const (
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateStarting State = "starting"
)

// MachineInfo is the part of `podman machine inspect` osss-compose uses.
type MachineInfo struct {
	Name       string `json:"name"`
	State      State  `json:"state"`
	SocketPath string `json:"socketPath,omitempty"`
	Rootful    bool   `json:"rootful"`
	CPUs       int    `json:"cpus,omitempty"`
	MemoryMB   int    `json:"memoryMB,omitempty"`
	DiskGB     int    `json:"diskGB,omitempty"`
}

// IsRunning reports whether the machine is up.
func (i *MachineInfo) IsRunning() bool {
	return i.State == StateRunning
}

type inspectEntry struct {
	Name           string
	State          string
	Rootful        bool
	ConnectionInfo struct {
		PodmanSocket *struct {
			Path string
		}
	}
	Resources struct {
		CPUs     int
		Memory   int
		DiskSize int
	}
}

// InitOptions sizes a new machine. Zero values leave podman's defaults.
type InitOptions struct {
	CPUs     int
	MemoryMB int
	DiskGB   int
	Rootful  bool
}

// Machine drives one podman machine.
type Machine struct {
	Name   string
	Runner process.Runner
	Log    *zap.Logger

	// PollInterval is the delay between SSH readiness probes.
	PollInterval time.Duration

	// Timeout bounds each wait for SSH to come up or go away.
	Timeout time.Duration
}

// NewMachine returns a Machine with default polling settings.
func NewMachine(name string, runner process.Runner, log *zap.Logger) *Machine {
	if name == "" {
		name = DefaultMachineName
	}
	return &Machine{
		Name:         name,
		Runner:       runner,
		Log:          log,
		PollInterval: defaultPollInterval,
		Timeout:      defaultTimeout,
	}
}

func (m *Machine) log() *zap.Logger {
	return logging.OrNop(m.Log).With(zap.String("machine", m.Name))
}

func (m *Machine) podman(args ...string) process.Cmd {
	return process.Cmd{Name: "podman", Args: args}
}

// SSH builds a command that runs argv inside the machine.
func (m *Machine) SSH(argv ...string) process.Cmd {
	args := append([]string{"machine", "ssh", m.Name, "--"}, argv...)
	return m.podman(args...)
}

func (m *Machine) run(ctx context.Context, what string, cmd process.Cmd) (process.Result, error) {
	m.log().Debug("running podman", zap.String("cmd", cmd.String()))
	res, err := m.Runner.Run(ctx, cmd)
	if err != nil {
		return res, model.WrapCLIError(model.ExitMachineError,
			fmt.Sprintf("podman machine %s failed for %s", what, m.Name), err)
	}
	return res, nil
}

// Inspect returns the machine's state. A machine podman does not know
// yields an error wrapping ErrMachineNotFound.
func (m *Machine) Inspect(ctx context.Context) (*MachineInfo, error) {
	res, err := m.Runner.Run(ctx, m.podman("machine", "inspect", m.Name))
	if err != nil {
		msg := strings.ToLower(res.Stderr + " " + err.Error())
		if strings.Contains(msg, "does not exist") || strings.Contains(msg, "no such") {
			return nil, fmt.Errorf("%w: %s", ErrMachineNotFound, m.Name)
		}
		return nil, model.WrapCLIError(model.ExitMachineError, "podman machine inspect failed", err)
	}

	doc, ok := jsonDocument(res.Stdout)
	if !ok {
		return nil, fmt.Errorf("no JSON in podman machine inspect output")
	}
	var entries []inspectEntry
	if err := json.Unmarshal([]byte(doc), &entries); err != nil {
		return nil, fmt.Errorf("failed to parse podman machine inspect output: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMachineNotFound, m.Name)
	}

	e := entries[0]
	info := &MachineInfo{
		Name:     e.Name,
		State:    State(strings.ToLower(e.State)),
		Rootful:  e.Rootful,
		CPUs:     e.Resources.CPUs,
		MemoryMB: e.Resources.Memory,
		DiskGB:   e.Resources.DiskSize,
	}
	if e.ConnectionInfo.PodmanSocket != nil {
		info.SocketPath = e.ConnectionInfo.PodmanSocket.Path
	}
	return info, nil
}

// jsonDocument skips warning lines podman may print before its JSON output.
// Warnings such as `WARN[0000] ...` contain brackets, so the document is
// taken to start at the first line that begins with one.
func jsonDocument(out string) (string, bool) {
	offset := 0
	for _, line := range strings.SplitAfter(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			return out[offset:], true
		}
		offset += len(line)
	}
	return "", false
}

// Init creates the machine.
func (m *Machine) Init(ctx context.Context, opts InitOptions) error {
	args := []string{"machine", "init"}
	if opts.CPUs > 0 {
		args = append(args, "--cpus", strconv.Itoa(opts.CPUs))
	}
	if opts.MemoryMB > 0 {
		args = append(args, "--memory", strconv.Itoa(opts.MemoryMB))
	}
	if opts.DiskGB > 0 {
		args = append(args, "--disk-size", strconv.Itoa(opts.DiskGB))
	}
	if opts.Rootful {
		args = append(args, "--rootful")
	}
	args = append(args, m.Name)

	m.log().Info("initialising podman machine")
	_, err := m.run(ctx, "init", m.podman(args...))
	return err
}

// Start boots the machine.
func (m *Machine) Start(ctx context.Context) error {
	m.log().Info("starting podman machine")
	_, err := m.run(ctx, "start", m.podman("machine", "start", m.Name))
	return err
}

// Stop shuts the machine down.
func (m *Machine) Stop(ctx context.Context) error {
	m.log().Info("stopping podman machine")
	_, err := m.run(ctx, "stop", m.podman("machine", "stop", m.Name))
	return err
}

// EnsureRunning creates the machine if needed, starts it if stopped and
// waits until SSH answers. Running it against a healthy machine only
// inspects it and probes SSH once.
func (m *Machine) EnsureRunning(ctx context.Context, opts InitOptions) (*MachineInfo, error) {
	info, err := m.Inspect(ctx)
	switch {
	case errors.Is(err, ErrMachineNotFound):
		if err := m.Init(ctx, opts); err != nil {
			return nil, err
		}
		if err := m.Start(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case info.State == StateStarting:
		m.log().Info("podman machine is already starting")
	case !info.IsRunning():
		if err := m.Start(ctx); err != nil {
			return nil, err
		}
	}

	if err := m.WaitSSH(ctx); err != nil {
		return nil, err
	}
	return m.Inspect(ctx)
}

// WaitSSH polls `ssh -- true` until it succeeds or Timeout passes.
func (m *Machine) WaitSSH(ctx context.Context) error {
	return m.waitSSH(ctx, true)
}

// waitSSH polls until the SSH probe succeeds (up) or fails (!up).
func (m *Machine) waitSSH(ctx context.Context, up bool) error {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	interval := m.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, err := m.Runner.Run(ctx, m.SSH("true"))
		if ctx.Err() != nil {
			return m.waitError(up, timeout, ctx.Err())
		}
		if (err == nil) == up {
			return nil
		}
		select {
		case <-ctx.Done():
			return m.waitError(up, timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (m *Machine) waitError(up bool, timeout time.Duration, err error) error {
	want := "come up"
	if !up {
		want = "go down"
	}
	return model.WrapCLIError(model.ExitMachineError,
		fmt.Sprintf("ssh to podman machine %s did not %s within %s", m.Name, want, timeout), err)
}

// Reboot restarts the VM's OS and returns once SSH is back. The reboot
// command runs in the background because the connection drops under it;
// its error is expected and only logged. Meanwhile SSH is polled until it
// goes away and comes back.
func (m *Machine) Reboot(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	rebootCtx, cancelReboot := context.WithCancel(gctx)
	defer cancelReboot()

	m.log().Info("rebooting podman machine")
	g.Go(func() error {
		if _, err := m.Runner.Run(rebootCtx, m.SSH("sudo", "systemctl", "reboot")); err != nil {
			m.log().Debug("reboot command ended", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		defer cancelReboot()
		if err := m.waitSSH(gctx, false); err != nil {
			return err
		}
		return m.waitSSH(gctx, true)
	})
	return g.Wait()
}

// EnableSocket enables the podman API socket inside the machine: the user
// socket always, the system socket as well on rootful machines.
func (m *Machine) EnableSocket(ctx context.Context) error {
	info, err := m.Inspect(ctx)
	if err != nil {
		return err
	}
	if _, err := m.run(ctx, "socket setup", m.SSH("systemctl", "--user", "enable", "--now", "podman.socket")); err != nil {
		return err
	}
	if info.Rootful {
		if _, err := m.run(ctx, "socket setup", m.SSH("sudo", "systemctl", "enable", "--now", "podman.socket")); err != nil {
			return err
		}
	}
	return nil
}

// InstallCompose installs podman-compose inside the machine unless it is
// already on PATH there. installed reports whether pip ran.
func (m *Machine) InstallCompose(ctx context.Context) (installed bool, err error) {
	if _, err := m.Runner.Run(ctx, m.SSH("sh", "-c", "command -v podman-compose")); err == nil {
		m.log().Debug("podman-compose already installed")
		return false, nil
	}
	m.log().Info("installing podman-compose in the machine")
	if _, err := m.run(ctx, "compose install", m.SSH("pip3", "install", "--user", "podman-compose")); err != nil {
		return false, err
	}
	return true, nil
}

// BootstrapResult reports what Bootstrap did.
type BootstrapResult struct {
	Machine          *MachineInfo `json:"machine"`
	ComposeInstalled bool         `json:"composeInstalled"`
}

// Bootstrap brings a machine from nothing to ready for osss-compose:
// running, API socket enabled, podman-compose installed.
func (m *Machine) Bootstrap(ctx context.Context, opts InitOptions) (*BootstrapResult, error) {
	info, err := m.EnsureRunning(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := m.EnableSocket(ctx); err != nil {
		return nil, err
	}
	installed, err := m.InstallCompose(ctx)
	if err != nil {
		return nil, err
	}
	return &BootstrapResult{Machine: info, ComposeInstalled: installed}, nil
}
