package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/compose"
	"github.com/osss-dev/osss-compose/internal/config"
	"github.com/osss-dev/osss-compose/internal/docker"
	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/podman"
	"github.com/osss-dev/osss-compose/internal/port"
	"github.com/osss-dev/osss-compose/internal/process"
	"github.com/osss-dev/osss-compose/internal/stack"
)

// connectEngine opens the Docker SDK client and pings it. Any failure is
// logged and yields a nil API; callers then fall back to the compose CLI.
func (a *app) connectEngine(ctx context.Context, hint docker.EngineHint) (docker.API, func()) {
	log := logging.OrNop(a.log)
	c, err := docker.NewClient(hint)
	if err != nil {
		log.Debug("engine API unavailable", zap.Error(err))
		return nil, func() {}
	}
	if err := c.Ping(ctx); err != nil {
		log.Debug("engine not responding", zap.String("host", c.Host()), zap.Error(err))
		_ = c.Close()
		return nil, func() {}
	}
	log.Debug("engine API connected", zap.String("host", c.Host()))
	return c.API(), func() { _ = c.Close() }
}

func (a *app) composeFiles() []string {
	return a.settings.ComposeFiles
}

func (a *app) requireComposeFile() error {
	if a.settings.ComposeFileExists() {
		return nil
	}
	missing := a.settings.MissingComposeFile()
	if missing == "" {
		missing = a.settings.ComposeFile
	}
	return model.WrapCLIError(model.ExitComposeFileNotFound,
		fmt.Sprintf("%s does not exist (use -f or COMPOSE_FILE)", missing),
		compose.ErrComposeFileNotFound)
}

func (a *app) detect(ctx context.Context) (*compose.Provider, error) {
	p, err := compose.Detect(ctx, a.runner, compose.SelectorOptions{
		Engine:      a.settings.Engine,
		InMachine:   a.settings.InMachine,
		MachineName: a.settings.MachineName,
		Log:         a.log,
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitEngineUnavailable, "no compose command available", err)
	}
	return p, nil
}

// resolver returns a profile resolver. The provider is optional here: the
// YAML and scan sources still answer when no compose command is installed.
func (a *app) resolver(ctx context.Context) (*compose.Resolver, error) {
	if err := a.requireComposeFile(); err != nil {
		return nil, err
	}
	p, err := a.detect(ctx)
	if err != nil {
		a.log.Warn("resolving profiles from the compose file only", zap.Error(err))
	}
	return a.newResolver(p), nil
}

func (a *app) newResolver(p *compose.Provider) *compose.Resolver {
	return &compose.Resolver{
		Provider:     p,
		Runner:       a.runner,
		ComposeFiles: a.composeFiles(),
		ProjectName:  a.settings.Project,
		Dir:          a.settings.ProjectDir,
		Log:          a.log,
	}
}

// openStack wires a stack.Manager for the configured project. The returned
// func releases the engine client.
func (a *app) openStack(ctx context.Context) (*stack.Manager, func(), error) {
	if err := a.requireComposeFile(); err != nil {
		return nil, nil, err
	}
	p, err := a.detect(ctx)
	if err != nil {
		return nil, nil, err
	}
	a.log.Debug("using compose provider", zap.Stringer("provider", p))

	proj, err := compose.LoadProjects(a.composeFiles())
	if err != nil {
		a.log.Debug("compose file not parsed; stub pre-seeding and port checks disabled", zap.Error(err))
		proj = nil
	}

	m := &stack.Manager{
		ProjectName: a.settings.Project,
		Resolver:    a.newResolver(p),
		Executor: &compose.Executor{
			Provider: p,
			Runner:   a.runner,
			Files:    a.composeFiles(),
			Project:  a.settings.Project,
			Dir:      a.settings.ProjectDir,
			Log:      a.log,
			Model:    proj,
		},
		Model: proj,
		Ports: port.NewScanner(),
		Log:   a.log,
	}
	if p.Kind.IsPodman() {
		m.Pods = &stack.Pods{Provider: p, Runner: a.runner, Log: a.log}
	}

	api, closeAPI := a.connect(ctx, a.engineHint(ctx, p))
	if api != nil {
		m.API = api
	} else {
		a.log.Debug("engine API unavailable; using the compose CLI for cleanup")
	}
	return m, closeAPI, nil
}

// engineHint steers socket detection toward the engine the provider drives.
// For podman, the machine's forwarded socket is added when one exists.
func (a *app) engineHint(ctx context.Context, p *compose.Provider) docker.EngineHint {
	hint := docker.EngineHint{Engine: config.EngineDocker}
	if !p.Kind.IsPodman() {
		return hint
	}
	hint.Engine = config.EnginePodman
	info, err := a.machine().Inspect(ctx)
	switch {
	case err == nil:
		hint.PodmanSocket = info.SocketPath
	case errors.Is(err, podman.ErrMachineNotFound):
	default:
		a.log.Debug("podman machine inspect failed", zap.Error(err))
	}
	return hint
}

func (a *app) machine() *podman.Machine {
	return podman.NewMachine(a.settings.MachineName, a.runner, a.log)
}

// withLock runs fn while holding the project lock.
func (a *app) withLock(fn func() error) error {
	lock := process.NewLock(a.lockDir, a.settings.Project)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, process.ErrLockHeld) {
			return model.WrapCLIError(model.ExitLocked, "project is locked", err)
		}
		return err
	}
	a.log.Debug("project lock acquired", zap.String("path", lock.Path()))
	defer func() {
		if err := lock.Release(); err != nil {
			a.log.Warn("failed to release project lock", zap.Error(err))
		}
	}()
	return fn()
}

// target builds the lifecycle target from the global profile and args.
func (a *app) target(args []string) model.Target {
	return model.Target{Profile: a.settings.Profile, Services: args}
}

// withStack opens the stack, runs fn and releases the engine client.
func (a *app) withStack(ctx context.Context, fn func(*stack.Manager) error) error {
	m, closeAPI, err := a.openStack(ctx)
	if err != nil {
		return err
	}
	defer closeAPI()
	return fn(m)
}
