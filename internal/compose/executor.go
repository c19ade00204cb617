package compose

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/process"
)

// Executor runs compose subcommands for one project.
type Executor struct {
	Provider *Provider
	Runner   process.Runner
	Files    []string
	Project  string
	Dir      string
	Env      map[string]string
	Log      *zap.Logger

	// Model, when set, pre-seeds the stub overlay with dependencies the
	// compose file never defines.
	Model *Project
}

// UpOptions controls Executor.Up.
type UpOptions struct {
	Profile       string
	Services      []string
	ForceRecreate bool
	Build         bool
}

// UpResult reports what Up had to do.
type UpResult struct {
	// Stubs lists placeholder services injected for undefined dependencies.
	Stubs []string `json:"stubs,omitempty"`

	// Attempts is the number of `up` invocations.
	Attempts int `json:"attempts"`
}

// Up runs `up -d`. When compose rejects the project because a depends_on
// target is undefined, the target is added to a stub overlay and `up` is
// retried, at most MaxStubRetry times. A name that comes back after being
// stubbed ends the loop with the compose error.
func (e *Executor) Up(ctx context.Context, opts UpOptions) (*UpResult, error) {
	log := logging.OrNop(e.Log)
	overlay := NewOverlay(e.Dir, opts.Profile)
	defer func() {
		if err := overlay.Close(); err != nil {
			log.Warn("failed to remove stub overlay", zap.String("path", overlay.Path()), zap.Error(err))
		}
	}()

	if e.Model != nil {
		for dep := range e.Model.UndefinedDependencies() {
			overlay.Add(dep)
		}
	}

	result := &UpResult{}
	for retries := 0; ; retries++ {
		files := e.Files
		if overlay.Len() > 0 {
			path, err := overlay.Write()
			if err != nil {
				return result, err
			}
			files = append(append([]string{}, e.Files...), path)
		}

		args := GlobalArgs(e.Project, files, opts.Profile)
		args = append(args, "up", "-d")
		if opts.ForceRecreate {
			args = append(args, "--force-recreate")
		}
		if opts.Build {
			args = append(args, "--build")
		}
		args = append(args, opts.Services...)

		result.Attempts++
		res, err := e.run(ctx, args)
		if err == nil {
			result.Stubs = overlay.Names()
			return result, nil
		}

		name, ok := UndefinedServiceFromError(res.Stderr + "\n" + res.Stdout)
		if !ok || retries >= MaxStubRetry || overlay.Has(name) {
			result.Stubs = overlay.Names()
			return result, composeError("up", res, err)
		}
		log.Warn("stubbing undefined dependency and retrying",
			zap.String("service", name), zap.Int("retry", retries+1))
		overlay.Add(name)
	}
}

// Build runs `build` for the given services.
func (e *Executor) Build(ctx context.Context, profile string, services []string, noCache bool) error {
	args := GlobalArgs(e.Project, e.Files, profile)
	args = append(args, "build")
	if noCache {
		args = append(args, "--no-cache")
	}
	args = append(args, services...)
	res, err := e.run(ctx, args)
	if err != nil {
		return composeError("build", res, err)
	}
	return nil
}

// Rm stops and removes the containers of services (`rm -s -f`).
func (e *Executor) Rm(ctx context.Context, profile string, services []string) error {
	if len(services) == 0 {
		return nil
	}
	args := GlobalArgs(e.Project, e.Files, profile)
	args = append(args, "rm", "-s", "-f")
	args = append(args, services...)
	res, err := e.run(ctx, args)
	if err != nil {
		return composeError("rm", res, err)
	}
	return nil
}

// Down runs `down` for the whole project.
func (e *Executor) Down(ctx context.Context, removeVolumes bool) error {
	args := GlobalArgs(e.Project, e.Files)
	args = append(args, "down", "--remove-orphans")
	if removeVolumes {
		args = append(args, "-v")
	}
	res, err := e.run(ctx, args)
	if err != nil {
		return composeError("down", res, err)
	}
	return nil
}

// LogsOptions controls Executor.Logs.
type LogsOptions struct {
	Profile  string
	Services []string
	Tail     int
	Follow   bool
}

// Logs streams `logs` output to stdout and stderr.
func (e *Executor) Logs(ctx context.Context, opts LogsOptions, stdout, stderr io.Writer) error {
	args := GlobalArgs(e.Project, e.Files, opts.Profile)
	args = append(args, "logs")
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	if opts.Follow {
		args = append(args, "--follow")
	}
	args = append(args, opts.Services...)
	return e.Runner.Stream(ctx, e.command(args), stdout, stderr)
}

// Ps returns the provider's `ps -a` table.
func (e *Executor) Ps(ctx context.Context, profile string) (string, error) {
	args := GlobalArgs(e.Project, e.Files, profile)
	args = append(args, "ps", "-a")
	res, err := e.run(ctx, args)
	if err != nil {
		return "", composeError("ps", res, err)
	}
	return res.Stdout, nil
}

func (e *Executor) command(args []string) process.Cmd {
	cmd := e.Provider.Command(args...)
	cmd.Dir = e.Dir
	cmd.Env = e.Env
	return cmd
}

func (e *Executor) run(ctx context.Context, args []string) (process.Result, error) {
	cmd := e.command(args)
	logging.OrNop(e.Log).Debug("running compose", zap.String("cmd", cmd.String()))
	return e.Runner.Run(ctx, cmd)
}

func composeError(sub string, res process.Result, err error) error {
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(res.Stdout)
	}
	msg := fmt.Sprintf("compose %s failed", sub)
	if code := process.ExitCodeOf(err); code > 0 {
		msg += fmt.Sprintf(" (exit status %d)", code)
	}
	if detail != "" {
		msg += ": " + lastLines(detail, 5)
	}
	return model.WrapCLIError(model.ExitGeneralError, msg, err)
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
