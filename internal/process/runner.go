package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Cmd describes one external command invocation.
type Cmd struct {
	// Name is the binary to run (resolved through PATH).
	Name string

	// Args are the arguments, not including Name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra variables appended to the inherited environment.
	Env map[string]string
}

// String renders the command line for logs and error messages.
func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands. All docker, podman, compose, openssl
// and keytool invocations go through a Runner so callers can be tested with
// MockRunner.
type Runner interface {
	// Run executes the command to completion and captures its output.
	// A non-zero exit status is returned as *ExitError together with the
	// populated Result.
	Run(ctx context.Context, cmd Cmd) (Result, error)

	// Stream executes the command with stdout and stderr connected to the
	// given writers. It is used for long-running output such as
	// `logs --follow`.
	Stream(ctx context.Context, cmd Cmd, stdout, stderr io.Writer) error
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Cmd      string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", e.Cmd, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Cmd, e.ExitCode, msg)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a Runner backed by real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes cmd and captures stdout and stderr separately.
func (r *ExecRunner) Run(ctx context.Context, cmd Cmd) (Result, error) {
	start := time.Now()
	c := build(ctx, cmd)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Cmd: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	if err != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}
	return res, nil
}

// Stream executes cmd with its output connected to the given writers.
func (r *ExecRunner) Stream(ctx context.Context, cmd Cmd, stdout, stderr io.Writer) error {
	c := build(ctx, cmd)
	c.Stdout = stdout
	c.Stderr = stderr

	err := c.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Cmd: cmd.String(), ExitCode: exitErr.ExitCode()}
	}
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", cmd.Name, err)
	}
	return nil
}

func build(ctx context.Context, cmd Cmd) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = os.Environ()
		for k, v := range cmd.Env {
			c.Env = append(c.Env, k+"="+v)
		}
	}
	return c
}

// LookPath reports whether a binary is available in PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// ExitCodeOf extracts the exit status from an error returned by Run or
// Stream. It returns -1 for errors that are not *ExitError.
func ExitCodeOf(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode
	}
	return -1
}
