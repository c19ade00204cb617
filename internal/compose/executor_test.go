package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/process"
)

func newExecutor(t *testing.T, m *process.MockRunner) *Executor {
	t.Helper()
	return &Executor{
		Provider: dockerPlugin,
		Runner:   m,
		Files:    []string{"docker-compose.yml"},
		Project:  "osss",
		Dir:      t.TempDir(),
	}
}

// overlayArg returns the -f argument after the base compose file, if any.
func overlayArg(cmd process.Cmd) string {
	for i := 0; i+1 < len(cmd.Args); i++ {
		if cmd.Args[i] == "-f" && cmd.Args[i+1] != "docker-compose.yml" {
			return cmd.Args[i+1]
		}
	}
	return ""
}

func TestExecutor_UpSucceedsFirstTime(t *testing.T) {
	m := process.NewMockRunner()
	e := newExecutor(t, m)

	res, err := e.Up(context.Background(), UpOptions{Profile: "auth", Services: []string{"keycloak", "vault"}, ForceRecreate: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Stubs)
	assert.Equal(t,
		[]string{"docker compose -p osss -f docker-compose.yml --profile auth up -d --force-recreate keycloak vault"},
		m.Lines())
}

// TestExecutor_UpStubsUndefinedDependency verifies the retry loop: the
// first attempt fails on an undefined dependency, the second carries an
// overlay defining it.
func TestExecutor_UpStubsUndefinedDependency(t *testing.T) {
	m := process.NewMockRunner()
	var overlayContent string
	m.RunFunc = func(_ context.Context, cmd process.Cmd) (process.Result, error) {
		path := overlayArg(cmd)
		if path == "" {
			res := process.Result{ExitCode: 15, Stderr: `service "ollama" depends on undefined service "qdrant": invalid compose project`}
			return res, &process.ExitError{Cmd: cmd.String(), ExitCode: 15, Stderr: res.Stderr}
		}
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		overlayContent = string(data)
		return process.Result{}, nil
	}
	e := newExecutor(t, m)

	res, err := e.Up(context.Background(), UpOptions{Profile: "ai"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []string{"qdrant"}, res.Stubs)
	assert.Contains(t, overlayContent, "qdrant:")
	assert.Contains(t, overlayContent, "busybox:1.36")

	// The overlay is removed once Up returns.
	entries, err := os.ReadDir(e.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecutor_UpStopsWhenStubDoesNotHelp(t *testing.T) {
	m := process.NewMockRunner().
		On("docker compose", process.Response{ExitCode: 15, Stderr: `service "a" depends on undefined service "b"`})
	e := newExecutor(t, m)

	res, err := e.Up(context.Background(), UpOptions{})
	require.Error(t, err)
	assert.Equal(t, 2, res.Attempts)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Contains(t, cliErr.Message, "depends on undefined service")
}

func TestExecutor_UpRetryCap(t *testing.T) {
	m := process.NewMockRunner()
	calls := 0
	m.RunFunc = func(_ context.Context, cmd process.Cmd) (process.Result, error) {
		calls++
		stderr := fmt.Sprintf(`depends on undefined service "svc%d"`, calls)
		return process.Result{ExitCode: 15, Stderr: stderr}, &process.ExitError{ExitCode: 15}
	}
	e := newExecutor(t, m)

	res, err := e.Up(context.Background(), UpOptions{})
	require.Error(t, err)
	assert.Equal(t, MaxStubRetry+1, res.Attempts)
	assert.Len(t, res.Stubs, MaxStubRetry)
}

func TestExecutor_UpPreseedsFromModel(t *testing.T) {
	m := process.NewMockRunner()
	e := newExecutor(t, m)
	e.Model = loadFixture(t)

	res, err := e.Up(context.Background(), UpOptions{Profile: "ai"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"qdrant"}, res.Stubs)
	assert.NotEmpty(t, overlayArg(m.Calls()[0].Cmd))
}

func TestExecutor_UpUnrelatedFailure(t *testing.T) {
	m := process.NewMockRunner().
		On("docker compose", process.Response{ExitCode: 1, Stderr: "Bind for 0.0.0.0:8080 failed: port is already allocated"})
	e := newExecutor(t, m)

	res, err := e.Up(context.Background(), UpOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, err.Error(), "compose up failed (exit status 1): ")
	assert.Contains(t, err.Error(), "port is already allocated")
}

func TestExecutor_Subcommands(t *testing.T) {
	m := process.NewMockRunner()
	e := newExecutor(t, m)
	ctx := context.Background()

	require.NoError(t, e.Build(ctx, "airflow", []string{"airflow-webserver"}, true))
	require.NoError(t, e.Rm(ctx, "auth", []string{"keycloak"}))
	require.NoError(t, e.Rm(ctx, "auth", nil))
	require.NoError(t, e.Down(ctx, true))
	_, err := e.Ps(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"docker compose -p osss -f docker-compose.yml --profile airflow build --no-cache airflow-webserver",
		"docker compose -p osss -f docker-compose.yml --profile auth rm -s -f keycloak",
		"docker compose -p osss -f docker-compose.yml down --remove-orphans -v",
		"docker compose -p osss -f docker-compose.yml ps -a",
	}, m.Lines())
	for _, c := range m.Calls() {
		assert.Equal(t, e.Dir, c.Cmd.Dir)
	}
}

func TestExecutor_Logs(t *testing.T) {
	m := process.NewMockRunner()
	m.StreamOutput = "keycloak-1  | started\n"
	e := newExecutor(t, m)

	var out bytes.Buffer
	err := e.Logs(context.Background(), LogsOptions{Profile: "auth", Services: []string{"keycloak"}, Tail: 50, Follow: true}, &out, &out)
	require.NoError(t, err)

	assert.Equal(t, "keycloak-1  | started\n", out.String())
	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Stream", calls[0].Method)
	assert.True(t, strings.HasSuffix(calls[0].Line(), "logs --tail 50 --follow keycloak"))
}
