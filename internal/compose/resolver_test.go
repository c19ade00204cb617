package compose

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/process"
)

var dockerPlugin = &Provider{Kind: KindDockerPlugin, Binary: "docker", Prefix: []string{"compose"}, NativeProfiles: true}

func newResolver(m *process.MockRunner, provider *Provider, file string) *Resolver {
	return &Resolver{
		Provider:     provider,
		Runner:       m,
		ComposeFiles: []string{file},
		ProjectName:  "osss",
	}
}

func TestResolver_NativeSubtractsUnprofiled(t *testing.T) {
	file := filepath.Join("testdata", "docker-compose.yml")
	m := process.NewMockRunner().
		On("docker compose -p osss -f "+file+" --profile auth config --services", process.Response{Stdout: "keycloak\npostgres\nvault\n"}).
		On("docker compose -p osss -f "+file+" config --services", process.Response{Stdout: "postgres\n"})

	p, err := newResolver(m, dockerPlugin, file).Resolve(context.Background(), "auth")
	require.NoError(t, err)
	assert.Equal(t, []string{"keycloak", "vault"}, p.Services)
	assert.Equal(t, model.SourceNative, p.Source)
	assert.Equal(t, "auth", p.Name)
}

func TestResolver_FallsBackToYAML(t *testing.T) {
	file := filepath.Join("testdata", "docker-compose.yml")
	m := process.NewMockRunner()
	m.Strict = true

	p, err := newResolver(m, dockerPlugin, file).Resolve(context.Background(), "ai")
	require.NoError(t, err)
	assert.Equal(t, []string{"ollama"}, p.Services)
	assert.Equal(t, model.SourceYAML, p.Source)
}

func TestResolver_SkipsNativeWithoutProfileSupport(t *testing.T) {
	file := filepath.Join("testdata", "docker-compose.yml")
	m := process.NewMockRunner()
	old := &Provider{Kind: KindDockerStandalone, Binary: "docker-compose", NativeProfiles: false}

	p, err := newResolver(m, old, file).Resolve(context.Background(), "auth")
	require.NoError(t, err)
	assert.Equal(t, model.SourceYAML, p.Source)
	assert.Empty(t, m.Calls())
}

func TestResolver_FallsBackToScan(t *testing.T) {
	file := filepath.Join("testdata", "templated.yml")
	m := process.NewMockRunner()
	m.Strict = true

	p, err := newResolver(m, dockerPlugin, file).Resolve(context.Background(), "bi")
	require.NoError(t, err)
	assert.Equal(t, []string{"superset", "trino"}, p.Services)
	assert.Equal(t, model.SourceScan, p.Source)
}

func TestResolver_ProfileNotFound(t *testing.T) {
	file := filepath.Join("testdata", "docker-compose.yml")
	m := process.NewMockRunner().
		On("docker compose", process.Response{Stdout: "postgres\n"})

	_, err := newResolver(m, dockerPlugin, file).Resolve(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}

func TestResolver_EmptyProfileMeansAll(t *testing.T) {
	file := filepath.Join("testdata", "docker-compose.yml")
	m := process.NewMockRunner()
	m.Strict = true

	p, err := newResolver(m, dockerPlugin, file).Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"airflow-webserver", "keycloak", "ollama", "postgres", "vault"}, p.Services)
	assert.Equal(t, model.SourceYAML, p.Source)
}

func TestResolver_AllServicesNative(t *testing.T) {
	file := filepath.Join("testdata", "docker-compose.yml")
	m := process.NewMockRunner().
		On("docker compose -p osss -f "+file+" --profile * config --services", process.Response{Stdout: "b\na\n"})

	p, err := newResolver(m, dockerPlugin, file).AllServices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Services)
	assert.Equal(t, model.SourceNative, p.Source)
}

func TestResolver_ListProfiles(t *testing.T) {
	file := filepath.Join("testdata", "docker-compose.yml")
	m := process.NewMockRunner()
	m.Strict = true

	profiles, err := newResolver(m, &Provider{Kind: KindPodmanStandalone, Binary: "podman-compose"}, file).ListProfiles(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"ai", "airflow", "auth", "secrets"}, names)
	assert.Equal(t, []string{"keycloak", "vault"}, profiles[2].Services)
}

func TestGlobalArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-p", "osss", "-f", "a.yml", "-f", "b.yml", "--profile", "ai"},
		GlobalArgs("osss", []string{"a.yml", "b.yml"}, "ai"))
	assert.Equal(t, []string{"-f", "a.yml"}, GlobalArgs("", []string{"a.yml"}, ""))
}
