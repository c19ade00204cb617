package compose

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestUndefinedServiceFromError(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
		ok     bool
	}{
		{"compose v2 quoted", `service "ollama" depends on undefined service "qdrant": invalid compose project`, "qdrant", true},
		{"compose v2 unquoted", `service "web" depends on undefined service db`, "db", true},
		{"colon form", `depends on undefined service: "minio"`, "minio", true},
		{"compose v1", "Service web depends on service redis which is undefined.", "redis", true},
		{"podman-compose", "RuntimeError: missing dependency: es-init", "es-init", true},
		{"unrelated", "Error response from daemon: port is already allocated", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UndefinedServiceFromError(tt.output)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderOverlay(t *testing.T) {
	data, err := RenderOverlay([]string{"qdrant", "minio"}, "ai")
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Auto-generated by osss-compose")

	var doc struct {
		Services map[string]struct {
			Image    string            `yaml:"image"`
			Command  []string          `yaml:"command"`
			Labels   map[string]string `yaml:"labels"`
			Profiles []string          `yaml:"profiles"`
		} `yaml:"services"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.Services, 2)

	q := doc.Services["qdrant"]
	assert.Equal(t, StubImage, q.Image)
	assert.Equal(t, []string{"sh", "-c", "sleep infinity"}, q.Command)
	assert.Equal(t, "true", q.Labels[StubLabel])
	assert.Equal(t, []string{"ai"}, q.Profiles)

	// Input order does not change the output.
	again, err := RenderOverlay([]string{"minio", "qdrant"}, "ai")
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRenderOverlay_NoProfile(t *testing.T) {
	data, err := RenderOverlay([]string{"db"}, "")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "profiles")
}

func TestOverlay_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	o := NewOverlay(dir, "")

	assert.Equal(t, "", o.Path())
	assert.True(t, o.Add("db"))
	assert.False(t, o.Add("db"))
	assert.True(t, o.Has("db"))
	assert.Equal(t, 1, o.Len())

	path, err := o.Write()
	require.NoError(t, err)
	assert.FileExists(t, path)

	o.Add("cache")
	again, err := o.Write()
	require.NoError(t, err)
	assert.Equal(t, path, again, "rewrites the same file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cache:")
	assert.Contains(t, string(data), "db:")

	require.NoError(t, o.Close())
	assert.NoFileExists(t, path)
	require.NoError(t, o.Close())
}
