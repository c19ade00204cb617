package stack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osss-dev/osss-compose/internal/compose"
	"github.com/osss-dev/osss-compose/internal/process"
)

func TestPods_List(t *testing.T) {
	runner := process.NewMockRunner()
	p := &Pods{
		Provider: &compose.Provider{Kind: compose.KindPodmanStandalone, Binary: "podman-compose", Machine: "osss"},
		Runner:   runner,
	}

	runner.On("podman machine ssh osss -- podman pod ls", process.Response{Stdout: "null\n"})
	pods, err := p.List(context.Background(), "osss")
	require.NoError(t, err)
	assert.Empty(t, pods)

	runner.On("podman machine ssh osss -- podman pod ls", process.Response{
		Stdout: `[{"Id":"abc","Name":"pod_osss","Status":"Running","Labels":{"io.podman.compose.project":"osss"},"Containers":[{"Id":"c1","Names":"osss_vault_1","Status":"running"}]}]`,
	})
	pods, err = p.List(context.Background(), "osss")
	require.NoError(t, err)
	require.Len(t, pods, 1)
	assert.Equal(t, "pod_osss", pods[0].Name)
	assert.Equal(t, "osss_vault_1", pods[0].Containers[0].Name)

	runner.On("podman machine ssh osss -- podman pod ls", process.Response{Stdout: "not json"})
	_, err = p.List(context.Background(), "osss")
	assert.Error(t, err)
}

func TestPods_RemoveAggregates(t *testing.T) {
	runner := process.NewMockRunner()
	runner.On("podman pod rm -f broken", process.Response{ExitCode: 125, Stderr: "pod is locked"})
	p := &Pods{Provider: &compose.Provider{Kind: compose.KindPodmanPlugin, Binary: "podman", Prefix: []string{"compose"}}, Runner: runner}

	err := p.Remove(context.Background(), []string{"broken", "pod_osss"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remove pod broken")
	assert.Equal(t, []string{"podman pod rm -f broken", "podman pod rm -f pod_osss"}, runner.Lines())
}

func TestPodsWithin(t *testing.T) {
	pods := []Pod{
		{Name: "a", Containers: []PodContainer{{ID: "1", Name: "x"}, {ID: "2", Name: "y"}}},
		{Name: "b", Containers: []PodContainer{{ID: "3", Name: "z"}, {ID: "4", Name: "b-infra"}}},
		{Name: "c", Containers: []PodContainer{{ID: "5", Name: "w"}}},
		{Name: "empty"},
	}
	removed := map[string]bool{"x": true, "2": true, "z": true}

	assert.Equal(t, []string{"a", "b", "empty"}, PodsWithin(pods, removed))
}
