package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osss-dev/osss-compose/internal/docker"
	"github.com/osss-dev/osss-compose/internal/model"
)

func ctr(service, name, status string) model.ContainerInfo {
	return model.ContainerInfo{
		ContainerID:   "id-" + name,
		ContainerName: name,
		Project:       "osss",
		ServiceName:   service,
		Status:        status,
	}
}

func names(cs []model.ContainerInfo) []string {
	var out []string
	for _, c := range cs {
		out = append(out, c.ContainerName)
	}
	return out
}

func TestDiff(t *testing.T) {
	actual := []model.ContainerInfo{
		ctr("postgres", "osss-postgres-1", "running"),
		ctr("keycloak", "osss-keycloak-1", "running"),
		ctr("vault", "osss-vault-1", "exited"),
		ctr("trino", "osss-trino-1", "running"),
	}
	auth := []string{"keycloak", "vault"}

	tests := []struct {
		name       string
		desired    []string
		scope      []string
		wantStart  []string
		wantRemove []string
		wantKeep   []string
	}{
		{
			name:      "up starts only what is not running",
			desired:   auth,
			scope:     auth,
			wantStart: []string{"vault"},
			wantKeep:  []string{"osss-keycloak-1", "osss-vault-1"},
		},
		{
			name:       "down removes only the scope",
			desired:    nil,
			scope:      auth,
			wantRemove: []string{"osss-keycloak-1", "osss-vault-1"},
		},
		{
			name:       "nil scope sees every container",
			desired:    []string{"postgres", "keycloak", "vault"},
			scope:      nil,
			wantStart:  []string{"vault"},
			wantRemove: []string{"osss-trino-1"},
			wantKeep:   []string{"osss-keycloak-1", "osss-postgres-1", "osss-vault-1"},
		},
		{
			name:      "missing service is started",
			desired:   []string{"superset"},
			scope:     []string{"superset"},
			wantStart: []string{"superset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Diff(tt.desired, actual, tt.scope)
			assert.Equal(t, tt.wantStart, plan.ToStart)
			assert.Equal(t, tt.wantRemove, names(plan.ToRemove))
			assert.Equal(t, tt.wantKeep, names(plan.Keep))
		})
	}
}

func TestDiff_DuplicatesAreStale(t *testing.T) {
	actual := []model.ContainerInfo{
		ctr("keycloak", "osss-keycloak-2", "exited"),
		ctr("keycloak", "osss-keycloak-1", "running"),
	}
	plan := Diff([]string{"keycloak"}, actual, []string{"keycloak"})

	assert.Empty(t, plan.ToStart)
	assert.Equal(t, []string{"osss-keycloak-1"}, names(plan.Keep))
	assert.Equal(t, []string{"osss-keycloak-2"}, names(plan.Stale))
	assert.True(t, plan.IsNoop())
}

func TestDiff_StubsAreNeverKept(t *testing.T) {
	stub := ctr("qdrant", "osss-qdrant-1", "running")
	stub.Labels = map[string]string{docker.LabelStub: "true"}

	plan := Diff([]string{"qdrant"}, []model.ContainerInfo{stub}, nil)
	assert.Equal(t, []string{"osss-qdrant-1"}, names(plan.ToRemove))
	assert.Equal(t, []string{"qdrant"}, plan.ToStart)
}

func TestDiff_OneoffContainersAreNotKept(t *testing.T) {
	run := ctr("keycloak", "osss-keycloak-run-1a2b", "running")
	run.Labels = map[string]string{docker.LabelComposeOneoff: "True"}
	actual := []model.ContainerInfo{run, ctr("keycloak", "osss-keycloak-1", "exited")}

	plan := Diff([]string{"keycloak"}, actual, []string{"keycloak"})
	assert.Equal(t, []string{"osss-keycloak-1"}, names(plan.Keep))
	assert.Equal(t, []string{"osss-keycloak-run-1a2b"}, names(plan.Stale))
	assert.Equal(t, []string{"keycloak"}, plan.ToStart)
}

func TestStates(t *testing.T) {
	actual := []model.ContainerInfo{
		ctr("keycloak", "osss-keycloak-1", "running"),
		ctr("vault", "osss-vault-1", "exited"),
		ctr("vault", "osss-vault-2", "running"),
		ctr("trino", "osss-trino-1", "created"),
	}
	got := States([]string{"vault", "keycloak", "superset", "trino"}, actual)

	assert.Equal(t, []model.ServiceStatus{
		{Service: "keycloak", State: model.StateRunning, Containers: []string{"osss-keycloak-1"}},
		{Service: "superset", State: model.StateMissing},
		{Service: "trino", State: model.StateExited, Containers: []string{"osss-trino-1"}},
		{Service: "vault", State: model.StateRunning, Containers: []string{"osss-vault-1", "osss-vault-2"}},
	}, got)
}
