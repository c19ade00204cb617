package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestServiceState_String verifies the string forms used in status output.
func TestServiceState_String(t *testing.T) {
	tests := []struct {
		state    ServiceState
		expected string
	}{
		{StateRunning, "running"},
		{StateExited, "exited"},
		{StateMissing, "missing"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

// TestProfile_Has relies on Services being sorted, which the resolver
// guarantees.
func TestProfile_Has(t *testing.T) {
	p := &Profile{Name: "elastic", Services: []string{"elasticsearch", "kibana", "logstash"}}

	assert.True(t, p.Has("kibana"))
	assert.True(t, p.Has("elasticsearch"))
	assert.False(t, p.Has("keycloak"))
	assert.False(t, p.Has(""))
}

func TestTarget_String(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"empty", Target{}, "all services"},
		{"profile only", Target{Profile: "elastic"}, `profile "elastic"`},
		{"services only", Target{Services: []string{"vault", "consul"}}, "services vault, consul"},
		{"both", Target{Profile: "ai", Services: []string{"ollama"}}, `profile "ai" (ollama)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.String())
		})
	}
	assert.True(t, Target{}.IsEmpty())
	assert.False(t, Target{Profile: "x"}.IsEmpty())
}

func TestPortSpec_String(t *testing.T) {
	assert.Equal(t, "kibana:5601->5601/tcp", PortSpec{ServiceName: "kibana", HostPort: 5601, ContainerPort: 5601}.String())
	assert.Equal(t, "dns:53->53/udp", PortSpec{ServiceName: "dns", HostPort: 53, ContainerPort: 53, Protocol: "udp"}.String())
}

func TestContainerInfo_ShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", ContainerInfo{ContainerID: "0123456789abcdef"}.ShortID())
	assert.Equal(t, "abc", ContainerInfo{ContainerID: "abc"}.ShortID())
}

func TestStatusReport_Counts(t *testing.T) {
	r := &StatusReport{Services: []ServiceStatus{
		{Service: "a", State: StateRunning},
		{Service: "b", State: StateRunning},
		{Service: "c", State: StateExited},
		{Service: "d", State: StateMissing},
	}}

	running, exited, missing := r.Counts()
	assert.Equal(t, 2, running)
	assert.Equal(t, 1, exited)
	assert.Equal(t, 1, missing)
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedUnique([]string{"c", "a", " b ", "a", ""}))
	assert.Empty(t, SortedUnique(nil))
}

// TestCLIError verifies the custom error type used for exit code mapping.
func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitEngineUnavailable, "no compose provider found")
		assert.Equal(t, ExitEngineUnavailable, err.Code)
		assert.Equal(t, "no compose provider found", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitEngineUnavailable, "engine is not responding", inner)
		assert.Equal(t, ExitEngineUnavailable, err.Code)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, inner, err.Unwrap())
	})

	t.Run("errors.Is chain", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitEngineUnavailable, "engine is not responding", inner)
		assert.True(t, errors.Is(err, inner))
	})
}
