package port

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osss-dev/osss-compose/internal/model"
)

// listenTCP occupies an OS-assigned TCP port for the duration of the test.
func listenTCP(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "failed to start test listener")
	t.Cleanup(func() { _ = listener.Close() })

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return tcpAddr.Port
}

func TestIsPortAvailable_FreePort(t *testing.T) {
	scanner := NewScanner()

	freePort, err := scanner.FindAvailablePort(50000, 50100, "tcp")
	require.NoError(t, err, "should find at least one free port in 50000-50100")

	assert.True(t, scanner.IsPortAvailable(freePort, "tcp"), "port %d should be available", freePort)
}

func TestIsPortAvailable_UsedPort(t *testing.T) {
	port := listenTCP(t)
	assert.False(t, NewScanner().IsPortAvailable(port, "tcp"))
	assert.False(t, NewScanner().IsPortAvailable(port, ""), "empty protocol means tcp")
}

func TestIsPortAvailable_UDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", ":0")
	require.NoError(t, err, "failed to start test UDP listener")
	defer func() { _ = conn.Close() }()

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)

	assert.False(t, NewScanner().IsPortAvailable(udpAddr.Port, "udp"))
}

func TestIsPortAvailable_Invalid(t *testing.T) {
	scanner := NewScanner()
	assert.False(t, scanner.IsPortAvailable(50000, "sctp"))
	assert.False(t, scanner.IsPortAvailable(0, "tcp"))
	assert.False(t, scanner.IsPortAvailable(70000, "tcp"))
}

func TestBusy(t *testing.T) {
	taken := listenTCP(t)
	scanner := NewScanner()
	free, err := scanner.FindAvailablePort(50200, 50300, "tcp")
	require.NoError(t, err)

	specs := []model.PortSpec{
		{ServiceName: "keycloak", HostPort: taken, ContainerPort: 8080},
		{ServiceName: "vault", HostPort: free, ContainerPort: 8200, Protocol: "tcp"},
		{ServiceName: "keycloak-admin", HostPort: taken, ContainerPort: 9000, Protocol: "tcp"},
	}

	busy := scanner.Busy(specs)
	require.Len(t, busy, 2)
	assert.Equal(t, "keycloak", busy[0].ServiceName)
	assert.Equal(t, "keycloak-admin", busy[1].ServiceName)

	assert.Empty(t, scanner.Busy(nil))
}

func TestConflictError(t *testing.T) {
	err := NewScanner().ConflictError([]model.PortSpec{{ServiceName: "trino", HostPort: 8443}})
	assert.Equal(t, model.ExitPortConflict, err.Code)
	assert.Contains(t, err.Error(), "8443/tcp (service trino)")
}

func TestConflictError_SuggestsFreePorts(t *testing.T) {
	taken := listenTCP(t)
	scanner := NewScanner()
	want, err := scanner.FindAvailablePort(taken+1, taken+100, "tcp")
	require.NoError(t, err)

	err = scanner.ConflictError([]model.PortSpec{
		{ServiceName: "keycloak", HostPort: taken},
		{ServiceName: "keycloak-admin", HostPort: taken, Protocol: "tcp"},
	})
	msg := err.Error()
	assert.Contains(t, msg, fmt.Sprintf("%d/tcp (service keycloak), try %d", taken, want))
	assert.Contains(t, msg, fmt.Sprintf("%d/tcp (service keycloak-admin), try ", taken))
	assert.NotContains(t, msg, fmt.Sprintf("(service keycloak-admin), try %d", want),
		"each free port is suggested once")
}

func TestConflictError_NoSuggestionAtTopOfRange(t *testing.T) {
	err := NewScanner().ConflictError([]model.PortSpec{{ServiceName: "edge", HostPort: 65535}})
	assert.Contains(t, err.Error(), "65535/tcp (service edge)")
	assert.NotContains(t, err.Error(), "try")
}

func TestFindAvailablePort_NoneAvailable(t *testing.T) {
	port := listenTCP(t)

	_, err := NewScanner().FindAvailablePort(port, port, "tcp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no available")
}
