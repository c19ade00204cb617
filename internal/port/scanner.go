package port

import (
	"fmt"
	"net"

	"github.com/osss-dev/osss-compose/internal/model"
)

// Scanner checks whether specific ports are available on the host machine.
//
// It binds the port itself rather than parsing /proc/net/* or calling `lsof`
// or `ss`, which may need elevated permissions or be missing on macOS.
type Scanner struct {
	// Host is the address to bind. Empty means all interfaces, which is
	// what compose publishes on unless a host IP is given.
	Host string
}

// NewScanner creates a Scanner that binds on all interfaces.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a single port is free on the host.
//
// For TCP it attempts net.Listen, for UDP net.ListenPacket. The listener is
// closed immediately. An unknown protocol or out-of-range port is reported
// as unavailable.
func (s *Scanner) IsPortAvailable(port int, protocol string) bool {
	if port < 1 || port > 65535 {
		return false
	}
	addr := net.JoinHostPort(s.Host, fmt.Sprint(port))

	switch protocol {
	case "", "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		return false
	}
}

// Busy returns the specs whose host port is already taken, in input order.
// A port listed twice (for example by two services) is reported once per
// spec so each owner shows up in the error.
func (s *Scanner) Busy(specs []model.PortSpec) []model.PortSpec {
	var busy []model.PortSpec
	checked := make(map[string]bool)
	for _, spec := range specs {
		key := fmt.Sprintf("%d/%s", spec.HostPort, protocolOr(spec.Protocol))
		free, ok := checked[key]
		if !ok {
			free = s.IsPortAvailable(spec.HostPort, protocolOr(spec.Protocol))
			checked[key] = free
		}
		if !free {
			busy = append(busy, spec)
		}
	}
	return busy
}

// suggestRange is how far above a busy port FindAvailablePort looks for a
// replacement.
const suggestRange = 100

// FindAvailablePort scans [startPort, endPort] (inclusive) and returns the
// first port that is free for protocol. It is used to suggest an alternative
// when a published port is taken.
func (s *Scanner) FindAvailablePort(startPort, endPort int, protocol string) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if s.IsPortAvailable(port, protocol) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available %s port found in range %d-%d", protocol, startPort, endPort)
}

// ConflictError describes host ports that are already in use. Each line
// names a free port just above the busy one when there is one; a port is
// suggested at most once.
func (s *Scanner) ConflictError(busy []model.PortSpec) *model.CLIError {
	suggested := map[string]bool{}
	msg := "host ports already in use:"
	for _, b := range busy {
		proto := protocolOr(b.Protocol)
		msg += fmt.Sprintf("\n  %d/%s (service %s)", b.HostPort, proto, b.ServiceName)
		if alt, ok := s.suggest(b.HostPort, proto, suggested); ok {
			msg += fmt.Sprintf(", try %d", alt)
		}
	}
	return model.NewCLIError(model.ExitPortConflict, msg)
}

func (s *Scanner) suggest(busy int, proto string, seen map[string]bool) (int, bool) {
	start := busy + 1
	end := min(busy+suggestRange, 65535)
	for start <= end {
		alt, err := s.FindAvailablePort(start, end, proto)
		if err != nil {
			return 0, false
		}
		key := fmt.Sprintf("%d/%s", alt, proto)
		if !seen[key] {
			seen[key] = true
			return alt, true
		}
		start = alt + 1
	}
	return 0, false
}

func protocolOr(p string) string {
	if p == "" {
		return "tcp"
	}
	return p
}
