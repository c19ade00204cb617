package model

import (
	"fmt"
	"sort"
	"strings"
)

// ServiceState represents the observed lifecycle state of a compose service.
// A service may be backed by zero or more containers; the state summarizes
// them.
type ServiceState string

const (
	// StateRunning indicates at least one container of the service is running.
	StateRunning ServiceState = "running"

	// StateExited indicates containers exist but none of them is running.
	StateExited ServiceState = "exited"

	// StateMissing indicates no container exists for the service.
	StateMissing ServiceState = "missing"
)

// String returns the string representation of ServiceState.
func (s ServiceState) String() string {
	return string(s)
}

// ResolveSource records which strategy produced a profile's service list.
// The resolver tries the sources in declaration order and reports the one
// that answered.
type ResolveSource string

const (
	// SourceNative means the compose provider answered
	// `config --services --profile X` itself.
	SourceNative ResolveSource = "native"

	// SourceYAML means the compose file was parsed structurally.
	SourceYAML ResolveSource = "yaml"

	// SourceScan means the line-oriented fallback scanner was used because
	// the file could not be parsed as YAML.
	SourceScan ResolveSource = "scan"
)

// String returns the string representation of ResolveSource.
func (s ResolveSource) String() string {
	return string(s)
}

// Profile is a resolved Compose profile: a named subset of services.
// It is a value type, resolved once per command and passed around.
type Profile struct {
	// Name is the profile name as written in the compose file.
	Name string `json:"name"`

	// Services is the sorted, de-duplicated list of service names whose
	// `profiles:` include Name. Unprofiled services are never included.
	Services []string `json:"services"`

	// Source tells which resolver strategy produced Services.
	Source ResolveSource `json:"source"`
}

// Has reports whether the profile contains the named service.
func (p *Profile) Has(service string) bool {
	i := sort.SearchStrings(p.Services, service)
	return i < len(p.Services) && p.Services[i] == service
}

// Target selects what a lifecycle action operates on: a profile, an explicit
// list of services, or both (the services are then restricted to the
// profile).
type Target struct {
	Profile  string   `json:"profile,omitempty"`
	Services []string `json:"services,omitempty"`
}

// IsEmpty reports whether neither a profile nor services were given.
func (t Target) IsEmpty() bool {
	return t.Profile == "" && len(t.Services) == 0
}

// String renders the target for log and status output.
func (t Target) String() string {
	switch {
	case t.Profile != "" && len(t.Services) > 0:
		return fmt.Sprintf("profile %q (%s)", t.Profile, strings.Join(t.Services, ", "))
	case t.Profile != "":
		return fmt.Sprintf("profile %q", t.Profile)
	case len(t.Services) > 0:
		return fmt.Sprintf("services %s", strings.Join(t.Services, ", "))
	default:
		return "all services"
	}
}

// PortSpec represents a host port published by a compose service.
type PortSpec struct {
	// ServiceName is the compose service that publishes the port.
	ServiceName string `json:"serviceName"`

	// HostPort is the port bound on the host (1-65535).
	HostPort int `json:"hostPort"`

	// ContainerPort is the port inside the container.
	ContainerPort int `json:"containerPort"`

	// Protocol is "tcp" or "udp". Defaults to "tcp".
	Protocol string `json:"protocol"`
}

// String returns "service:host->container/proto".
func (p PortSpec) String() string {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return fmt.Sprintf("%s:%d->%d/%s", p.ServiceName, p.HostPort, p.ContainerPort, proto)
}

// ContainerInfo holds runtime information about a container.
// This data is fetched dynamically from the engine API, not persisted.
type ContainerInfo struct {
	// ContainerID is the engine container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable container name without the
	// leading "/" the API adds.
	ContainerName string `json:"containerName"`

	// Project is the compose project label value.
	Project string `json:"project,omitempty"`

	// ServiceName is the compose service label value.
	ServiceName string `json:"serviceName,omitempty"`

	// PodName is set for podman containers that run inside a pod.
	PodName string `json:"podName,omitempty"`

	// Status is the engine state ("running", "exited", "created", ...).
	Status string `json:"status"`

	// Labels is the full set of labels on the container.
	Labels map[string]string `json:"labels,omitempty"`
}

// IsRunning reports whether the engine state is "running".
func (c ContainerInfo) IsRunning() bool {
	return c.Status == "running"
}

// ShortID returns the first 12 characters of the container ID.
func (c ContainerInfo) ShortID() string {
	if len(c.ContainerID) > 12 {
		return c.ContainerID[:12]
	}
	return c.ContainerID
}

// VolumeInfo holds the identity of a named volume owned by a compose project.
type VolumeInfo struct {
	// Name is the engine volume name (usually "<project>_<volume>").
	Name string `json:"name"`

	// ComposeName is the volume key in the compose file
	// (label com.docker.compose.volume).
	ComposeName string `json:"composeName,omitempty"`

	Labels map[string]string `json:"labels,omitempty"`
}

// ServiceStatus is one row of a status report.
type ServiceStatus struct {
	Service    string       `json:"service"`
	State      ServiceState `json:"state"`
	Containers []string     `json:"containers,omitempty"`
}

// StatusReport is the reconcile view of a target: what should exist versus
// what the engine reports.
type StatusReport struct {
	Project  string          `json:"project"`
	Target   Target          `json:"target"`
	Services []ServiceStatus `json:"services"`
}

// Counts returns the number of running, exited and missing services.
func (r *StatusReport) Counts() (running, exited, missing int) {
	for _, s := range r.Services {
		switch s.State {
		case StateRunning:
			running++
		case StateExited:
			exited++
		case StateMissing:
			missing++
		}
	}
	return running, exited, missing
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitComposeFileNotFound indicates the compose file does not exist.
	ExitComposeFileNotFound ExitCode = 2

	// ExitEngineUnavailable indicates no compose provider or container
	// engine socket could be found or reached.
	ExitEngineUnavailable ExitCode = 3

	// ExitPortConflict indicates a published host port is already in use.
	ExitPortConflict ExitCode = 4

	// ExitMachineError indicates a Podman machine operation failed.
	ExitMachineError ExitCode = 5

	// ExitProfileNotFound indicates the profile has no services.
	ExitProfileNotFound ExitCode = 6

	// ExitUserCancelled indicates the user cancelled an interactive prompt.
	ExitUserCancelled ExitCode = 7

	// ExitLocked indicates another instance holds the project lock.
	ExitLocked ExitCode = 8
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// SortedUnique returns a sorted copy of names with duplicates and empty
// strings removed.
func SortedUnique(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
