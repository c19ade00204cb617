package compose

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/process"
)

// ProviderKind identifies which compose implementation is in use.
type ProviderKind string

const (
	// KindDockerPlugin is `docker compose` (Compose v2 CLI plugin).
	KindDockerPlugin ProviderKind = "docker-plugin"

	// KindDockerStandalone is the `docker-compose` binary (v1 or v2).
	KindDockerStandalone ProviderKind = "docker-standalone"

	// KindPodmanPlugin is `podman compose`, which delegates to an external
	// provider (docker-compose or podman-compose).
	KindPodmanPlugin ProviderKind = "podman-plugin"

	// KindPodmanStandalone is the `podman-compose` Python tool.
	KindPodmanStandalone ProviderKind = "podman-standalone"
)

// IsPodman reports whether the provider drives the podman engine.
func (k ProviderKind) IsPodman() bool {
	return k == KindPodmanPlugin || k == KindPodmanStandalone
}

// Minimum versions with a working global --profile flag.
var (
	minDockerComposeProfiles = version.Must(version.NewVersion("1.28.0"))
	minPodmanComposeProfiles = version.Must(version.NewVersion("1.0.6"))
)

// Provider is a detected compose implementation.
type Provider struct {
	Kind ProviderKind `json:"kind"`

	// Binary is the executable, e.g. "docker" or "podman-compose".
	Binary string `json:"binary"`

	// Prefix holds arguments placed before every compose subcommand,
	// e.g. ["compose"] for the plugin forms.
	Prefix []string `json:"prefix,omitempty"`

	// Version is the parsed provider version, nil when unparsable.
	Version *version.Version `json:"-"`

	// RawVersion is the version probe output, trimmed.
	RawVersion string `json:"version"`

	// NativeProfiles reports whether `--profile X config --services` can be
	// trusted.
	NativeProfiles bool `json:"nativeProfiles"`

	// Machine, when set, wraps every command in
	// `podman machine ssh <Machine> --`.
	Machine string `json:"machine,omitempty"`
}

// String renders the provider for display, e.g. "docker compose 2.27.0".
func (p *Provider) String() string {
	name := strings.TrimSpace(p.Binary + " " + strings.Join(p.Prefix, " "))
	if p.Version != nil {
		name += " " + p.Version.String()
	}
	if p.Machine != "" {
		name += " (in machine " + p.Machine + ")"
	}
	return name
}

// Command builds the argv for a compose invocation.
func (p *Provider) Command(args ...string) process.Cmd {
	argv := make([]string, 0, len(p.Prefix)+len(args))
	argv = append(argv, p.Prefix...)
	argv = append(argv, args...)
	return wrapMachine(p.Machine, p.Binary, argv)
}

// EngineBinary returns "podman" or "docker", the container CLI matching
// this provider.
func (p *Provider) EngineBinary() string {
	if p.Kind.IsPodman() {
		return "podman"
	}
	return "docker"
}

// EngineCommand builds an argv for the engine CLI itself (not compose),
// honouring the machine wrap.
func (p *Provider) EngineCommand(args ...string) process.Cmd {
	return wrapMachine(p.Machine, p.EngineBinary(), args)
}

func wrapMachine(machine, binary string, args []string) process.Cmd {
	if machine == "" {
		return process.Cmd{Name: binary, Args: args}
	}
	wrapped := make([]string, 0, len(args)+5)
	wrapped = append(wrapped, "machine", "ssh", machine, "--", binary)
	wrapped = append(wrapped, args...)
	return process.Cmd{Name: "podman", Args: wrapped}
}

// SelectorOptions controls provider detection.
type SelectorOptions struct {
	// Engine is "auto", "docker" or "podman".
	Engine string

	// InMachine runs probes and commands inside the podman machine.
	InMachine bool

	// MachineName is the podman machine used when InMachine is set.
	MachineName string

	Log *zap.Logger
}

type probe struct {
	kind   ProviderKind
	binary string
	prefix []string
	args   []string
}

var (
	probeDockerPlugin     = probe{KindDockerPlugin, "docker", []string{"compose"}, []string{"compose", "version", "--short"}}
	probeDockerStandalone = probe{KindDockerStandalone, "docker-compose", nil, []string{"version", "--short"}}
	probePodmanPlugin     = probe{KindPodmanPlugin, "podman", []string{"compose"}, []string{"compose", "version"}}
	probePodmanStandalone = probe{KindPodmanStandalone, "podman-compose", nil, []string{"version"}}
)

func probeOrder(opts SelectorOptions) []probe {
	if opts.InMachine {
		return []probe{probePodmanPlugin, probePodmanStandalone}
	}
	switch opts.Engine {
	case "docker":
		return []probe{probeDockerPlugin, probeDockerStandalone}
	case "podman":
		return []probe{probePodmanPlugin, probePodmanStandalone}
	default:
		return []probe{probeDockerPlugin, probeDockerStandalone, probePodmanPlugin, probePodmanStandalone}
	}
}

// Detect probes compose implementations in order and returns the first
// that answers its version command.
func Detect(ctx context.Context, runner process.Runner, opts SelectorOptions) (*Provider, error) {
	log := logging.OrNop(opts.Log)
	machine := ""
	if opts.InMachine {
		machine = opts.MachineName
	}

	for _, pr := range probeOrder(opts) {
		cmd := wrapMachine(machine, pr.binary, pr.args)
		res, err := runner.Run(ctx, cmd)
		if err != nil {
			log.Debug("compose probe failed", zap.String("cmd", cmd.String()), zap.Error(err))
			continue
		}

		out := strings.TrimSpace(res.Stdout + "\n" + res.Stderr)
		p := &Provider{
			Kind:       pr.kind,
			Binary:     pr.binary,
			Prefix:     pr.prefix,
			RawVersion: firstLine(out),
			Machine:    machine,
		}
		if v, err := ParseVersion(out); err == nil {
			p.Version = v
		}
		p.NativeProfiles = supportsNativeProfiles(pr.kind, p.Version, out)

		log.Debug("compose provider selected",
			zap.String("provider", p.String()),
			zap.Bool("native_profiles", p.NativeProfiles))
		return p, nil
	}
	return nil, ErrNoProvider
}

var versionToken = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?(?:[-+][0-9A-Za-z.\-]+)?)`)

// ParseVersion extracts the first semver-looking token from version
// command output.
func ParseVersion(out string) (*version.Version, error) {
	m := versionToken.FindStringSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("no version found in %q", firstLine(out))
	}
	return version.NewVersion(m[1])
}

func supportsNativeProfiles(kind ProviderKind, v *version.Version, out string) bool {
	switch kind {
	case KindDockerPlugin:
		return true
	case KindDockerStandalone:
		return v != nil && v.Compare(minDockerComposeProfiles) >= 0
	case KindPodmanStandalone:
		return v != nil && v.Compare(minPodmanComposeProfiles) >= 0
	case KindPodmanPlugin:
		// podman compose prints the delegated provider's own version line.
		if strings.Contains(strings.ToLower(out), "podman-compose version") {
			return v != nil && v.Compare(minPodmanComposeProfiles) >= 0
		}
		return v != nil && v.Compare(minDockerComposeProfiles) >= 0
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
