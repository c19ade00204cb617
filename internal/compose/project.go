package compose

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/osss-dev/osss-compose/internal/model"
)

// Project is the subset of a compose file osss-compose reasons about.
type Project struct {
	Name     string                `yaml:"name,omitempty"`
	Services map[string]Service    `yaml:"services"`
	Volumes  map[string]VolumeDef  `yaml:"volumes,omitempty"`
	Networks map[string]NetworkDef `yaml:"networks,omitempty"`
}

// Service is one entry under `services:`.
type Service struct {
	Image         string        `yaml:"image,omitempty"`
	Build         interface{}   `yaml:"build,omitempty"`
	ContainerName string        `yaml:"container_name,omitempty"`
	Profiles      []string      `yaml:"profiles,omitempty"`
	DependsOn     DependsOn     `yaml:"depends_on,omitempty"`
	Ports         []PortEntry   `yaml:"ports,omitempty"`
	Volumes       []VolumeEntry `yaml:"volumes,omitempty"`
	Labels        Labels        `yaml:"labels,omitempty"`
}

// HasBuild reports whether the service has a build section.
func (s Service) HasBuild() bool {
	return s.Build != nil
}

// VolumeDef is a top-level volume definition. A bare `name:` key decodes as
// the zero value.
type VolumeDef struct {
	Name     string `yaml:"name,omitempty"`
	External bool   `yaml:"external,omitempty"`
}

// NetworkDef is a top-level network definition.
type NetworkDef struct {
	Name     string `yaml:"name,omitempty"`
	Driver   string `yaml:"driver,omitempty"`
	External bool   `yaml:"external,omitempty"`
}

// DependsOn accepts both the list form and the map form
// (`db: {condition: service_healthy}`).
type DependsOn []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DependsOn) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*d = list
	case yaml.MappingNode:
		names := make([]string, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			names = append(names, node.Content[i].Value)
		}
		*d = names
	case yaml.ScalarNode:
		if node.Value != "" {
			*d = []string{node.Value}
		}
	default:
		return fmt.Errorf("line %d: unsupported depends_on form", node.Line)
	}
	return nil
}

// Labels accepts both the map form and the `- key=value` list form.
type Labels map[string]string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Labels) UnmarshalYAML(node *yaml.Node) error {
	out := map[string]string{}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			out[node.Content[i].Value] = node.Content[i+1].Value
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			k, v, _ := strings.Cut(item.Value, "=")
			out[k] = v
		}
	default:
		return fmt.Errorf("line %d: unsupported labels form", node.Line)
	}
	*l = out
	return nil
}

// PortEntry is one `ports:` item in short ("8080:80/tcp") or long form.
type PortEntry struct {
	Short     string
	Target    string
	Published string
	Protocol  string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PortEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Short = node.Value
		return nil
	}
	var long struct {
		Target    string `yaml:"target"`
		Published string `yaml:"published"`
		Protocol  string `yaml:"protocol"`
	}
	if err := node.Decode(&long); err != nil {
		return err
	}
	p.Target, p.Published, p.Protocol = long.Target, long.Published, long.Protocol
	return nil
}

// VolumeEntry is one service `volumes:` item in short ("data:/var/lib")
// or long form.
type VolumeEntry struct {
	Type   string
	Source string
	Target string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *VolumeEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parts := strings.SplitN(node.Value, ":", 3)
		if len(parts) == 1 {
			v.Target = parts[0]
			return nil
		}
		v.Source, v.Target = parts[0], parts[1]
		return nil
	}
	var long struct {
		Type   string `yaml:"type"`
		Source string `yaml:"source"`
		Target string `yaml:"target"`
	}
	if err := node.Decode(&long); err != nil {
		return err
	}
	v.Type, v.Source, v.Target = long.Type, long.Source, long.Target
	return nil
}

// IsNamed reports whether the entry refers to a named volume rather than a
// bind mount or anonymous volume.
func (v VolumeEntry) IsNamed() bool {
	if v.Type != "" && v.Type != "volume" {
		return false
	}
	if v.Source == "" {
		return false
	}
	switch v.Source[0] {
	case '/', '.', '~', '$':
		return false
	}
	return true
}

// LoadProject parses the compose file at path. A missing file returns an
// error wrapping ErrComposeFileNotFound.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrComposeFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}
	return ParseProject(data)
}

// ParseProject parses compose YAML.
func ParseProject(data []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse compose YAML: %w", err)
	}
	if p.Services == nil {
		return nil, fmt.Errorf("compose file has no services section")
	}
	return &p, nil
}

// ServiceNames returns all service names, sorted.
func (p *Project) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasService reports whether name is defined.
func (p *Project) HasService(name string) bool {
	_, ok := p.Services[name]
	return ok
}

// Profiles returns the distinct profile names used by any service, sorted.
func (p *Project) Profiles() []string {
	var all []string
	for _, svc := range p.Services {
		all = append(all, svc.Profiles...)
	}
	return model.SortedUnique(all)
}

// ServicesInProfile returns the services whose profiles include profile,
// sorted.
func (p *Project) ServicesInProfile(profile string) []string {
	var out []string
	for name, svc := range p.Services {
		for _, pr := range svc.Profiles {
			if pr == profile {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// NamedVolumesOf returns the top-level volume keys mounted by service.
func (p *Project) NamedVolumesOf(service string) []string {
	svc, ok := p.Services[service]
	if !ok {
		return nil
	}
	var out []string
	for _, v := range svc.Volumes {
		if !v.IsNamed() {
			continue
		}
		if len(p.Volumes) > 0 {
			if _, declared := p.Volumes[v.Source]; !declared {
				continue
			}
		}
		out = append(out, v.Source)
	}
	return model.SortedUnique(out)
}

// ExternalVolume reports whether the top-level volume key is external.
func (p *Project) ExternalVolume(key string) bool {
	def, ok := p.Volumes[key]
	return ok && def.External
}

// PublishedPorts returns the host ports published by service. Entries
// without a fixed host port are skipped. Variable references such as
// ${KEYCLOAK_PORT:-8080} are expanded from the process environment.
func (p *Project) PublishedPorts(service string) []model.PortSpec {
	svc, ok := p.Services[service]
	if !ok {
		return nil
	}
	var out []model.PortSpec
	for _, entry := range svc.Ports {
		out = append(out, parsePortEntry(service, entry)...)
	}
	return out
}

// ExternalNetworks returns the names of networks declared external, sorted.
func (p *Project) ExternalNetworks() []string {
	var out []string
	for key, def := range p.Networks {
		if !def.External {
			continue
		}
		name := def.Name
		if name == "" {
			name = key
		}
		out = append(out, Interpolate(name))
	}
	return model.SortedUnique(out)
}

// UndefinedDependencies maps each depends_on target that is not defined as
// a service to the sorted services that depend on it.
func (p *Project) UndefinedDependencies() map[string][]string {
	out := map[string][]string{}
	for name, svc := range p.Services {
		for _, dep := range svc.DependsOn {
			if !p.HasService(dep) {
				out[dep] = append(out[dep], name)
			}
		}
	}
	for dep := range out {
		sort.Strings(out[dep])
	}
	return out
}

func parsePortEntry(service string, e PortEntry) []model.PortSpec {
	if e.Short == "" {
		host, err := strconv.Atoi(Interpolate(e.Published))
		if err != nil || host == 0 {
			return nil
		}
		target, _ := strconv.Atoi(Interpolate(e.Target))
		return []model.PortSpec{{
			ServiceName:   service,
			HostPort:      host,
			ContainerPort: target,
			Protocol:      protocolOr(e.Protocol),
		}}
	}

	spec := Interpolate(e.Short)
	proto := "tcp"
	if i := strings.LastIndexByte(spec, '/'); i >= 0 {
		proto = protocolOr(spec[i+1:])
		spec = spec[:i]
	}

	// [ip:]host:container; IPv6 addresses are bracketed.
	if strings.HasPrefix(spec, "[") {
		if end := strings.Index(spec, "]:"); end >= 0 {
			spec = spec[end+2:]
		}
	}
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 2:
	case 3:
		parts = parts[1:]
	default:
		return nil
	}

	hosts, err := expandRange(parts[0])
	if err != nil {
		return nil
	}
	targets, err := expandRange(parts[1])
	if err != nil {
		return nil
	}

	out := make([]model.PortSpec, 0, len(hosts))
	for i, h := range hosts {
		t := targets[0]
		if len(targets) == len(hosts) {
			t = targets[i]
		}
		out = append(out, model.PortSpec{
			ServiceName:   service,
			HostPort:      h,
			ContainerPort: t,
			Protocol:      proto,
		})
	}
	return out
}

func expandRange(s string) ([]int, error) {
	lo, hi, isRange := strings.Cut(s, "-")
	start, err := strconv.Atoi(lo)
	if err != nil {
		return nil, err
	}
	if !isRange {
		return []int{start}, nil
	}
	end, err := strconv.Atoi(hi)
	if err != nil || end < start {
		return nil, fmt.Errorf("invalid port range %q", s)
	}
	out := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	return out, nil
}

func protocolOr(p string) string {
	if p == "" {
		return "tcp"
	}
	return strings.ToLower(p)
}

// Interpolate expands $VAR, ${VAR}, ${VAR:-default} and ${VAR-default}
// from the process environment.
func Interpolate(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(expr string) string {
		if name, def, ok := strings.Cut(expr, ":-"); ok {
			if v := os.Getenv(name); v != "" {
				return v
			}
			return def
		}
		if name, def, ok := strings.Cut(expr, "-"); ok {
			if v, set := os.LookupEnv(name); set {
				return v
			}
			return def
		}
		return os.Getenv(expr)
	})
}
