package compose

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Stub service settings.
const (
	StubImage    = "busybox:1.36"
	StubLabel    = "osss.stub"
	MaxStubRetry = 5

	// OverlayPattern is the os.CreateTemp pattern of overlay files.
	OverlayPattern = ".osss-stubs-*.yml"
)

var undefinedServicePatterns = []*regexp.Regexp{
	// compose v2: service "web" depends on undefined service "db": invalid compose project
	// compose v2 (older): service "web" depends on undefined service db
	regexp.MustCompile(`depends on undefined service:?\s+"?([A-Za-z0-9][A-Za-z0-9._-]*)"?`),
	// docker-compose v1: Service web depends on service db which is undefined.
	regexp.MustCompile(`depends on service:?\s+"?([A-Za-z0-9][A-Za-z0-9._-]*)"?\s+which is undefined`),
	// podman-compose: missing dependency: db
	regexp.MustCompile(`missing dependency:?\s+"?([A-Za-z0-9][A-Za-z0-9._-]*)"?`),
}

// UndefinedServiceFromError extracts the missing service name from compose
// error output.
func UndefinedServiceFromError(output string) (string, bool) {
	for _, re := range undefinedServicePatterns {
		if m := re.FindStringSubmatch(output); m != nil {
			return m[1], true
		}
	}
	return "", false
}

type stubFile struct {
	Services map[string]stubService `yaml:"services"`
}

type stubService struct {
	Image    string            `yaml:"image"`
	Command  []string          `yaml:"command"`
	Labels   map[string]string `yaml:"labels"`
	Profiles []string          `yaml:"profiles,omitempty"`
}

// RenderOverlay renders a compose override defining a placeholder service
// for each name in stubs. When profile is set the stubs join that profile
// so they are enabled alongside it.
func RenderOverlay(stubs []string, profile string) ([]byte, error) {
	names := make([]string, len(stubs))
	copy(names, stubs)
	sort.Strings(names)

	doc := stubFile{Services: make(map[string]stubService, len(names))}
	for _, name := range names {
		svc := stubService{
			Image:   StubImage,
			Command: []string{"sh", "-c", "sleep infinity"},
			Labels:  map[string]string{StubLabel: "true"},
		}
		if profile != "" {
			svc.Profiles = []string{profile}
		}
		doc.Services[name] = svc
	}

	body, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize stub overlay: %w", err)
	}
	header := "# Auto-generated by osss-compose: placeholder services for undefined depends_on targets\n# DO NOT EDIT - removed when the command exits\n"
	return append([]byte(header), body...), nil
}

// Overlay is a temporary compose override file holding stub services.
type Overlay struct {
	dir     string
	profile string
	names   map[string]bool
	path    string
}

// NewOverlay creates an empty overlay. The file is written inside dir so
// that it is visible to compose providers running inside a podman machine,
// which mount the user's home but not the host's temp directory.
func NewOverlay(dir, profile string) *Overlay {
	return &Overlay{dir: dir, profile: profile, names: map[string]bool{}}
}

// Add registers a stub. It returns false if name was already present.
func (o *Overlay) Add(name string) bool {
	if o.names[name] {
		return false
	}
	o.names[name] = true
	return true
}

// Has reports whether name is stubbed.
func (o *Overlay) Has(name string) bool {
	return o.names[name]
}

// Len returns the number of stubs.
func (o *Overlay) Len() int {
	return len(o.names)
}

// Names returns the stubbed service names, sorted.
func (o *Overlay) Names() []string {
	out := make([]string, 0, len(o.names))
	for n := range o.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Write renders the overlay to its temp file, creating the file on first
// use, and returns the path.
func (o *Overlay) Write() (string, error) {
	data, err := RenderOverlay(o.Names(), o.profile)
	if err != nil {
		return "", err
	}
	if o.path == "" {
		f, err := os.CreateTemp(o.dir, OverlayPattern)
		if err != nil {
			return "", fmt.Errorf("failed to create stub overlay: %w", err)
		}
		o.path = f.Name()
		if err := f.Close(); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(o.path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write stub overlay: %w", err)
	}
	return o.path, nil
}

// Path returns the overlay file path, empty until Write is called.
func (o *Overlay) Path() string {
	return o.path
}

// Close removes the temp file.
func (o *Overlay) Close() error {
	if o.path == "" {
		return nil
	}
	err := os.Remove(o.path)
	o.path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
