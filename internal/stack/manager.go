package stack

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/compose"
	"github.com/osss-dev/osss-compose/internal/docker"
	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/port"
)

// Manager runs lifecycle actions for one compose project.
//
// Resolver and Executor are required. The rest degrade gracefully:
//   - Model nil (compose file not parseable as YAML): no port check, no
//     network creation, no volume removal
//   - API nil (no engine socket reachable): containers are removed with
//     `compose rm`, networks and volumes through the engine CLI, and status
//     falls back to the provider's `ps` table
//   - Pods nil (docker): no pod cleanup
//   - Ports nil: no port check
type Manager struct {
	ProjectName string
	Resolver    *compose.Resolver
	Executor    *compose.Executor
	Model       *compose.Project
	API         docker.API
	Pods        *Pods
	Ports       *port.Scanner
	Log         *zap.Logger
}

// UpOptions controls Manager.Up.
type UpOptions struct {
	ForceRecreate bool
	Build         bool

	// SkipPortCheck starts services even when a published host port is
	// taken.
	SkipPortCheck bool
}

// Report summarises what an action did.
type Report struct {
	Target          model.Target `json:"target"`
	Services        []string     `json:"services"`
	Plan            Plan         `json:"plan"`
	Stubs           []string     `json:"stubs,omitempty"`
	CreatedNetworks []string     `json:"createdNetworks,omitempty"`
	Removed         []string     `json:"removed,omitempty"`
	RemovedPods     []string     `json:"removedPods,omitempty"`
	RemovedVolumes  []string     `json:"removedVolumes,omitempty"`
	RemovedFiles    []string     `json:"removedFiles,omitempty"`
}

// StatusResult is the reconcile view returned by Status.
type StatusResult struct {
	model.StatusReport
	Plan Plan `json:"plan"`

	// Raw holds the provider's `ps` output when the engine API is not
	// reachable and per-service state could not be computed.
	Raw string `json:"raw,omitempty"`
}

// CleanupOptions controls Manager.Cleanup.
type CleanupOptions struct {
	// Orphans removes project containers whose service is not defined in
	// the compose file, stub containers included.
	Orphans bool

	// Volumes removes project volumes whose key is not declared in the
	// compose file.
	Volumes bool
}

func (m *Manager) log() *zap.Logger {
	return logging.OrNop(m.Log)
}

func (m *Manager) engine() engineCLI {
	return engineCLI{provider: m.Executor.Provider, runner: m.Executor.Runner}
}

// Scope resolves a target to its sorted service list. Services named
// explicitly must belong to the target's profile (or to the file when no
// profile is given).
func (m *Manager) Scope(ctx context.Context, t model.Target) ([]string, error) {
	prof, err := m.Resolver.Resolve(ctx, t.Profile)
	if err != nil {
		return nil, err
	}
	if len(t.Services) == 0 {
		return prof.Services, nil
	}

	var out, unknown []string
	for _, svc := range model.SortedUnique(t.Services) {
		if prof.Has(svc) {
			out = append(out, svc)
		} else {
			unknown = append(unknown, svc)
		}
	}
	if len(unknown) > 0 {
		where := "the compose file"
		if t.Profile != "" {
			where = fmt.Sprintf("profile %q", t.Profile)
		}
		return nil, model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("unknown service(s) in %s: %s", where, strings.Join(unknown, ", ")))
	}
	return out, nil
}

func (m *Manager) containers(ctx context.Context) ([]model.ContainerInfo, error) {
	if m.API == nil {
		return nil, nil
	}
	return docker.ListProjectContainers(ctx, m.API, m.ProjectName)
}

// Up starts the target's services. Host ports of services that are not
// already running are checked first, and external networks are created
// when missing.
func (m *Manager) Up(ctx context.Context, t model.Target, opts UpOptions) (*Report, error) {
	services, err := m.Scope(ctx, t)
	if err != nil {
		return nil, err
	}
	actual, err := m.containers(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Target: t, Services: services, Plan: Diff(services, actual, services)}

	if !opts.SkipPortCheck {
		if err := m.checkPorts(report.Plan.ToStart); err != nil {
			return report, err
		}
	}

	created, err := m.ensureNetworks(ctx)
	report.CreatedNetworks = created
	if err != nil {
		return report, err
	}

	res, err := m.Executor.Up(ctx, compose.UpOptions{
		Profile:       t.Profile,
		Services:      services,
		ForceRecreate: opts.ForceRecreate,
		Build:         opts.Build,
	})
	if res != nil {
		report.Stubs = res.Stubs
	}
	return report, err
}

func (m *Manager) checkPorts(services []string) error {
	switch {
	case m.Ports == nil || m.Model == nil:
		return nil
	case m.API == nil:
		// Without a container listing every service looks stopped, and a
		// running service would collide with its own port.
		m.log().Debug("port check skipped: engine API unavailable")
		return nil
	}
	var specs []model.PortSpec
	for _, svc := range services {
		specs = append(specs, m.Model.PublishedPorts(svc)...)
	}
	if busy := m.Ports.Busy(specs); len(busy) > 0 {
		return m.Ports.ConflictError(busy)
	}
	return nil
}

func (m *Manager) ensureNetworks(ctx context.Context) ([]string, error) {
	if m.Model == nil {
		return nil, nil
	}
	var created []string
	for _, name := range m.Model.ExternalNetworks() {
		var ok bool
		var err error
		if m.API != nil {
			ok, err = docker.EnsureNetwork(ctx, m.API, name)
		} else {
			ok, err = m.engine().ensureNetwork(ctx, name)
		}
		if err != nil {
			return created, err
		}
		if ok {
			m.log().Info("created external network", zap.String("network", name))
			created = append(created, name)
		}
	}
	return created, nil
}

// Down removes the target's containers and nothing else, except the stub
// containers standing in for their undefined dependencies. On podman, pods
// left without members are removed too. With removeVolumes, named volumes
// mounted only by services in the target are removed as well.
func (m *Manager) Down(ctx context.Context, t model.Target, removeVolumes bool) (*Report, error) {
	services, err := m.Scope(ctx, t)
	if err != nil {
		return nil, err
	}
	report := &Report{Target: t, Services: services}
	var result error

	if m.API == nil {
		if err := m.Executor.Rm(ctx, t.Profile, services); err != nil {
			return report, err
		}
		report.Removed = services
	} else {
		actual, err := docker.ListProjectContainers(ctx, m.API, m.ProjectName)
		if err != nil {
			return report, err
		}
		report.Plan = Diff(nil, actual, services)
		report.Plan.ToRemove = append(report.Plan.ToRemove, m.stubDependencies(services, actual)...)
		sortContainers(report.Plan.ToRemove)
		if err := m.removeContainers(ctx, report, report.Plan.ToRemove); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if removeVolumes {
		if err := m.removeVolumes(ctx, report, m.exclusiveVolumes(services)); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return report, result
}

// stubDependencies returns the stub containers Up started for undefined
// depends_on targets of scope. A stub stays while a running service outside
// scope still depends on it.
func (m *Manager) stubDependencies(scope []string, actual []model.ContainerInfo) []model.ContainerInfo {
	if m.Model == nil {
		return nil
	}
	inScope := toSet(scope)
	running := map[string]bool{}
	for _, c := range actual {
		if c.IsRunning() && !docker.IsStub(c.Labels) {
			running[c.ServiceName] = true
		}
	}

	drop := map[string]bool{}
	for dep, dependents := range m.Model.UndefinedDependencies() {
		var wanted, needed bool
		for _, svc := range dependents {
			if inScope[svc] {
				wanted = true
			} else if running[svc] {
				needed = true
			}
		}
		if wanted && !needed {
			drop[dep] = true
		}
	}

	var out []model.ContainerInfo
	for _, c := range actual {
		if drop[c.ServiceName] && !inScope[c.ServiceName] && docker.IsStub(c.Labels) {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) removeContainers(ctx context.Context, report *Report, cs []model.ContainerInfo) error {
	if len(cs) == 0 {
		return nil
	}
	var result error
	removed := make(map[string]bool, 2*len(cs))
	for _, c := range cs {
		report.Removed = append(report.Removed, c.ContainerName)
		removed[c.ContainerName] = true
		removed[c.ContainerID] = true
	}
	if err := docker.RemoveContainers(ctx, m.API, cs); err != nil {
		result = multierror.Append(result, err)
	}

	if m.Pods != nil {
		pods, err := m.Pods.List(ctx, m.ProjectName)
		if err != nil {
			m.log().Warn("could not list pods", zap.Error(err))
			return result
		}
		names := PodsWithin(pods, removed)
		if err := m.Pods.Remove(ctx, names); err != nil {
			result = multierror.Append(result, err)
		}
		report.RemovedPods = names
	}
	return result
}

// exclusiveVolumes returns the compose volume keys mounted only by services
// in scope. External volumes are never returned.
func (m *Manager) exclusiveVolumes(scope []string) []string {
	if m.Model == nil {
		m.log().Warn("volume removal skipped: compose file could not be parsed")
		return nil
	}
	inScope := toSet(scope)
	users := map[string][]string{}
	for _, svc := range m.Model.ServiceNames() {
		for _, vol := range m.Model.NamedVolumesOf(svc) {
			users[vol] = append(users[vol], svc)
		}
	}

	var out []string
	for vol, svcs := range users {
		if m.Model.ExternalVolume(vol) {
			continue
		}
		exclusive := true
		for _, svc := range svcs {
			if !inScope[svc] {
				exclusive = false
				break
			}
		}
		if exclusive {
			out = append(out, vol)
		}
	}
	return model.SortedUnique(out)
}

func (m *Manager) removeVolumes(ctx context.Context, report *Report, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	want := toSet(keys)
	var names []string

	if m.API != nil {
		vols, err := docker.ListProjectVolumes(ctx, m.API, m.ProjectName)
		if err != nil {
			return err
		}
		for _, v := range vols {
			if want[v.ComposeName] {
				names = append(names, v.Name)
			}
		}
		report.RemovedVolumes = names
		return docker.RemoveVolumes(ctx, m.API, names)
	}

	for _, key := range keys {
		names = append(names, m.volumeName(key))
	}
	report.RemovedVolumes = names
	return m.engine().removeVolumes(ctx, names)
}

// volumeName derives the engine name compose gives a volume key.
func (m *Manager) volumeName(key string) string {
	if def, ok := m.Model.Volumes[key]; ok && def.Name != "" {
		return compose.Interpolate(def.Name)
	}
	return m.ProjectName + "_" + key
}

// Recreate removes the target's containers, keeping volumes, and starts
// them again with --force-recreate.
func (m *Manager) Recreate(ctx context.Context, t model.Target, opts UpOptions) (*Report, error) {
	down, err := m.Down(ctx, t, false)
	if err != nil {
		return down, err
	}
	opts.ForceRecreate = true
	up, err := m.Up(ctx, t, opts)
	if up != nil {
		up.Removed = down.Removed
		up.RemovedPods = down.RemovedPods
	}
	return up, err
}

// Rebuild builds the target's images without cache, then recreates it.
// Services without a build section are skipped by the build step.
func (m *Manager) Rebuild(ctx context.Context, t model.Target, opts UpOptions) (*Report, error) {
	services, err := m.Scope(ctx, t)
	if err != nil {
		return nil, err
	}
	buildable := services
	if m.Model != nil {
		buildable = nil
		for _, svc := range services {
			if s, ok := m.Model.Services[svc]; ok && s.HasBuild() {
				buildable = append(buildable, svc)
			}
		}
	}
	if len(buildable) > 0 {
		if err := m.Executor.Build(ctx, t.Profile, buildable, true); err != nil {
			return nil, err
		}
	} else {
		m.log().Info("nothing to build", zap.String("target", t.String()))
	}
	return m.Recreate(ctx, t, opts)
}

// Status reports the state of each service in the target.
func (m *Manager) Status(ctx context.Context, t model.Target) (*StatusResult, error) {
	services, err := m.Scope(ctx, t)
	if err != nil {
		return nil, err
	}
	result := &StatusResult{StatusReport: model.StatusReport{Project: m.ProjectName, Target: t}}

	if m.API == nil {
		raw, err := m.Executor.Ps(ctx, t.Profile)
		if err != nil {
			return nil, err
		}
		result.Raw = raw
		return result, nil
	}

	actual, err := docker.ListProjectContainers(ctx, m.API, m.ProjectName)
	if err != nil {
		return nil, err
	}
	result.Services = States(services, actual)
	result.Plan = Diff(services, actual, services)
	return result, nil
}

// Cleanup removes leftovers of the project: containers of services no
// longer in the compose file, stub containers, undeclared volumes and stub
// overlay files left behind by an interrupted run.
func (m *Manager) Cleanup(ctx context.Context, opts CleanupOptions) (*Report, error) {
	if m.API == nil {
		return nil, model.NewCLIError(model.ExitEngineUnavailable,
			"cleanup needs the engine API; no docker or podman socket is reachable")
	}
	all, err := m.Resolver.AllServices(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Services: all.Services}
	var result error

	if opts.Orphans {
		actual, err := docker.ListProjectContainers(ctx, m.API, m.ProjectName)
		if err != nil {
			return report, err
		}
		orphans := Diff(all.Services, actual, nil).ToRemove
		report.Plan = Plan{ToRemove: orphans}
		if err := m.removeContainers(ctx, report, orphans); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if opts.Volumes {
		if err := m.removeUndeclaredVolumes(ctx, report); err != nil {
			result = multierror.Append(result, err)
		}
	}

	files, err := filepath.Glob(filepath.Join(m.Executor.Dir, compose.OverlayPattern))
	if err == nil {
		for _, f := range files {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				result = multierror.Append(result, err)
				continue
			}
			report.RemovedFiles = append(report.RemovedFiles, f)
		}
	}
	return report, result
}

func (m *Manager) removeUndeclaredVolumes(ctx context.Context, report *Report) error {
	if m.Model == nil {
		m.log().Warn("volume cleanup skipped: compose file could not be parsed")
		return nil
	}
	vols, err := docker.ListProjectVolumes(ctx, m.API, m.ProjectName)
	if err != nil {
		return err
	}
	var names []string
	for _, v := range vols {
		if _, declared := m.Model.Volumes[v.ComposeName]; !declared {
			names = append(names, v.Name)
		}
	}
	report.RemovedVolumes = names
	return docker.RemoveVolumes(ctx, m.API, names)
}

// Logs prints the target's logs. With follow, an interrupt ends the stream
// and Logs returns nil, so an interactive caller keeps running.
func (m *Manager) Logs(ctx context.Context, t model.Target, tail int, follow bool, stdout, stderr io.Writer) error {
	services, err := m.Scope(ctx, t)
	if err != nil {
		return err
	}

	if follow {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}
	err = m.Executor.Logs(ctx, compose.LogsOptions{
		Profile:  t.Profile,
		Services: services,
		Tail:     tail,
		Follow:   follow,
	}, stdout, stderr)
	if follow && ctx.Err() != nil {
		return nil
	}
	return err
}
