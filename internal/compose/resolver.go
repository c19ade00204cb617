package compose

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/process"
)

// Resolver answers "which services belong to profile X".
//
// It tries three sources in order and falls through on error or an empty
// answer: the provider's own `config --services` (when it supports
// --profile), a structured YAML parse, and a line scan of the file.
type Resolver struct {
	Provider     *Provider
	Runner       process.Runner
	ComposeFiles []string
	ProjectName  string
	Dir          string
	Env          map[string]string
	Log          *zap.Logger
}

// Resolve returns the services of profile. An empty profile means every
// service in the file.
func (r *Resolver) Resolve(ctx context.Context, profile string) (*model.Profile, error) {
	if profile == "" {
		return r.AllServices(ctx)
	}
	log := logging.OrNop(r.Log).With(zap.String("profile", profile))

	if r.Provider != nil && r.Provider.NativeProfiles {
		services, err := r.nativeProfileServices(ctx, profile)
		if err == nil && len(services) > 0 {
			return &model.Profile{Name: profile, Services: services, Source: model.SourceNative}, nil
		}
		log.Debug("native profile resolution fell through", zap.Error(err), zap.Int("services", len(services)))
	}

	if p, err := r.loadProject(); err == nil {
		if services := p.ServicesInProfile(profile); len(services) > 0 {
			return &model.Profile{Name: profile, Services: services, Source: model.SourceYAML}, nil
		}
		log.Debug("yaml profile resolution found no services")
	} else {
		log.Debug("yaml profile resolution fell through", zap.Error(err))
	}

	if res, err := r.scan(); err == nil {
		if services := res.ServicesInProfile(profile); len(services) > 0 {
			return &model.Profile{Name: profile, Services: services, Source: model.SourceScan}, nil
		}
	} else {
		log.Debug("scan profile resolution fell through", zap.Error(err))
	}

	return nil, fmt.Errorf("%w: %q has no services in %s", ErrProfileNotFound, profile, strings.Join(r.ComposeFiles, ", "))
}

// AllServices returns every service defined in the compose files.
func (r *Resolver) AllServices(ctx context.Context) (*model.Profile, error) {
	log := logging.OrNop(r.Log)

	if r.Provider != nil && r.Provider.Kind == KindDockerPlugin {
		out, err := r.config(ctx, []string{"*"}, "--services")
		if err == nil && len(out) > 0 {
			return &model.Profile{Services: out, Source: model.SourceNative}, nil
		}
		log.Debug("native service listing fell through", zap.Error(err))
	}

	p, err := r.loadProject()
	if err == nil {
		return &model.Profile{Services: p.ServiceNames(), Source: model.SourceYAML}, nil
	}
	log.Debug("yaml service listing fell through", zap.Error(err))

	res, err := r.scan()
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return &model.Profile{Services: model.SortedUnique(res.Services), Source: model.SourceScan}, nil
}

// ListProfiles returns every declared profile with its services.
func (r *Resolver) ListProfiles(ctx context.Context) ([]*model.Profile, error) {
	log := logging.OrNop(r.Log)

	var names []string
	if r.Provider != nil && r.Provider.Kind == KindDockerPlugin {
		out, err := r.config(ctx, nil, "--profiles")
		if err == nil {
			names = out
		} else {
			log.Debug("native profile listing fell through", zap.Error(err))
		}
	}
	if len(names) == 0 {
		if p, err := r.loadProject(); err == nil {
			names = p.Profiles()
		} else if res, scanErr := r.scan(); scanErr == nil {
			names = res.AllProfiles()
		} else {
			return nil, fmt.Errorf("failed to list profiles: %w", err)
		}
	}

	out := make([]*model.Profile, 0, len(names))
	for _, name := range names {
		p, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// nativeProfileServices computes `--profile X config --services` minus
// `config --services`, since compose always includes unprofiled services.
func (r *Resolver) nativeProfileServices(ctx context.Context, profile string) ([]string, error) {
	with, err := r.config(ctx, []string{profile}, "--services")
	if err != nil {
		return nil, err
	}
	base, err := r.config(ctx, nil, "--services")
	if err != nil {
		return nil, err
	}
	unprofiled := make(map[string]bool, len(base))
	for _, s := range base {
		unprofiled[s] = true
	}
	var out []string
	for _, s := range with {
		if !unprofiled[s] {
			out = append(out, s)
		}
	}
	return model.SortedUnique(out), nil
}

func (r *Resolver) config(ctx context.Context, profiles []string, flag string) ([]string, error) {
	args := GlobalArgs(r.ProjectName, r.ComposeFiles, profiles...)
	args = append(args, "config", flag)
	cmd := r.Provider.Command(args...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env

	res, err := r.Runner.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return model.SortedUnique(nonEmptyLines(res.Stdout)), nil
}

func (r *Resolver) loadProject() (*Project, error) {
	return LoadProjects(r.ComposeFiles)
}

// LoadProjects parses each file and merges them in order, the way compose
// merges repeated -f options.
func LoadProjects(files []string) (*Project, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no compose file configured")
	}
	merged := &Project{Services: map[string]Service{}}
	for _, f := range files {
		p, err := LoadProject(f)
		if err != nil {
			return nil, err
		}
		merged.merge(p)
	}
	return merged, nil
}

func (r *Resolver) scan() (*ScanResult, error) {
	merged := &ScanResult{Profiles: map[string][]string{}}
	for _, f := range r.ComposeFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		res, err := ScanServices(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		for _, svc := range res.Services {
			if _, seen := merged.Profiles[svc]; !seen {
				merged.Services = append(merged.Services, svc)
			}
			if ps := res.Profiles[svc]; len(ps) > 0 {
				merged.Profiles[svc] = ps
			} else if _, ok := merged.Profiles[svc]; !ok {
				merged.Profiles[svc] = nil
			}
		}
	}
	return merged, nil
}

// merge overlays other onto p the way compose merges -f files: later
// files override scalar fields and replace profiles when they set them.
func (p *Project) merge(other *Project) {
	if other.Name != "" {
		p.Name = other.Name
	}
	if p.Services == nil {
		p.Services = map[string]Service{}
	}
	for name, svc := range other.Services {
		base, ok := p.Services[name]
		if !ok {
			p.Services[name] = svc
			continue
		}
		if svc.Image != "" {
			base.Image = svc.Image
		}
		if svc.Build != nil {
			base.Build = svc.Build
		}
		if len(svc.Profiles) > 0 {
			base.Profiles = svc.Profiles
		}
		base.DependsOn = append(base.DependsOn, svc.DependsOn...)
		base.Ports = append(base.Ports, svc.Ports...)
		base.Volumes = append(base.Volumes, svc.Volumes...)
		if len(svc.Labels) > 0 {
			if base.Labels == nil {
				base.Labels = Labels{}
			}
			for k, v := range svc.Labels {
				base.Labels[k] = v
			}
		}
		p.Services[name] = base
	}
	for k, v := range other.Volumes {
		if p.Volumes == nil {
			p.Volumes = map[string]VolumeDef{}
		}
		p.Volumes[k] = v
	}
	for k, v := range other.Networks {
		if p.Networks == nil {
			p.Networks = map[string]NetworkDef{}
		}
		p.Networks[k] = v
	}
}

// GlobalArgs builds the options shared by every compose subcommand.
func GlobalArgs(project string, files []string, profiles ...string) []string {
	args := make([]string, 0, 2+2*len(files)+2*len(profiles))
	if project != "" {
		args = append(args, "-p", project)
	}
	for _, f := range files {
		args = append(args, "-f", f)
	}
	for _, p := range profiles {
		if p != "" {
			args = append(args, "--profile", p)
		}
	}
	return args
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
