package stack

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/compose"
	"github.com/osss-dev/osss-compose/internal/docker"
	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/process"
)

// Pod is one entry of `podman pod ls --format json`.
type Pod struct {
	ID         string            `json:"Id"`
	Name       string            `json:"Name"`
	Status     string            `json:"Status"`
	Labels     map[string]string `json:"Labels"`
	Containers []PodContainer    `json:"Containers"`
}

// PodContainer is a container reference inside a Pod.
type PodContainer struct {
	ID     string `json:"Id"`
	Name   string `json:"Names"`
	Status string `json:"Status"`
}

// Pods lists and removes the pods podman-compose creates for a project.
// Docker has no pods; Manager leaves Pods nil there.
type Pods struct {
	Provider *compose.Provider
	Runner   process.Runner
	Log      *zap.Logger
}

// List returns the pods labelled with project.
func (p *Pods) List(ctx context.Context, project string) ([]Pod, error) {
	cmd := p.Provider.EngineCommand("pod", "ls",
		"--filter", "label="+docker.LabelPodmanProject+"="+project,
		"--format", "json")
	res, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" || out == "null" {
		return nil, nil
	}
	var pods []Pod
	if err := json.Unmarshal([]byte(out), &pods); err != nil {
		return nil, fmt.Errorf("failed to parse pod list: %w", err)
	}
	return pods, nil
}

// Remove force-removes each named pod, continuing past failures.
func (p *Pods) Remove(ctx context.Context, names []string) error {
	var result error
	for _, name := range names {
		logging.OrNop(p.Log).Debug("removing pod", zap.String("pod", name))
		if _, err := p.Runner.Run(ctx, p.Provider.EngineCommand("pod", "rm", "-f", name)); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove pod %s: %w", name, err))
		}
	}
	return result
}

// PodsWithin returns the pods whose member containers are all in removed.
// Infra containers are ignored; a pod with no other members is included.
// removed holds container names and IDs.
func PodsWithin(pods []Pod, removed map[string]bool) []string {
	var out []string
	for _, pod := range pods {
		all := true
		for _, c := range pod.Containers {
			if strings.HasSuffix(c.Name, "-infra") {
				continue
			}
			if !removed[c.Name] && !removed[c.ID] {
				all = false
				break
			}
		}
		if all {
			out = append(out, pod.Name)
		}
	}
	return out
}
