// container.go lists and removes the containers of a compose project.
//
// Containers are found by the compose project label rather than by name, so
// the result is the same whichever compose provider created them.
package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/hashicorp/go-multierror"

	"github.com/osss-dev/osss-compose/internal/model"
)

// stopTimeoutSeconds is how long a container gets to exit after SIGTERM
// before removal kills it.
const stopTimeoutSeconds = 10

// ListProjectContainers returns all containers (running or not) labelled
// with project. The docker compose label is queried first; if nothing
// carries it, the podman-compose label is tried.
func ListProjectContainers(ctx context.Context, api API, project string) ([]model.ContainerInfo, error) {
	for _, key := range []string{LabelComposeProject, LabelPodmanProject} {
		containers, err := api.ContainerList(ctx, container.ListOptions{
			All:     true,
			Filters: ProjectFilter(key, project),
		})
		if err != nil {
			return nil, model.WrapCLIError(
				model.ExitEngineUnavailable,
				"failed to list containers",
				err,
			)
		}
		if len(containers) == 0 {
			continue
		}

		result := make([]model.ContainerInfo, 0, len(containers))
		for _, c := range containers {
			result = append(result, containerToInfo(c))
		}
		sort.Slice(result, func(i, j int) bool {
			if result[i].ServiceName != result[j].ServiceName {
				return result[i].ServiceName < result[j].ServiceName
			}
			return result[i].ContainerName < result[j].ContainerName
		})
		return result, nil
	}
	return nil, nil
}

// containerToInfo maps an SDK summary to ContainerInfo. The API returns
// names with a leading "/", which is stripped.
func containerToInfo(c container.Summary) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Project:       ProjectOf(c.Labels),
		ServiceName:   ServiceOf(c.Labels),
		Status:        string(c.State),
		Labels:        c.Labels,
	}
}

// GroupByService groups containers by compose service name. Containers
// without a service label are grouped under "".
func GroupByService(containers []model.ContainerInfo) map[string][]model.ContainerInfo {
	groups := make(map[string][]model.ContainerInfo)
	for _, c := range containers {
		groups[c.ServiceName] = append(groups[c.ServiceName], c)
	}
	return groups
}

// RemoveContainers stops and removes each container. It keeps going past
// failures and returns them together. A container that is already gone
// counts as removed.
func RemoveContainers(ctx context.Context, api API, containers []model.ContainerInfo) error {
	var result error
	timeout := stopTimeoutSeconds
	for _, c := range containers {
		if c.IsRunning() {
			err := api.ContainerStop(ctx, c.ContainerID, container.StopOptions{Timeout: &timeout})
			if err != nil && !client.IsErrNotFound(err) {
				result = multierror.Append(result, fmt.Errorf("stop %s: %w", c.ContainerName, err))
			}
		}
		err := api.ContainerRemove(ctx, c.ContainerID, container.RemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			result = multierror.Append(result, fmt.Errorf("remove %s: %w", c.ContainerName, err))
		}
	}
	return result
}
