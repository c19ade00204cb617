package docker

import (
	"context"
	"fmt"
	"sort"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/hashicorp/go-multierror"

	"github.com/osss-dev/osss-compose/internal/model"
)

// ListProjectVolumes returns the volumes labelled with project, sorted by
// name.
func ListProjectVolumes(ctx context.Context, api API, project string) ([]model.VolumeInfo, error) {
	resp, err := api.VolumeList(ctx, volume.ListOptions{
		Filters: ProjectFilter(LabelComposeProject, project),
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitEngineUnavailable, "failed to list volumes", err)
	}

	out := make([]model.VolumeInfo, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		if v == nil {
			continue
		}
		out = append(out, model.VolumeInfo{
			Name:        v.Name,
			ComposeName: v.Labels[LabelComposeVolume],
			Labels:      v.Labels,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RemoveVolumes removes each named volume, continuing past failures. A
// volume that no longer exists counts as removed.
func RemoveVolumes(ctx context.Context, api API, names []string) error {
	var result error
	for _, name := range names {
		if err := api.VolumeRemove(ctx, name, false); err != nil && !client.IsErrNotFound(err) {
			result = multierror.Append(result, fmt.Errorf("remove volume %s: %w", name, err))
		}
	}
	return result
}
