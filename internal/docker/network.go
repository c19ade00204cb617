package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// EnsureNetwork creates a bridge network called name unless it already
// exists. Compose refuses to start services attached to a missing external
// network, so this runs before `up`. created reports whether a network was
// made.
func EnsureNetwork(ctx context.Context, api API, name string) (created bool, err error) {
	_, err = api.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return false, nil
	}
	if !client.IsErrNotFound(err) {
		return false, fmt.Errorf("failed to inspect network %s: %w", name, err)
	}

	if _, err := api.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"}); err != nil {
		return false, fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return true, nil
}
