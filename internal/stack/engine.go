package stack

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/osss-dev/osss-compose/internal/compose"
	"github.com/osss-dev/osss-compose/internal/process"
)

// engineCLI performs the few engine operations Manager needs through the
// docker or podman CLI. It is used when no engine socket is reachable from
// the host, which is the case when commands run inside the podman machine.
type engineCLI struct {
	provider *compose.Provider
	runner   process.Runner
}

func (e engineCLI) ensureNetwork(ctx context.Context, name string) (bool, error) {
	if _, err := e.runner.Run(ctx, e.provider.EngineCommand("network", "inspect", name)); err == nil {
		return false, nil
	}
	if _, err := e.runner.Run(ctx, e.provider.EngineCommand("network", "create", name)); err != nil {
		return false, fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return true, nil
}

func (e engineCLI) removeVolumes(ctx context.Context, names []string) error {
	var result error
	for _, name := range names {
		_, err := e.runner.Run(ctx, e.provider.EngineCommand("volume", "rm", name))
		if err != nil && !isNoSuchObject(err) {
			result = multierror.Append(result, fmt.Errorf("remove volume %s: %w", name, err))
		}
	}
	return result
}

// isNoSuchObject matches the "not found" phrasing of both CLIs:
// docker says "no such volume", podman says "no volume with name".
func isNoSuchObject(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such") || strings.Contains(msg, "no volume with name")
}
