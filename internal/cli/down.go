package cli

import (
	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/stack"
)

func newDownCommand(a *app) *cobra.Command {
	var volumes bool

	cmd := &cobra.Command{
		Use:   "down [service...]",
		Short: "Stop and remove a profile's containers",
		Long: `Stop and remove the containers (and podman pods) of the profile given
with -r, or of the named services. Containers of other profiles are left
alone.

With --volumes, named volumes used only by the removed services are
deleted too. External volumes are never removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLock(func() error {
				return a.withStack(cmd.Context(), func(m *stack.Manager) error {
					r, err := m.Down(cmd.Context(), a.target(args), volumes)
					if err != nil {
						return err
					}
					return a.printReport("stopped", r)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&volumes, "volumes", false, "Also remove volumes used only by these services")
	return cmd
}
