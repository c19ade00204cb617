package cli

import (
	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/stack"
)

func newCleanupCommand(a *app) *cobra.Command {
	var opts stack.CleanupOptions

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove leftovers of the project found by compose labels",
		Long: `Remove leftovers of the compose project, found by label:

  --orphans   containers of services no longer in the compose file,
              placeholder (stub) containers included
  --volumes   project volumes the compose file no longer declares

Stub overlay files left by an interrupted run are always removed.
Without flags both --orphans and --volumes apply.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Orphans && !opts.Volumes {
				opts.Orphans, opts.Volumes = true, true
			}
			return a.withLock(func() error {
				return a.withStack(cmd.Context(), func(m *stack.Manager) error {
					r, err := m.Cleanup(cmd.Context(), opts)
					if err != nil {
						return err
					}
					return a.printReport("cleaned", r)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Orphans, "orphans", false, "Remove containers of undefined services")
	cmd.Flags().BoolVar(&opts.Volumes, "volumes", false, "Remove undeclared project volumes")
	return cmd
}
