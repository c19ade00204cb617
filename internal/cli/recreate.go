package cli

import (
	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/stack"
)

func newRecreateCommand(a *app) *cobra.Command {
	var opts stack.UpOptions

	cmd := &cobra.Command{
		Use:   "recreate [service...]",
		Short: "Remove and start a profile's containers again, keeping volumes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLock(func() error {
				return a.withStack(cmd.Context(), func(m *stack.Manager) error {
					r, err := m.Recreate(cmd.Context(), a.target(args), opts)
					if err != nil {
						return err
					}
					return a.printReport("recreated", r)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&opts.SkipPortCheck, "skip-port-check", false, "Start even when a published host port is in use")
	return cmd
}

func newRebuildCommand(a *app) *cobra.Command {
	var opts stack.UpOptions

	cmd := &cobra.Command{
		Use:   "rebuild [service...]",
		Short: "Rebuild images without cache, then recreate",
		Long: `Run "build --no-cache" for the services that have a build section,
then recreate the whole target. Services using prebuilt images are only
recreated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLock(func() error {
				return a.withStack(cmd.Context(), func(m *stack.Manager) error {
					r, err := m.Rebuild(cmd.Context(), a.target(args), opts)
					if err != nil {
						return err
					}
					return a.printReport("rebuilt", r)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&opts.SkipPortCheck, "skip-port-check", false, "Start even when a published host port is in use")
	return cmd
}
