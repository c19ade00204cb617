package cli

import (
	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/stack"
)

func newUpCommand(a *app) *cobra.Command {
	var opts stack.UpOptions

	cmd := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start a profile or individual services",
		Long: `Start the services of the profile given with -r, or the named services.

Published host ports of services that are not running yet are checked
first; a busy port fails with exit code 4 unless --skip-port-check is set.
Missing external networks are created. depends_on targets the compose
file never defines are replaced by placeholder services.

Examples:
  osss-compose up -r auth
  osss-compose up -r analytics trino
  osss-compose up --build keycloak`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLock(func() error {
				return a.withStack(cmd.Context(), func(m *stack.Manager) error {
					r, err := m.Up(cmd.Context(), a.target(args), opts)
					if err != nil {
						return err
					}
					return a.printReport("started", r)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Build, "build", false, "Build images before starting")
	cmd.Flags().BoolVar(&opts.ForceRecreate, "force-recreate", false, "Recreate containers even if unchanged")
	cmd.Flags().BoolVar(&opts.SkipPortCheck, "skip-port-check", false, "Start even when a published host port is in use")
	return cmd
}
