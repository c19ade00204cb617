package cli

import (
	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/stack"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [service...]",
		Short: "Compare the profile's services with the containers that exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStack(cmd.Context(), func(m *stack.Manager) error {
				res, err := m.Status(cmd.Context(), a.target(args))
				if err != nil {
					return err
				}
				return a.printStatus(res)
			})
		},
	}
}
