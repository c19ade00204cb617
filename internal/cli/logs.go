package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/config"
	"github.com/osss-dev/osss-compose/internal/menu"
	"github.com/osss-dev/osss-compose/internal/stack"
)

func newLogsCommand(a *app) *cobra.Command {
	var (
		tail   int
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Show service logs",
		Long: `Show the last lines of the target's logs.

The number of lines defaults to DEFAULT_TAIL from
~/.config/osss-compose-repair.conf (see tail-default), or 200.
With --follow, Ctrl-C stops following without an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("tail") {
				tail = a.defaultTail()
			}
			return a.withStack(cmd.Context(), func(m *stack.Manager) error {
				return m.Logs(cmd.Context(), a.target(args), tail, follow, a.stdout, a.stderr)
			})
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", config.DefaultTail, "Number of lines to show")
	cmd.Flags().BoolVar(&follow, "follow", false, "Follow log output")
	return cmd
}

// defaultTail reads the persisted tail length. Problems are reported and
// the built-in default is used.
func (a *app) defaultTail() int {
	store, err := a.tailStore()
	if err != nil {
		a.log.Debug("tail store unavailable", zap.Error(err))
		return config.DefaultTail
	}
	n, err := store.Load()
	if err != nil {
		if errors.Is(err, config.ErrInvalidTail) {
			menu.Warn(a.stderr, "%v; using %d", err, n)
		} else {
			a.log.Warn("failed to read tail default", zap.Error(err))
		}
	}
	return n
}
