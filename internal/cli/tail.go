package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/menu"
	"github.com/osss-dev/osss-compose/internal/model"
)

func newTailDefaultCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tail-default [N]",
		Short: "Show or set the default number of log lines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				n := a.defaultTail()
				if a.settings.JSON {
					return writeJSON(a.stdout, map[string]int{"defaultTail": n})
				}
				fmt.Fprintln(a.stdout, n)
				return nil
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return model.NewCLIError(model.ExitGeneralError,
					fmt.Sprintf("tail must be a positive integer, got %q", args[0]))
			}
			return a.saveTail(n)
		},
	}
}

func (a *app) saveTail(n int) error {
	store, err := a.tailStore()
	if err != nil {
		return err
	}
	if err := store.Save(n); err != nil {
		return err
	}
	if a.settings.JSON {
		return writeJSON(a.stdout, map[string]interface{}{"defaultTail": n, "path": store.Path})
	}
	menu.OK(a.stdout, "default tail set to %d (%s)", n, store.Path)
	return nil
}
