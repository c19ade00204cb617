package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/osss-dev/osss-compose/internal/model"
)

func newProfilesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the profiles declared in the compose file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.resolver(cmd.Context())
			if err != nil {
				return err
			}
			profiles, err := r.ListProfiles(cmd.Context())
			if err != nil {
				return err
			}
			if a.settings.JSON {
				if profiles == nil {
					profiles = []*model.Profile{}
				}
				return writeJSON(a.stdout, map[string]interface{}{"profiles": profiles})
			}
			if len(profiles) == 0 {
				fmt.Fprintln(a.stdout, "No profiles declared.")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "PROFILE\tSERVICES")
			for _, p := range profiles {
				fmt.Fprintf(tw, "%s\t%s\n", p.Name, joinOrDash(p.Services))
			}
			return tw.Flush()
		},
	}
}

func newServicesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the services of the profile (-r) or of the whole file",
		Long: `List the services of a compose profile.

Unprofiled services are not part of any profile. Without -r every service
in the file is listed. The source column tells which resolver answered:
native (compose config), yaml or scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.resolver(cmd.Context())
			if err != nil {
				return err
			}
			p, err := r.Resolve(cmd.Context(), a.settings.Profile)
			if err != nil {
				return err
			}
			if a.settings.JSON {
				return writeJSON(a.stdout, p)
			}
			for _, s := range p.Services {
				fmt.Fprintln(a.stdout, s)
			}
			a.log.Debug("services resolved", zap.Int("count", len(p.Services)), zap.Stringer("source", p.Source))
			return nil
		},
	}
}
