package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/osss-dev/osss-compose/internal/menu"
	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/stack"
)

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func containerNames(cs []model.ContainerInfo) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ContainerName)
	}
	return out
}

func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

// printReport renders the result of a lifecycle action.
func (a *app) printReport(verb string, r *stack.Report) error {
	if a.settings.JSON {
		return writeJSON(a.stdout, r)
	}
	w := a.stdout
	menu.OK(w, "%s %s: %s", verb, r.Target, joinOrDash(r.Services))
	for _, n := range r.CreatedNetworks {
		menu.OK(w, "created network %s", n)
	}
	if len(r.Stubs) > 0 {
		menu.Warn(w, "stubbed undefined dependencies: %s", strings.Join(r.Stubs, ", "))
	}
	if len(r.Removed) > 0 {
		menu.OK(w, "removed containers: %s", strings.Join(r.Removed, ", "))
	}
	if len(r.RemovedPods) > 0 {
		menu.OK(w, "removed pods: %s", strings.Join(r.RemovedPods, ", "))
	}
	if len(r.RemovedVolumes) > 0 {
		menu.OK(w, "removed volumes: %s", strings.Join(r.RemovedVolumes, ", "))
	}
	if len(r.RemovedFiles) > 0 {
		menu.OK(w, "removed files: %s", strings.Join(r.RemovedFiles, ", "))
	}
	if len(r.Plan.Stale) > 0 {
		menu.Warn(w, "extra containers left in place (run recreate): %s",
			strings.Join(containerNames(r.Plan.Stale), ", "))
	}
	return nil
}

// printStatus renders a status table:
//
//	SERVICE    STATE     CONTAINERS
//	keycloak   running   osss-keycloak-1
//	vault      missing   -
func (a *app) printStatus(res *stack.StatusResult) error {
	if a.settings.JSON {
		return writeJSON(a.stdout, res)
	}
	w := a.stdout
	menu.Title(w, fmt.Sprintf("Project %s, %s", res.Project, res.Target))
	if res.Raw != "" {
		menu.Warn(w, "engine API not reachable; showing compose ps")
		fmt.Fprintln(w, strings.TrimRight(res.Raw, "\n"))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATE\tCONTAINERS")
	for _, s := range res.Services {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Service, s.State, joinOrDash(s.Containers))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	running, exited, missing := res.Counts()
	line := fmt.Sprintf("%d running, %d exited, %d missing", running, exited, missing)
	if exited+missing == 0 {
		menu.OK(w, "%s", line)
	} else {
		menu.Warn(w, "%s", line)
	}
	if len(res.Plan.Stale) > 0 {
		menu.Warn(w, "extra containers: %s", strings.Join(containerNames(res.Plan.Stale), ", "))
	}
	return nil
}
