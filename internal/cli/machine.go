package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/menu"
	"github.com/osss-dev/osss-compose/internal/podman"
)

func newMachineCommand(a *app) *cobra.Command {
	var opts podman.InitOptions

	cmd := &cobra.Command{
		Use:   "machine",
		Short: "Manage the Podman machine (PODMAN_MACHINE_NAME)",
		Long: `Manage the Podman virtual machine used on macOS and Windows.

The machine name comes from PODMAN_MACHINE_NAME and defaults to
podman-machine-default.`,
	}
	addSizing := func(c *cobra.Command) {
		c.Flags().IntVar(&opts.CPUs, "cpus", 0, "Virtual CPUs for a new machine")
		c.Flags().IntVar(&opts.MemoryMB, "memory", 0, "Memory in MiB for a new machine")
		c.Flags().IntVar(&opts.DiskGB, "disk-size", 0, "Disk size in GiB for a new machine")
		c.Flags().BoolVar(&opts.Rootful, "rootful", false, "Run containers as root inside the machine")
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.machine()
			if err := m.Init(cmd.Context(), opts); err != nil {
				return err
			}
			return a.printMachine(cmd.Context(), m, "initialised")
		},
	}
	addSizing(initCmd)

	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create and start the machine, enable its socket and install podman-compose",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.bootstrapMachine(cmd.Context(), opts)
		},
	}
	addSizing(bootstrapCmd)

	cmd.AddCommand(
		initCmd,
		&cobra.Command{
			Use:   "start",
			Short: "Start the machine and wait for SSH",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m := a.machine()
				if _, err := m.EnsureRunning(cmd.Context(), opts); err != nil {
					return err
				}
				return a.printMachine(cmd.Context(), m, "running")
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the machine",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m := a.machine()
				if err := m.Stop(cmd.Context()); err != nil {
					return err
				}
				return a.printMachine(cmd.Context(), m, "stopped")
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the machine state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.printMachine(cmd.Context(), a.machine(), "")
			},
		},
		&cobra.Command{
			Use:   "reboot",
			Short: "Reboot the machine's guest OS and wait for SSH to return",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m := a.machine()
				if err := m.Reboot(cmd.Context()); err != nil {
					return err
				}
				return a.printMachine(cmd.Context(), m, "rebooted")
			},
		},
		bootstrapCmd,
	)
	return cmd
}

func (a *app) bootstrapMachine(ctx context.Context, opts podman.InitOptions) error {
	res, err := a.machine().Bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	if a.settings.JSON {
		return writeJSON(a.stdout, res)
	}
	menu.OK(a.stdout, "machine %s is %s", res.Machine.Name, res.Machine.State)
	if res.Machine.SocketPath != "" {
		fmt.Fprintln(a.stdout, menu.Muted("   socket: "+res.Machine.SocketPath))
	}
	if res.ComposeInstalled {
		menu.OK(a.stdout, "installed podman-compose in the machine")
	} else {
		menu.OK(a.stdout, "podman-compose already present")
	}
	return nil
}

// printMachine inspects m and prints its state, prefixed by what just
// happened when verb is set.
func (a *app) printMachine(ctx context.Context, m *podman.Machine, verb string) error {
	info, err := m.Inspect(ctx)
	if err != nil {
		return err
	}
	if a.settings.JSON {
		return writeJSON(a.stdout, info)
	}
	msg := fmt.Sprintf("machine %s is %s", info.Name, info.State)
	if verb != "" {
		msg = fmt.Sprintf("machine %s %s (%s)", info.Name, verb, info.State)
	}
	if info.IsRunning() {
		menu.OK(a.stdout, "%s", msg)
	} else {
		menu.Warn(a.stdout, "%s", msg)
	}
	if info.SocketPath != "" {
		fmt.Fprintln(a.stdout, menu.Muted("   socket: "+info.SocketPath))
	}
	return nil
}
