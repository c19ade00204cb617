package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osss-dev/osss-compose/internal/menu"
	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/podman"
	"github.com/osss-dev/osss-compose/internal/stack"
)

func newMenuCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Open the interactive menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMenu(cmd.Context())
		},
	}
}

func (a *app) runMenu(ctx context.Context) error {
	p := &menu.HuhPrompter{In: a.stdin, Out: a.stdout, Accessible: !a.interactive()}
	return a.newMenu(p).Run(ctx)
}

// newMenu builds the numbered actions. Each one asks for its inputs and
// then calls the same code as the matching command.
func (a *app) newMenu(p menu.Prompter) *menu.Menu {
	lifecycle := func(verb string, fn func(ctx context.Context, m *stack.Manager, t model.Target) (*stack.Report, error)) func(context.Context) error {
		return func(ctx context.Context) error {
			t, err := a.askTarget(ctx, p)
			if err != nil {
				return err
			}
			return a.withLock(func() error {
				return a.withStack(ctx, func(m *stack.Manager) error {
					r, err := fn(ctx, m, t)
					if err != nil {
						return err
					}
					return a.printReport(verb, r)
				})
			})
		}
	}

	items := []menu.Item{
		{Key: "up", Title: "Start profile", Run: lifecycle("started", func(ctx context.Context, m *stack.Manager, t model.Target) (*stack.Report, error) {
			return m.Up(ctx, t, stack.UpOptions{})
		})},
		{Key: "down", Title: "Stop profile", Run: func(ctx context.Context) error {
			t, err := a.askTarget(ctx, p)
			if err != nil {
				return err
			}
			volumes, err := p.Confirm(ctx, "Also remove volumes used only by these services?")
			if err != nil {
				return err
			}
			return a.withLock(func() error {
				return a.withStack(ctx, func(m *stack.Manager) error {
					r, err := m.Down(ctx, t, volumes)
					if err != nil {
						return err
					}
					return a.printReport("stopped", r)
				})
			})
		}},
		{Key: "recreate", Title: "Recreate profile (keep volumes)", Run: lifecycle("recreated", func(ctx context.Context, m *stack.Manager, t model.Target) (*stack.Report, error) {
			return m.Recreate(ctx, t, stack.UpOptions{})
		})},
		{Key: "rebuild", Title: "Rebuild images and recreate", Run: lifecycle("rebuilt", func(ctx context.Context, m *stack.Manager, t model.Target) (*stack.Report, error) {
			return m.Rebuild(ctx, t, stack.UpOptions{})
		})},
		{Key: "status", Title: "Status", Run: func(ctx context.Context) error {
			t, err := a.askTarget(ctx, p)
			if err != nil {
				return err
			}
			return a.withStack(ctx, func(m *stack.Manager) error {
				res, err := m.Status(ctx, t)
				if err != nil {
					return err
				}
				return a.printStatus(res)
			})
		}},
		{Key: "logs", Title: "Logs", Run: func(ctx context.Context) error {
			return a.menuLogs(ctx, p)
		}},
		{Key: "cleanup", Title: "Clean up orphans, stubs and stray volumes", Run: func(ctx context.Context) error {
			ok, err := p.Confirm(ctx, fmt.Sprintf("Remove leftovers of project %s?", a.settings.Project))
			if err != nil || !ok {
				return err
			}
			return a.withLock(func() error {
				return a.withStack(ctx, func(m *stack.Manager) error {
					r, err := m.Cleanup(ctx, stack.CleanupOptions{Orphans: true, Volumes: true})
					if err != nil {
						return err
					}
					return a.printReport("cleaned", r)
				})
			})
		}},
		{Key: "tail", Title: "Set default log tail", Run: func(ctx context.Context) error {
			raw, err := p.Ask(ctx, "Default number of log lines", strconv.Itoa(a.defaultTail()))
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || n <= 0 {
				return fmt.Errorf("tail must be a positive integer, got %q", raw)
			}
			return a.saveTail(n)
		}},
		{Key: "machine", Title: "Bootstrap Podman machine", Run: func(ctx context.Context) error {
			return a.bootstrapMachine(ctx, podman.InitOptions{})
		}},
		{Key: "certs", Title: "Generate certificates and keystores", Run: func(ctx context.Context) error {
			force, err := p.Confirm(ctx, "Regenerate existing certificates?")
			if err != nil {
				return err
			}
			return a.generateCerts(ctx, &certsFlags{force: force}, nil)
		}},
		{Key: "vault", Title: "Configure Vault OIDC", Run: func(ctx context.Context) error {
			return a.configureVault(ctx, &vaultFlags{})
		}},
		{Key: menu.QuitKey, Title: "Quit"},
	}

	return &menu.Menu{
		Title:  fmt.Sprintf("OSSS stack: %s (%s)", a.settings.Project, a.settings.ComposeFile),
		Items:  items,
		Prompt: p,
		Out:    a.stdout,
		Log:    a.log,
	}
}

// askTarget asks for a profile, defaulting to the configured one. An empty
// answer targets every service.
func (a *app) askTarget(ctx context.Context, p menu.Prompter) (model.Target, error) {
	profile, err := p.Ask(ctx, "Profile (empty for all services)", a.settings.Profile)
	if err != nil {
		return model.Target{}, err
	}
	return model.Target{Profile: strings.TrimSpace(profile)}, nil
}

func (a *app) menuLogs(ctx context.Context, p menu.Prompter) error {
	t, err := a.askTarget(ctx, p)
	if err != nil {
		return err
	}
	services, err := p.Ask(ctx, "Services (space separated, empty for all)", "")
	if err != nil {
		return err
	}
	t.Services = strings.Fields(services)
	follow, err := p.Confirm(ctx, "Follow? (Ctrl-C returns to the menu)")
	if err != nil {
		return err
	}
	return a.withStack(ctx, func(m *stack.Manager) error {
		return m.Logs(ctx, t, a.defaultTail(), follow, a.stdout, a.stderr)
	})
}
