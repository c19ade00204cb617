// Package cli implements the cobra commands of osss-compose.
//
// Each subcommand lives in its own file. This file defines the root
// command, the global flags and the mapping from errors to exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/osss-dev/osss-compose/internal/compose"
	"github.com/osss-dev/osss-compose/internal/config"
	"github.com/osss-dev/osss-compose/internal/docker"
	"github.com/osss-dev/osss-compose/internal/logging"
	"github.com/osss-dev/osss-compose/internal/model"
	"github.com/osss-dev/osss-compose/internal/podman"
	"github.com/osss-dev/osss-compose/internal/process"
)

// Version, Commit and Date are injected from main at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// app carries what every command needs. Fields a test wants to replace are
// plain values or funcs.
type app struct {
	viper    *viper.Viper
	settings *config.Settings
	log      *zap.Logger

	runner process.Runner
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// connect opens the engine API. It returns a nil API when no engine
	// answers.
	connect func(ctx context.Context, hint docker.EngineHint) (docker.API, func())

	// tailStore locates the persisted DEFAULT_TAIL file.
	tailStore func() (*config.TailStore, error)

	// lockDir holds the per-project lock. Empty means os.TempDir().
	lockDir string

	// interactive reports whether stdin is a terminal.
	interactive func() bool
}

func newApp() *app {
	a := &app{
		viper:       config.NewViper(),
		runner:      process.NewExecRunner(),
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		tailStore:   config.NewTailStore,
		interactive: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
	a.connect = a.connectEngine
	return a
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp())
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "osss-compose",
		Short: "Manage the OSSS local development stack",
		Long: `osss-compose starts, stops and repairs the OSSS development stack
defined in docker-compose.yml, one compose profile at a time.

It works with docker compose, docker-compose, podman compose and
podman-compose, and can run compose inside a Podman machine.

Run without arguments on a terminal to open the interactive menu.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
		Args:          cobra.NoArgs,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.interactive() {
				return a.runMenu(cmd.Context())
			}
			return cmd.Help()
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringP(config.KeyProject, "p", "", "Compose project name (env COMPOSE_PROJECT_NAME)")
	pf.StringP(config.KeyFile, "f", "", "Compose file (env COMPOSE_FILE, default docker-compose.yml)")
	pf.StringP(config.KeyProfile, "r", "", "Compose profile (env PROFILE)")
	pf.String(config.KeyEnvFile, "", "Dotenv file (env ENV_FILE, default .env beside the compose file)")
	pf.String(config.KeyEngine, "", "Container engine: auto, docker or podman (env OSSS_COMPOSE_ENGINE)")
	pf.Bool(config.KeyInMachine, false, "Run compose inside the Podman machine (env OSSS_PODMAN_SSH)")
	pf.Bool(config.KeyJSON, false, "Output in JSON format")
	pf.BoolP(config.KeyVerbose, "v", false, "Enable verbose output")
	// Flag names are known keys, so binding cannot fail.
	_ = config.BindFlags(a.viper, pf)

	root.AddCommand(
		newProfilesCommand(a),
		newServicesCommand(a),
		newUpCommand(a),
		newDownCommand(a),
		newRecreateCommand(a),
		newRebuildCommand(a),
		newStatusCommand(a),
		newLogsCommand(a),
		newCleanupCommand(a),
		newTailDefaultCommand(a),
		newMachineCommand(a),
		newCertsCommand(a),
		newVaultOIDCCommand(a),
		newMenuCommand(a),
	)
	return root
}

// setup resolves settings and builds the logger. Repeated calls are no-ops.
func (a *app) setup() error {
	if a.settings != nil {
		return nil
	}
	s, err := config.Resolve(a.viper)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid configuration", err)
	}
	a.settings = s
	if a.log == nil {
		a.log = logging.New(logging.Options{
			Verbose: s.Verbose,
			Output:  a.stderr,
			Color:   isTerminal(a.stderr),
		})
	}
	a.log.Debug("configuration resolved",
		zap.Strings("compose_files", s.ComposeFiles),
		zap.String("project", s.Project),
		zap.String("profile", s.Profile),
		zap.String("engine", s.Engine),
		zap.Bool("env_loaded", s.EnvLoaded))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Execute runs root and exits with the code its error maps to.
func Execute(root *cobra.Command) {
	os.Exit(run(root))
}

func run(root *cobra.Command) int {
	err := root.Execute()
	if err == nil {
		return int(model.ExitSuccess)
	}
	jsonOutput, _ := root.PersistentFlags().GetBool(config.KeyJSON)
	printError(root.ErrOrStderr(), jsonOutput, err)
	return int(ExitCodeFor(err))
}

// ExitCodeFor maps err to a process exit code. A CLIError's own code wins;
// otherwise the sentinel errors of the domain packages are recognised.
func ExitCodeFor(err error) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	switch {
	case errors.Is(err, huh.ErrUserAborted), errors.Is(err, context.Canceled):
		return model.ExitUserCancelled
	case errors.Is(err, compose.ErrComposeFileNotFound):
		return model.ExitComposeFileNotFound
	case errors.Is(err, compose.ErrNoProvider):
		return model.ExitEngineUnavailable
	case errors.Is(err, compose.ErrProfileNotFound):
		return model.ExitProfileNotFound
	case errors.Is(err, podman.ErrMachineNotFound):
		return model.ExitMachineError
	case errors.Is(err, process.ErrLockHeld):
		return model.ExitLocked
	}
	return model.ExitGeneralError
}

// printError writes err to w as "❌ Error: ..." or, with --json, as
// {"error": {"message", "code"}}.
func printError(w io.Writer, jsonOutput bool, err error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": err.Error(),
				"code":    int(ExitCodeFor(err)),
			},
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}
	fmt.Fprintf(w, "❌ Error: %v\n", err)
}
