package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Viper keys. Flag names match the keys so BindFlags can bind by name.
const (
	KeyProject   = "project"
	KeyFile      = "file"
	KeyProfile   = "profile"
	KeyEnvFile   = "env-file"
	KeyEngine    = "engine"
	KeyInMachine = "in-machine"
	KeyMachine   = "machine"
	KeyJSON      = "json"
	KeyVerbose   = "verbose"

	KeyVaultAddr     = "vault-addr"
	KeyVaultToken    = "vault-token"
	KeyKeycloakURL   = "keycloak-url"
	KeyKeycloakRealm = "keycloak-realm"
)

// Defaults.
const (
	DefaultComposeFile = "docker-compose.yml"
	DefaultProject     = "osss"
	DefaultMachine     = "podman-machine-default"
	DefaultEngine      = EngineAuto
	DefaultEnvFile     = ".env"
	DefaultKeycloakURL = "http://localhost:8080"
	DefaultRealm       = "OSSS"
)

// Engine values accepted by --engine / OSSS_COMPOSE_ENGINE.
const (
	EngineAuto   = "auto"
	EngineDocker = "docker"
	EnginePodman = "podman"
)

// envBindings maps viper keys to the environment variables the shell
// scripts honoured. ENV_FILE is read before viper is consulted.
var envBindings = map[string]string{
	KeyProject:       "COMPOSE_PROJECT_NAME",
	KeyFile:          "COMPOSE_FILE",
	KeyProfile:       "PROFILE",
	KeyEnvFile:       "ENV_FILE",
	KeyEngine:        "OSSS_COMPOSE_ENGINE",
	KeyInMachine:     "OSSS_PODMAN_SSH",
	KeyMachine:       "PODMAN_MACHINE_NAME",
	KeyVaultAddr:     "VAULT_ADDR",
	KeyVaultToken:    "VAULT_TOKEN",
	KeyKeycloakURL:   "KEYCLOAK_URL",
	KeyKeycloakRealm: "KEYCLOAK_REALM",
}

// Settings is the fully resolved configuration for one invocation.
type Settings struct {
	// ComposeFile is the absolute path to the first compose file.
	ComposeFile string `json:"composeFile"`

	// ComposeFiles holds every compose file in merge order, ComposeFile
	// first. COMPOSE_FILE may name several, split on
	// COMPOSE_PATH_SEPARATOR.
	ComposeFiles []string `json:"composeFiles"`

	// ProjectDir is the directory containing ComposeFile. Compose commands
	// run with this as their working directory.
	ProjectDir string `json:"projectDir"`

	// Project is the normalised compose project name.
	Project string `json:"project"`

	// Profile is the active compose profile, possibly empty.
	Profile string `json:"profile,omitempty"`

	// EnvFile is the dotenv file that was consulted.
	EnvFile string `json:"envFile,omitempty"`

	// EnvLoaded reports whether EnvFile existed and was loaded.
	EnvLoaded bool `json:"envLoaded"`

	Engine      string `json:"engine"`
	InMachine   bool   `json:"inMachine"`
	MachineName string `json:"machineName"`

	VaultAddr     string `json:"vaultAddr,omitempty"`
	VaultToken    string `json:"-"`
	KeycloakURL   string `json:"keycloakUrl,omitempty"`
	KeycloakRealm string `json:"keycloakRealm,omitempty"`

	Verbose bool `json:"-"`
	JSON    bool `json:"-"`
}

// NewViper returns a viper instance with defaults and environment bindings
// registered. Flags are bound separately with BindFlags.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyFile, DefaultComposeFile)
	v.SetDefault(KeyEngine, DefaultEngine)
	v.SetDefault(KeyMachine, DefaultMachine)
	v.SetDefault(KeyKeycloakURL, DefaultKeycloakURL)
	v.SetDefault(KeyKeycloakRealm, DefaultRealm)
	for key, env := range envBindings {
		// BindEnv only errors on an empty key.
		_ = v.BindEnv(key, env)
	}
	return v
}

// BindFlags binds every flag in fs whose name is a known key. Unknown flags
// are ignored so subcommand-local flags can share the same FlagSet.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var result error
	fs.VisitAll(func(f *pflag.Flag) {
		if !isKnownKey(f.Name) {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}

func isKnownKey(name string) bool {
	if _, ok := envBindings[name]; ok {
		return true
	}
	return name == KeyJSON || name == KeyVerbose
}

// Resolve builds Settings from v. Precedence is flag > process environment >
// dotenv file > default. The dotenv file is loaded into the process
// environment here, before any key other than the compose file is read, and
// godotenv never overwrites variables that are already set.
func Resolve(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := s.setComposeFiles(v.GetString(KeyFile)); err != nil {
		return nil, err
	}

	envFile := v.GetString(KeyEnvFile)
	explicit := envFile != ""
	if !explicit {
		envFile = filepath.Join(s.ProjectDir, DefaultEnvFile)
	}
	loaded, err := LoadDotenv(envFile, explicit)
	if err != nil {
		return nil, err
	}
	s.EnvFile = envFile
	s.EnvLoaded = loaded

	// COMPOSE_FILE and COMPOSE_PATH_SEPARATOR may have come from the dotenv
	// file just loaded.
	if err := s.setComposeFiles(v.GetString(KeyFile)); err != nil {
		return nil, err
	}

	s.Project = v.GetString(KeyProject)
	if s.Project == "" {
		s.Project = filepath.Base(s.ProjectDir)
	}
	s.Project = NormalizeProjectName(s.Project)

	s.Profile = strings.TrimSpace(v.GetString(KeyProfile))

	s.Engine = strings.ToLower(strings.TrimSpace(v.GetString(KeyEngine)))
	switch s.Engine {
	case "":
		s.Engine = DefaultEngine
	case EngineAuto, EngineDocker, EnginePodman:
	default:
		return nil, fmt.Errorf("invalid engine %q: must be one of auto, docker, podman", s.Engine)
	}

	s.InMachine = v.GetBool(KeyInMachine)
	if s.InMachine && s.Engine == EngineDocker {
		return nil, fmt.Errorf("--in-machine requires the podman engine")
	}
	s.MachineName = v.GetString(KeyMachine)
	if s.MachineName == "" {
		s.MachineName = DefaultMachine
	}

	s.VaultAddr = v.GetString(KeyVaultAddr)
	s.VaultToken = v.GetString(KeyVaultToken)
	s.KeycloakURL = strings.TrimRight(v.GetString(KeyKeycloakURL), "/")
	s.KeycloakRealm = v.GetString(KeyKeycloakRealm)

	s.Verbose = v.GetBool(KeyVerbose)
	s.JSON = v.GetBool(KeyJSON)

	return s, nil
}

func (s *Settings) setComposeFiles(raw string) error {
	files, err := SplitComposeFiles(raw)
	if err != nil {
		return err
	}
	s.ComposeFiles = files
	s.ComposeFile = files[0]
	s.ProjectDir = filepath.Dir(files[0])
	return nil
}

// SplitComposeFiles splits a COMPOSE_FILE value on COMPOSE_PATH_SEPARATOR,
// or the OS path list separator when that is unset, and makes each entry
// absolute. An empty value yields DefaultComposeFile.
func SplitComposeFiles(raw string) ([]string, error) {
	sep := os.Getenv("COMPOSE_PATH_SEPARATOR")
	if sep == "" {
		sep = string(os.PathListSeparator)
	}
	var out []string
	for _, f := range strings.Split(raw, sep) {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve compose file path %q: %w", f, err)
		}
		out = append(out, abs)
	}
	if len(out) == 0 {
		abs, err := filepath.Abs(DefaultComposeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve compose file path %q: %w", DefaultComposeFile, err)
		}
		out = []string{abs}
	}
	return out, nil
}

// ComposeFileExists reports whether every resolved compose file is present.
func (s *Settings) ComposeFileExists() bool {
	return len(s.ComposeFiles) > 0 && s.MissingComposeFile() == ""
}

// MissingComposeFile returns the first compose file that does not exist,
// or "" when all do.
func (s *Settings) MissingComposeFile() string {
	for _, f := range s.ComposeFiles {
		if info, err := os.Stat(f); err != nil || info.IsDir() {
			return f
		}
	}
	return ""
}

// NormalizeProjectName applies the compose project naming rules: lowercase,
// only [a-z0-9_-], no leading '-' or '_'. An empty result becomes "osss".
func NormalizeProjectName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), "-_")
	if out == "" {
		return DefaultProject
	}
	return out
}
