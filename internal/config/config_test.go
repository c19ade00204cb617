package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the duration of the test. t.Setenv registers the
// restore; the Unsetenv makes the key truly absent so godotenv may set it.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func clearBoundEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		unsetEnv(t, env)
	}
}

func TestNormalizeProjectName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"osss", "osss"},
		{"OSSS", "osss"},
		{"My Project!", "myproject"},
		{"--_x", "x"},
		{"a.b.c", "abc"},
		{"keep_under-score", "keep_under-score"},
		{"", "osss"},
		{"!!!", "osss"},
		{"__", "osss"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeProjectName(tt.in))
		})
	}
}

func TestResolve_Defaults(t *testing.T) {
	clearBoundEnv(t)
	dir := filepath.Join(t.TempDir(), "My Stack")
	compose := filepath.Join(dir, "docker-compose.yml")
	writeFile(t, compose, "services: {}\n")

	v := NewViper()
	v.Set(KeyFile, compose)

	s, err := Resolve(v)
	require.NoError(t, err)

	assert.Equal(t, compose, s.ComposeFile)
	assert.Equal(t, []string{compose}, s.ComposeFiles)
	assert.Equal(t, dir, s.ProjectDir)
	assert.Equal(t, "mystack", s.Project)
	assert.Equal(t, EngineAuto, s.Engine)
	assert.Equal(t, DefaultMachine, s.MachineName)
	assert.False(t, s.EnvLoaded)
	assert.Equal(t, filepath.Join(dir, ".env"), s.EnvFile)
	assert.True(t, s.ComposeFileExists())
}

func TestResolve_MultipleComposeFiles(t *testing.T) {
	clearBoundEnv(t)
	dir := t.TempDir()
	base := filepath.Join(dir, "docker-compose.yml")
	override := filepath.Join(dir, "override", "docker-compose.dev.yml")
	writeFile(t, base, "services: {}\n")

	t.Run("path list separator by default", func(t *testing.T) {
		unsetEnv(t, "COMPOSE_PATH_SEPARATOR")
		v := NewViper()
		v.Set(KeyFile, base+string(os.PathListSeparator)+override)

		s, err := Resolve(v)
		require.NoError(t, err)
		assert.Equal(t, []string{base, override}, s.ComposeFiles)
		assert.Equal(t, base, s.ComposeFile)
		assert.Equal(t, dir, s.ProjectDir)
		assert.False(t, s.ComposeFileExists(), "override has not been written yet")
		assert.Equal(t, override, s.MissingComposeFile())
	})

	t.Run("custom separator", func(t *testing.T) {
		t.Setenv("COMPOSE_PATH_SEPARATOR", ",")
		writeFile(t, override, "services: {}\n")
		v := NewViper()
		v.Set(KeyFile, base+", "+override+",")

		s, err := Resolve(v)
		require.NoError(t, err)
		assert.Equal(t, []string{base, override}, s.ComposeFiles)
		assert.True(t, s.ComposeFileExists())
		assert.Empty(t, s.MissingComposeFile())
	})
}

func TestSplitComposeFiles_Relative(t *testing.T) {
	unsetEnv(t, "COMPOSE_PATH_SEPARATOR")
	wd, err := os.Getwd()
	require.NoError(t, err)

	files, err := SplitComposeFiles("")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(wd, DefaultComposeFile)}, files)

	files, err = SplitComposeFiles("a.yml" + string(os.PathListSeparator) + "b/c.yml")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(wd, "a.yml"), filepath.Join(wd, "b", "c.yml")}, files)
}

// TestResolve_Precedence verifies flag > environment > .env.
func TestResolve_Precedence(t *testing.T) {
	clearBoundEnv(t)
	dir := t.TempDir()
	compose := filepath.Join(dir, "docker-compose.yml")
	writeFile(t, compose, "services: {}\n")
	writeFile(t, filepath.Join(dir, ".env"),
		"COMPOSE_PROJECT_NAME=fromdotenv\nPROFILE=ai\nPODMAN_MACHINE_NAME=dotenv-machine\n")

	t.Setenv("PODMAN_MACHINE_NAME", "env-machine")

	v := NewViper()
	v.Set(KeyFile, compose)
	v.Set(KeyProject, "FromFlag")

	s, err := Resolve(v)
	require.NoError(t, err)

	assert.True(t, s.EnvLoaded)
	assert.Equal(t, "fromflag", s.Project)
	assert.Equal(t, "env-machine", s.MachineName)
	assert.Equal(t, "ai", s.Profile)
}

func TestResolve_ExplicitEnvFileMissing(t *testing.T) {
	clearBoundEnv(t)
	dir := t.TempDir()

	v := NewViper()
	v.Set(KeyFile, filepath.Join(dir, "docker-compose.yml"))
	v.Set(KeyEnvFile, filepath.Join(dir, "missing.env"))

	_, err := Resolve(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResolve_InvalidEngine(t *testing.T) {
	clearBoundEnv(t)
	v := NewViper()
	v.Set(KeyFile, filepath.Join(t.TempDir(), "docker-compose.yml"))
	v.Set(KeyEngine, "lxc")

	_, err := Resolve(v)
	assert.ErrorContains(t, err, "invalid engine")
}

func TestResolve_InMachineRequiresPodman(t *testing.T) {
	clearBoundEnv(t)
	v := NewViper()
	v.Set(KeyFile, filepath.Join(t.TempDir(), "docker-compose.yml"))
	v.Set(KeyEngine, EngineDocker)
	v.Set(KeyInMachine, true)

	_, err := Resolve(v)
	assert.Error(t, err)
}

func TestBindFlags_IgnoresUnknown(t *testing.T) {
	clearBoundEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP(KeyProfile, "r", "", "")
	fs.Bool("volumes", false, "")
	require.NoError(t, fs.Parse([]string{"-r", "observability", "--volumes"}))

	v := NewViper()
	require.NoError(t, BindFlags(v, fs))

	assert.Equal(t, "observability", v.GetString(KeyProfile))
	assert.False(t, v.IsSet("volumes"))
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()

	loaded, err := LoadDotenv(filepath.Join(dir, ".env"), false)
	require.NoError(t, err)
	assert.False(t, loaded)

	unsetEnv(t, "OSSS_DOTENV_PROBE")
	t.Setenv("OSSS_DOTENV_KEEP", "process")

	path := filepath.Join(dir, "custom.env")
	writeFile(t, path, "OSSS_DOTENV_PROBE=1\nOSSS_DOTENV_KEEP=file\n")

	loaded, err = LoadDotenv(path, true)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "1", os.Getenv("OSSS_DOTENV_PROBE"))
	assert.Equal(t, "process", os.Getenv("OSSS_DOTENV_KEEP"))
}

func TestTailStore(t *testing.T) {
	t.Run("missing file yields default", func(t *testing.T) {
		s := &TailStore{Path: filepath.Join(t.TempDir(), "none.conf")}
		n, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultTail, n)
	})

	t.Run("save then load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "osss-compose-repair.conf")
		s := &TailStore{Path: path}
		require.NoError(t, s.Save(500))

		n, err := s.Load()
		require.NoError(t, err)
		assert.Equal(t, 500, n)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("invalid value warns and defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.conf")
		writeFile(t, path, "DEFAULT_TAIL=-5\n")
		n, err := (&TailStore{Path: path}).Load()
		assert.True(t, errors.Is(err, ErrInvalidTail))
		assert.Equal(t, DefaultTail, n)

		writeFile(t, path, "DEFAULT_TAIL=lots\n")
		n, err = (&TailStore{Path: path}).Load()
		assert.True(t, errors.Is(err, ErrInvalidTail))
		assert.Equal(t, DefaultTail, n)
	})

	t.Run("save rejects non-positive", func(t *testing.T) {
		s := &TailStore{Path: filepath.Join(t.TempDir(), "x.conf")}
		assert.Error(t, s.Save(0))
	})

	t.Run("save preserves other keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "keep.conf")
		writeFile(t, path, "OTHER=value\nDEFAULT_TAIL=10\n")
		s := &TailStore{Path: path}
		require.NoError(t, s.Save(42))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "OTHER=")
		assert.Contains(t, string(data), "DEFAULT_TAIL=42")
	})

	t.Run("save keeps an unparsable file intact", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.conf")
		writeFile(t, path, "OTHER=value\nBAD-KEY=oops\n")
		err := (&TailStore{Path: path}).Save(42)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "OTHER=value\nBAD-KEY=oops\n", string(data))
	})
}
