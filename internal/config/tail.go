package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultTail is the log tail length used when nothing valid is persisted.
const DefaultTail = 200

const (
	tailKey      = "DEFAULT_TAIL"
	tailFileName = "osss-compose-repair.conf"
)

// ErrInvalidTail is returned by TailStore.Load alongside DefaultTail when
// the persisted value is not a positive integer.
var ErrInvalidTail = errors.New("invalid DEFAULT_TAIL")

// TailStore persists the default log tail length in a KEY=value file.
type TailStore struct {
	Path string
}

// DefaultTailPath returns $HOME/.config/osss-compose-repair.conf.
func DefaultTailPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", tailFileName), nil
}

// NewTailStore returns a store at DefaultTailPath.
func NewTailStore() (*TailStore, error) {
	p, err := DefaultTailPath()
	if err != nil {
		return nil, err
	}
	return &TailStore{Path: p}, nil
}

// Load returns the persisted tail length. A missing file yields DefaultTail
// and no error. An unparsable or non-positive value yields DefaultTail and
// an error wrapping ErrInvalidTail, which callers report as a warning.
func (s *TailStore) Load() (int, error) {
	values, err := godotenv.Read(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultTail, nil
		}
		return DefaultTail, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}

	raw, ok := values[tailKey]
	if !ok {
		return DefaultTail, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultTail, fmt.Errorf("%w %q in %s", ErrInvalidTail, raw, s.Path)
	}
	return n, nil
}

// Save writes n as DEFAULT_TAIL, preserving any other keys in the file. A
// file that exists but cannot be parsed is left untouched.
func (s *TailStore) Save(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: must be a positive integer, got %d", ErrInvalidTail, n)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	values, err := godotenv.Read(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		values = map[string]string{}
	case err != nil:
		return fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	values[tailKey] = strconv.Itoa(n)

	if err := godotenv.Write(values, s.Path); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.Path, err)
	}
	if err := os.Chmod(s.Path, 0o600); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", s.Path, err)
	}
	return nil
}
