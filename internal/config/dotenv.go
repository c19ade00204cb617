package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotenv reads KEY=value pairs from path into the process environment.
// Variables already present in the environment are left untouched.
//
// A missing file is not an error unless explicit is true (the user named
// the file via --env-file or ENV_FILE). loaded reports whether the file was
// read.
func LoadDotenv(path string, explicit bool) (loaded bool, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) && !explicit {
			return false, nil
		}
		return false, fmt.Errorf("env file %s: %w", path, statErr)
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return true, nil
}
