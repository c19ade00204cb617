package compose

import "errors"

var (
	// ErrNoProvider means no compose implementation answered its version
	// probe.
	ErrNoProvider = errors.New("no compose provider found (tried docker compose, docker-compose, podman compose, podman-compose)")

	// ErrProfileNotFound means no resolver source returned any service for
	// the requested profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrComposeFileNotFound means the compose file does not exist.
	ErrComposeFileNotFound = errors.New("compose file not found")
)
