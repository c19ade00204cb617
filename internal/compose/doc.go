// Package compose wraps the Compose CLI in whatever form the host provides.
//
// Detect picks one of `docker compose`, `docker-compose`, `podman compose`
// or `podman-compose`, optionally running inside a podman machine. The
// Resolver maps a profile to its services using the provider's structured
// output when it can be trusted, then a YAML parse, then a line scan.
// The Executor runs lifecycle subcommands and, for `up`, injects stub
// services for depends_on targets the file never defines.
package compose
