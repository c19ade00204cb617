// Package model defines the domain types and value objects for the
// osss-compose CLI.
//
// This package contains pure data structures with no external dependencies.
// Profiles, containers and volumes are transient representations
// reconstructed from the compose file and engine labels at runtime.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
