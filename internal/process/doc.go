// Package process wraps external command execution and per-project locking.
//
// Every docker, podman, compose, openssl and keytool call in osss-compose
// goes through the Runner interface. ExecRunner uses os/exec; MockRunner
// replays scripted output so the packages above it can be tested without a
// container engine.
package process
