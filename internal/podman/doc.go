// Package podman manages the Podman machine, the Linux VM that runs
// containers on macOS and Windows.
//
// All operations shell out to the podman CLI through process.Runner. Commands
// meant for the VM itself go through `podman machine ssh <name> --`.
package podman
