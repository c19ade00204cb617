// Package docker provides Engine API access for osss-compose.
//
// This package handles:
//   - client initialisation with socket detection for Docker and Podman
//   - label queries that find a compose project's containers and volumes
//   - removal of containers and volumes with aggregated errors
//   - creation of external networks a compose file expects to exist
//
// Query helpers take the API interface rather than *Client so that the
// reconcile logic above them can run against a fake in tests.
package docker
