package docker

import (
	"github.com/docker/docker/api/types/filters"
)

// Labels set by compose implementations on the objects they create. They
// are the only link between a running container and the compose file; no
// state is kept elsewhere.
const (
	// LabelComposeProject is set by docker compose and podman-compose.
	LabelComposeProject = "com.docker.compose.project"

	// LabelComposeService names the service a container was created for.
	LabelComposeService = "com.docker.compose.service"

	// LabelComposeVolume is the volume's key in the compose file.
	LabelComposeVolume = "com.docker.compose.volume"

	// LabelComposeOneoff marks `compose run` containers.
	LabelComposeOneoff = "com.docker.compose.oneoff"

	// LabelPodmanProject is set by older podman-compose releases that do
	// not emit the docker label.
	LabelPodmanProject = "io.podman.compose.project"

	// LabelStub marks placeholder services from the stub overlay.
	LabelStub = "osss.stub"
)

// ProjectFilter returns a label filter for objects of project under the
// given project label key.
func ProjectFilter(labelKey, project string) filters.Args {
	return filters.NewArgs(filters.Arg("label", labelKey+"="+project))
}

// ServiceOf returns the compose service name recorded in labels.
func ServiceOf(labels map[string]string) string {
	return labels[LabelComposeService]
}

// ProjectOf returns the compose project recorded in labels, checking the
// docker label before the podman one.
func ProjectOf(labels map[string]string) string {
	if p := labels[LabelComposeProject]; p != "" {
		return p
	}
	return labels[LabelPodmanProject]
}

// IsStub reports whether labels mark a stub overlay container.
func IsStub(labels map[string]string) bool {
	return labels[LabelStub] == "true"
}

// IsOneoff reports whether labels mark a `compose run` container.
func IsOneoff(labels map[string]string) bool {
	return labels[LabelComposeOneoff] == "True"
}
