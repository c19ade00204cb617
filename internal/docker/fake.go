package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
)

// FakeAPI is an in-memory API for tests. It honours label filters and the
// All flag on ContainerList, and reports missing objects with errors that
// client.IsErrNotFound recognises.
type FakeAPI struct {
	mu sync.Mutex

	Containers []container.Summary
	Volumes    []*volume.Volume
	Networks   map[string]bool

	// Fail maps an object ID or name to an error returned by remove calls.
	Fail map[string]error

	PingErr error
	ListErr error

	Stopped         []string
	Removed         []string
	RemovedVolumes  []string
	CreatedNetworks []string
}

// NewFakeAPI returns an empty fake.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{Networks: map[string]bool{}, Fail: map[string]error{}}
}

// AddContainer registers a compose container with project and service
// labels and returns its ID.
func (f *FakeAPI) AddContainer(project, service, name, state string, extra map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	labels := map[string]string{LabelComposeProject: project, LabelComposeService: service}
	for k, v := range extra {
		labels[k] = v
	}
	id := fmt.Sprintf("%012x%052d", len(f.Containers)+1, 0)
	c := container.Summary{
		ID:     id,
		Names:  []string{"/" + name},
		Labels: labels,
	}
	// State is a named string type in newer API versions.
	_ = json.Unmarshal([]byte(fmt.Sprintf(`{"State":%q}`, state)), &c)
	f.Containers = append(f.Containers, c)
	return id
}

// AddVolume registers a compose volume.
func (f *FakeAPI) AddVolume(project, composeName, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Volumes = append(f.Volumes, &volume.Volume{
		Name:   name,
		Labels: map[string]string{LabelComposeProject: project, LabelComposeVolume: composeName},
	})
}

type notFoundError struct{ what string }

func (e notFoundError) Error() string { return "No such object: " + e.what }
func (notFoundError) NotFound()       {}

func matchLabels(labels map[string]string, wanted []string) bool {
	for _, w := range wanted {
		k, v, hasValue := strings.Cut(w, "=")
		got, ok := labels[k]
		if !ok || (hasValue && got != v) {
			return false
		}
	}
	return true
}

func (f *FakeAPI) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.45"}, f.PingErr
}

func (f *FakeAPI) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	wanted := options.Filters.Get("label")
	var out []container.Summary
	for _, c := range f.Containers {
		if !options.All && c.State != "running" {
			continue
		}
		if matchLabels(c.Labels, wanted) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *FakeAPI) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.Containers {
		if c.ID == containerID {
			f.Containers[i].State = "exited"
			f.Stopped = append(f.Stopped, containerID)
			return nil
		}
	}
	return notFoundError{containerID}
}

func (f *FakeAPI) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[containerID]; err != nil {
		return err
	}
	for i, c := range f.Containers {
		if c.ID == containerID {
			f.Containers = append(f.Containers[:i], f.Containers[i+1:]...)
			f.Removed = append(f.Removed, containerID)
			return nil
		}
	}
	return notFoundError{containerID}
}

func (f *FakeAPI) VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return volume.ListResponse{}, f.ListErr
	}
	wanted := options.Filters.Get("label")
	var out []*volume.Volume
	for _, v := range f.Volumes {
		if matchLabels(v.Labels, wanted) {
			out = append(out, v)
		}
	}
	return volume.ListResponse{Volumes: out}, nil
}

func (f *FakeAPI) VolumeRemove(ctx context.Context, volumeID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[volumeID]; err != nil {
		return err
	}
	for i, v := range f.Volumes {
		if v.Name == volumeID {
			f.Volumes = append(f.Volumes[:i], f.Volumes[i+1:]...)
			f.RemovedVolumes = append(f.RemovedVolumes, volumeID)
			return nil
		}
	}
	return notFoundError{volumeID}
}

func (f *FakeAPI) NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Networks[networkID] {
		return network.Inspect{Name: networkID}, nil
	}
	return network.Inspect{}, notFoundError{networkID}
}

func (f *FakeAPI) NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[name]; err != nil {
		return network.CreateResponse{}, err
	}
	f.Networks[name] = true
	f.CreatedNetworks = append(f.CreatedNetworks, name)
	return network.CreateResponse{ID: name}, nil
}

var _ API = (*FakeAPI)(nil)
