package stack

import (
	"sort"

	"github.com/osss-dev/osss-compose/internal/docker"
	"github.com/osss-dev/osss-compose/internal/model"
)

// Plan is the difference between what a target wants and what the engine
// reports.
type Plan struct {
	// ToStart lists desired services without a running container.
	ToStart []string `json:"toStart,omitempty"`

	// ToRemove lists in-scope containers whose service is not desired.
	ToRemove []model.ContainerInfo `json:"toRemove,omitempty"`

	// Stale lists extra containers of desired services: exited ones when a
	// running one exists, running duplicates beyond the first, and
	// `compose run` containers. Up leaves them to compose; Recreate removes
	// them.
	Stale []model.ContainerInfo `json:"stale,omitempty"`

	// Keep holds the primary container of each desired service, running
	// ones preferred.
	Keep []model.ContainerInfo `json:"keep,omitempty"`
}

// IsNoop reports whether the plan changes nothing.
func (p Plan) IsNoop() bool {
	return len(p.ToStart) == 0 && len(p.ToRemove) == 0
}

// Diff compares desired services with actual containers. Only containers
// whose service is in scope are considered; everything else is left out of
// the plan entirely. A nil scope means every container. Stub overlay
// containers are never kept, and neither are `compose run` containers.
func Diff(desired []string, actual []model.ContainerInfo, scope []string) Plan {
	want := toSet(desired)
	var inScope func(model.ContainerInfo) bool
	if scope == nil {
		inScope = func(model.ContainerInfo) bool { return true }
	} else {
		s := toSet(scope)
		inScope = func(c model.ContainerInfo) bool { return s[c.ServiceName] }
	}

	var plan Plan
	running := map[string]bool{}
	byService := map[string][]model.ContainerInfo{}
	for _, c := range actual {
		if !inScope(c) {
			continue
		}
		if !want[c.ServiceName] || docker.IsStub(c.Labels) {
			plan.ToRemove = append(plan.ToRemove, c)
			continue
		}
		if docker.IsOneoff(c.Labels) {
			plan.Stale = append(plan.Stale, c)
			continue
		}
		byService[c.ServiceName] = append(byService[c.ServiceName], c)
	}

	for svc, cs := range byService {
		sort.SliceStable(cs, func(i, j int) bool {
			return cs[i].IsRunning() && !cs[j].IsRunning()
		})
		for i, c := range cs {
			if i == 0 {
				plan.Keep = append(plan.Keep, c)
				running[svc] = c.IsRunning()
				continue
			}
			plan.Stale = append(plan.Stale, c)
		}
	}

	for _, svc := range model.SortedUnique(desired) {
		if !running[svc] {
			plan.ToStart = append(plan.ToStart, svc)
		}
	}
	sortContainers(plan.ToRemove)
	sortContainers(plan.Stale)
	sortContainers(plan.Keep)
	return plan
}

// States maps each desired service to its observed state.
func States(desired []string, actual []model.ContainerInfo) []model.ServiceStatus {
	groups := docker.GroupByService(actual)
	out := make([]model.ServiceStatus, 0, len(desired))
	for _, svc := range model.SortedUnique(desired) {
		st := model.ServiceStatus{Service: svc, State: model.StateMissing}
		for _, c := range groups[svc] {
			st.Containers = append(st.Containers, c.ContainerName)
			if c.IsRunning() {
				st.State = model.StateRunning
			} else if st.State == model.StateMissing {
				st.State = model.StateExited
			}
		}
		out = append(out, st)
	}
	return out
}

func toSet(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

func sortContainers(cs []model.ContainerInfo) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].ServiceName != cs[j].ServiceName {
			return cs[i].ServiceName < cs[j].ServiceName
		}
		return cs[i].ContainerName < cs[j].ContainerName
	})
}
