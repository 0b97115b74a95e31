// Package health aggregates liveness probes for the subsystems behind
// the marketplace API, such as the database pool and the Polygon RPC
// connection.
package health

import (
	"context"
	"sync"
)

// Status is the outcome of probing one subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes a single subsystem. Implementations should honor ctx
// so a slow dependency cannot stall the whole health endpoint.
type Checker func(ctx context.Context) Status

// Registry collects named checkers and fans them out on demand.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	checks []Checker
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker under the given name. Registration order is
// preserved in CheckAll results.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.checks = append(r.checks, check)
}

// CheckAll probes every registered subsystem concurrently. It reports
// false if any probe fails, along with the per-subsystem results in
// registration order.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	checks := make([]Checker, len(r.checks))
	copy(checks, r.checks)
	r.mu.RUnlock()

	statuses := make([]Status, len(checks))
	var wg sync.WaitGroup
	wg.Add(len(checks))
	for i, check := range checks {
		go func(i int, check Checker) {
			defer wg.Done()
			statuses[i] = check(ctx)
			if statuses[i].Name == "" {
				statuses[i].Name = names[i]
			}
		}(i, check)
	}
	wg.Wait()

	healthy := true
	for _, st := range statuses {
		if !st.Healthy {
			healthy = false
			break
		}
	}
	return healthy, statuses
}
