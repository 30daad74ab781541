package command

import "sync"

// Registry routes inbound pulls and responses from the transport to the
// live dispatch job for a node. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*DispatchJob
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*DispatchJob)}
}

// Register makes j the routing target for its node. A later registration
// for the same node wins; callers deregister once their job completes.
func (r *Registry) Register(j *DispatchJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.Node()] = j
}

// Deregister removes j only if it is still the registered instance, so a
// finished job cannot evict its replacement.
func (r *Registry) Deregister(j *DispatchJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs[j.Node()] == j {
		delete(r.jobs, j.Node())
	}
}

func (r *Registry) Lookup(nodeID string) (*DispatchJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[nodeID]
	return j, ok
}
