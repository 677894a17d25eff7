package vessel

import (
	"sort"
	"sync"
)

// Filter selects containers in Registry.List. A nil Filter matches all.
type Filter func(Container) bool

// Registry is the process-wide directory of known containers. Lookups take
// the read lock and never block each other; add and remove are exclusive.
type Registry struct {
	mu         sync.RWMutex
	containers map[string]Container
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{containers: make(map[string]Container)}
}

// Add registers a container under its id.
func (r *Registry) Add(c Container) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.containers[c.ID()]; ok {
		return newGenericErrorf(Conflict, "container with id %s already exists", c.ID())
	}
	r.containers[c.ID()] = c
	return nil
}

// Get returns the container registered under id.
func (r *Registry) Get(id string) (Container, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.containers[id]
	if !ok {
		return nil, newGenericErrorf(NotFound, "container %s does not exist", id)
	}
	return c, nil
}

// Remove deletes the container registered under id. The container must hold
// no kernel resources: only stopped and dead containers are removable, and
// the Removing transition is taken before the entry is dropped so that a
// racing start observes the terminal state instead of a vanished record.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[id]
	if !ok {
		return newGenericErrorf(NotFound, "container %s does not exist", id)
	}
	status := c.Status()
	switch status {
	case Stopped, Dead:
	default:
		return newGenericErrorf(Conflict, "container %s is %s; stop it before removing", id, status)
	}
	if err := c.claimRemoval(); err != nil {
		// a concurrent transition won the race
		return newGenericError(err, Conflict)
	}
	delete(r.containers, id)
	return nil
}

// purge drops an entry without state checks. The caller has already taken
// the Removing transition on a container that holds no kernel resources.
func (r *Registry) purge(id string) {
	r.mu.Lock()
	delete(r.containers, id)
	r.mu.Unlock()
}

// List returns the containers matching the filter, ordered by id.
func (r *Registry) List(filter Filter) []Container {
	r.mu.RLock()
	out := make([]Container, 0, len(r.containers))
	for _, c := range r.containers {
		if filter == nil || filter(c) {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Size returns the number of registered containers.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.containers)
}
