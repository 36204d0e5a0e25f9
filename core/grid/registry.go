package grid

import (
	"sort"
	"sync"
)

// Registry indexes which substations each consumer is connected to. It is
// shared by every consumer of a grid so that no consumer holds references to
// substations.
type Registry struct {
	mu    sync.RWMutex
	links map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{links: make(map[string]map[string]struct{})}
}

// Connect links consumer to substation. It is idempotent.
func (r *Registry) Connect(consumer, substation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.links[consumer]
	if !ok {
		set = make(map[string]struct{})
		r.links[consumer] = set
	}
	set[substation] = struct{}{}
}

// Disconnect removes a link if present.
func (r *Registry) Disconnect(consumer, substation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.links[consumer]; ok {
		delete(set, substation)
		if len(set) == 0 {
			delete(r.links, consumer)
		}
	}
}

// Count returns the number of substations consumer is connected to.
func (r *Registry) Count(consumer string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links[consumer])
}

// Substations returns the sorted substation ids of consumer.
func (r *Registry) Substations(consumer string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.links[consumer]))
	for id := range r.links[consumer] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Consumers returns the sorted consumer ids connected to substation.
func (r *Registry) Consumers(substation string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for c, set := range r.links {
		if _, ok := set[substation]; ok {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
