package artifacts

import (
	"sync"

	"github.com/reagent-dev/reagent/pkg/api"
)

// Registry is an in-process index of artifacts by ID, used by the HTTP
// layer to serve artifact bytes. Entries carry the on-disk path, which is
// never serialized in run records.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]api.Artifact
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]api.Artifact)}
}

// Add records the given artifacts. Entries without an ID are skipped.
func (r *Registry) Add(arts ...api.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range arts {
		if a.ID == "" {
			continue
		}
		r.byID[a.ID] = a
	}
}

// Get looks up an artifact by ID.
func (r *Registry) Get(id string) (api.Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// Len returns the number of registered artifacts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
