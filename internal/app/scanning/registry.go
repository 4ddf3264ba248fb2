package scanning

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateCheck is returned when a check id is registered twice.
var ErrDuplicateCheck = errors.New("duplicate check id")

// Registry is the typed catalogue of available checks. Checks are added by
// explicit Register calls at program start; iteration follows registration
// order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Registration)}
}

// Register adds a check. The id must be unique and a factory is required.
func (r *Registry) Register(reg Registration) error {
	if reg.ID == "" {
		return errors.New("check id is required")
	}
	if reg.Factory == nil {
		return fmt.Errorf("check %s: factory is required", reg.ID)
	}
	if reg.Name == "" {
		reg.Name = reg.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[reg.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCheck, reg.ID)
	}
	r.byID[reg.ID] = reg
	r.order = append(r.order, reg.ID)
	return nil
}

// Get returns the registration for id.
func (r *Registry) Get(id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	return reg, ok
}

// Profile returns the checks belonging to p in registration order.
func (r *Registry) Profile(p Profile) ([]Registration, error) {
	p, err := ParseProfile(string(p))
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.order))
	for _, id := range r.order {
		if reg := r.byID[id]; reg.inProfile(p) {
			out = append(out, reg)
		}
	}
	return out, nil
}

// All returns every registration in registration order.
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
