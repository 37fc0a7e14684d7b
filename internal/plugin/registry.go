package plugin

import (
	"fmt"
	"sync"
)

// Registry holds services in registration order.
type Registry struct {
	mu       sync.RWMutex
	services []Service
	settings map[string]Settings
}

// NewRegistry registers services in order.
func NewRegistry(services ...Service) (*Registry, error) {
	r := &Registry{settings: map[string]Settings{}}
	for _, svc := range services {
		if err := r.Register(svc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends svc. Services registered earlier take precedence.
func (r *Registry) Register(svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.services {
		if existing.ID() == svc.ID() {
			return fmt.Errorf("%w: %s", ErrDuplicatePlugin, svc.ID())
		}
	}
	r.services = append(r.services, svc)
	return nil
}

// Lookup returns the first service matching rawURL.
func (r *Registry) Lookup(rawURL string) (Service, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, svc := range r.services {
		if svc.Matches(rawURL) {
			return svc, true
		}
	}
	return nil, false
}

// Get returns the service registered under id.
func (r *Registry) Get(id string) (Service, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, svc := range r.services {
		if svc.ID() == id {
			return svc, true
		}
	}
	return nil, false
}

// IDs lists registered service IDs in precedence order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.services))
	for _, svc := range r.services {
		ids = append(ids, svc.ID())
	}
	return ids
}

// SetSettings stores the settings passed to the service with id.
func (r *Registry) SetSettings(id string, settings Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[id] = settings
}

// Settings returns the stored settings for id, or nil.
func (r *Registry) Settings(id string) Settings {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings[id]
}
