package policy

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the thread-safe in-memory policy collection.
//
// The registry is constructed once at process start and injected into the
// rule engine and the transport layer; there is no ambient singleton, so
// tests instantiate isolated registries per case.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	version  string
	loadTime time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]*Policy),
		loadTime: time.Now(),
	}
}

// Upsert validates the policy and inserts or replaces it by id.
func (r *Registry) Upsert(p *Policy) error {
	if p == nil {
		return &ValidationError{Errors: []string{"policy cannot be nil"}}
	}
	if err := p.Validate(); err != nil {
		return err
	}

	// Store a copy so callers cannot mutate registered policies.
	stored := p.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies[stored.ID] = stored
	r.updateVersionLocked()
	return nil
}

// Delete removes a policy by id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.policies[id]; !ok {
		return &NotFoundError{PolicyID: id}
	}
	delete(r.policies, id)
	r.updateVersionLocked()
	return nil
}

// Get retrieves a policy by id.
func (r *Registry) Get(id string) (*Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.policies[id]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// List returns all policies sorted by id.
func (r *Registry) List() []*Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Replace atomically swaps the entire policy set. Used by file-source hot
// reload. Every policy is validated before any is applied.
func (r *Registry) Replace(policies []*Policy) error {
	next := make(map[string]*Policy, len(policies))
	for _, p := range policies {
		if p == nil {
			return &ValidationError{Errors: []string{"policy cannot be nil"}}
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := next[p.ID]; dup {
			return &ValidationError{PolicyID: p.ID, Errors: []string{"duplicate policy id"}}
		}
		next[p.ID] = p.clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies = next
	r.loadTime = time.Now()
	r.updateVersionLocked()
	return nil
}

// Candidates returns the enabled policies whose scope covers the given
// service and environment, ordered by priority descending, then specificity
// descending, then id ascending. The ordering is the tie-break contract the
// rule engine evaluates under.
func (r *Registry) Candidates(service, environment string) []*Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Policy, 0, len(r.policies))
	for _, p := range r.policies {
		if p.Disabled || !p.AppliesTo(service, environment) {
			continue
		}
		out = append(out, p.clone())
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Specificity() != b.Specificity() {
			return a.Specificity() > b.Specificity()
		}
		return a.ID < b.ID
	})
	return out
}

// Count returns the number of registered policies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.policies)
}

// Version returns a content hash of the registered policies. It changes
// whenever the set changes.
func (r *Registry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// LoadTime returns when the policy set was last replaced wholesale.
func (r *Registry) LoadTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadTime
}

// updateVersionLocked recomputes the content hash. Caller holds the write
// lock.
func (r *Registry) updateVersionLocked() {
	ids := make([]string, 0, len(r.policies))
	for id := range r.policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		raw, _ := json.Marshal(r.policies[id])
		h.Write([]byte(id))
		h.Write(raw)
	}
	r.version = fmt.Sprintf("%x", h.Sum(nil))[:16]
}
