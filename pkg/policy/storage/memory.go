package storage

import (
	"context"
	"sync"

	"veridian-hq/attune/pkg/policy"
)

// MemoryBackend implements Backend in process memory. This is the default
// backend; all data is lost when the process exits.
type MemoryBackend struct {
	mu       sync.RWMutex
	policies map[string]*policy.Policy
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		policies: make(map[string]*policy.Policy),
	}
}

// SavePolicy persists the policy, replacing any previous version by id.
func (m *MemoryBackend) SavePolicy(ctx context.Context, p *policy.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

// DeletePolicy removes a policy by id.
func (m *MemoryBackend) DeletePolicy(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.policies, id)
	return nil
}

// LoadAll returns every stored policy.
func (m *MemoryBackend) LoadAll(ctx context.Context) ([]*policy.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*policy.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// Close releases resources; a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}
