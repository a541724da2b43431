package pattern

import (
	"context"
	"sort"
	"sync"
)

// Registry is the in-process pattern catalog.
//
// The external pattern library owns the durable rows; the daemon works
// against this snapshot, which embedders fill via Register and the decay
// and sweep jobs walk. Grouping is by org so tenant-scoped operations see
// every pattern the org's users created.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Pattern
	byTenant map[string]map[string]*Pattern
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*Pattern),
		byTenant: make(map[string]map[string]*Pattern),
	}
}

// tenantOf groups patterns by originating org, falling back to the user
// when no org is set.
func tenantOf(p *Pattern) string {
	if p.Tenant.OrgID != "" {
		return p.Tenant.OrgID
	}
	return p.Tenant.UserID
}

// Register adds or replaces a pattern. Re-registering under a changed
// tenant moves the pattern between tenant buckets.
func (r *Registry) Register(p *Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[p.ID]; ok {
		delete(r.byTenant[tenantOf(prev)], prev.ID)
	}
	r.byID[p.ID] = p

	t := tenantOf(p)
	if r.byTenant[t] == nil {
		r.byTenant[t] = make(map[string]*Pattern)
	}
	r.byTenant[t][p.ID] = p
	return nil
}

// Get returns the pattern with the given ID, or false when absent.
func (r *Registry) Get(id string) (*Pattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Remove drops a pattern from the registry. Removing an unknown ID is a
// no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	t := tenantOf(p)
	delete(r.byTenant[t], id)
	if len(r.byTenant[t]) == 0 {
		delete(r.byTenant, t)
	}
}

// ListPatterns returns the tenant's patterns ordered by creation time, then
// ID for ties.
func (r *Registry) ListPatterns(_ context.Context, tenant string) ([]*Pattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.byTenant[tenant]
	out := make([]*Pattern, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metadata.CreatedAt.Equal(out[j].Metadata.CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].Metadata.CreatedAt.Before(out[j].Metadata.CreatedAt)
	})
	return out, nil
}

// ListTenants returns every tenant with at least one pattern, sorted.
func (r *Registry) ListTenants(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byTenant))
	for t := range r.byTenant {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of registered patterns.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
