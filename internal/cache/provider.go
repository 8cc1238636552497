package cache

import "sync"

// TenantProvider hands out one QueryCache per tenant, created on demand
// from the store factory. Caches are tenant-scoped by construction, not
// by key prefixing.
type TenantProvider struct {
	factory func(tenantID string) Store

	mu     sync.Mutex
	caches map[string]*QueryCache
}

// NewTenantProvider creates a provider backed by factory.
func NewTenantProvider(factory func(tenantID string) Store) *TenantProvider {
	return &TenantProvider{
		factory: factory,
		caches:  make(map[string]*QueryCache),
	}
}

// For returns the tenant's cache, creating it on first use.
func (p *TenantProvider) For(tenantID string) *QueryCache {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.caches[tenantID]; ok {
		return c
	}
	c := New(p.factory(tenantID))
	p.caches[tenantID] = c
	return c
}
