package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Tenant represents an isolated customer namespace. Every tenant-scoped
// resource (chunk collection, usage ledger, document roots) is namespaced
// by tenant id at construction time, never filtered from a shared store.
type Tenant struct {
	ID            string
	Name          string
	AdminEmail    string
	DocumentsRoot string
	ChunkedRoot   string
	CreatedAt     time.Time
}

// tenantIDPattern matches provisioned tenant ids: 16 lowercase hex chars.
var tenantIDPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// IsValidTenantID reports whether id has the provisioned-tenant format.
func IsValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id)
}

// SchemaName returns the Postgres schema holding this tenant's data.
func (t *Tenant) SchemaName() string {
	return "tenant_" + t.ID
}

// ValidateTenant validates a Tenant instance
func ValidateTenant(t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant cannot be nil")
	}

	if t.ID == "" {
		return fmt.Errorf("tenant ID is required")
	}

	if !IsValidTenantID(t.ID) {
		return fmt.Errorf("tenant ID must be 16 hex characters")
	}

	if t.Name == "" {
		return fmt.Errorf("tenant Name is required")
	}

	return nil
}
