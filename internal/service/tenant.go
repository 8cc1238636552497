package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/counsel-labs/lexrag/internal/domain"
)

// TenantRepository is the public-schema tenant registry.
type TenantRepository interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetByName(ctx context.Context, name string) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
}

// TenantService provisions and looks up tenants. Provisioning is
// structural: the tenant id namespaces the document roots and the
// database schema at creation time, so no tenant-scoped resource is
// ever shared.
type TenantService struct {
	repo     TenantRepository
	baseRoot string
}

func NewTenantService(repo TenantRepository, baseRoot string) *TenantService {
	return &TenantService{
		repo:     repo,
		baseRoot: baseRoot,
	}
}

// Provision creates a tenant with a fresh id and its document roots on
// disk. The name must be unique.
func (s *TenantService) Provision(ctx context.Context, name, adminEmail string) (*domain.Tenant, error) {
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant name is required")
	}

	if _, err := s.repo.GetByName(ctx, name); err == nil {
		return nil, domain.ErrTenantAlreadyExists
	} else if !errors.Is(err, domain.ErrTenantNotFound) {
		return nil, err
	}

	id, err := newTenantID()
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate tenant id", err)
	}

	tenant := &domain.Tenant{
		ID:            id,
		Name:          name,
		AdminEmail:    adminEmail,
		DocumentsRoot: filepath.Join(s.baseRoot, id, "documents"),
		ChunkedRoot:   filepath.Join(s.baseRoot, id, "chunked"),
		CreatedAt:     time.Now().UTC(),
	}

	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, err
	}

	for _, dir := range []string{tenant.DocumentsRoot, tenant.ChunkedRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStorageFailure, "failed to create tenant document root", err)
		}
	}

	if err := s.repo.Create(ctx, tenant); err != nil {
		return nil, err
	}

	return tenant, nil
}

// Get returns the tenant by id.
func (s *TenantService) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	if !domain.IsValidTenantID(id) {
		return nil, domain.ErrTenantNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// GetByName returns the tenant by its unique name.
func (s *TenantService) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return s.repo.GetByName(ctx, name)
}

// List returns all tenants.
func (s *TenantService) List(ctx context.Context) ([]*domain.Tenant, error) {
	return s.repo.List(ctx)
}

func newTenantID() (string, error) {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
