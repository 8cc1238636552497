package service

import (
	"context"
	"testing"
	"time"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTenantRepository is a mock implementation of TenantRepository
type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

func (m *MockTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantRepository) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Tenant), args.Error(1)
}

// MockAPIKeyRepository is a mock implementation of APIKeyRepository
type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.APIKey, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestAuthService_CreateAPIKey_ReturnsValidToken(t *testing.T) {
	ctx := context.Background()
	tenantRepo := new(MockTenantRepository)
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(tenantRepo, keyRepo, nil)

	tenant := testTenant()
	tenantRepo.On("GetByID", ctx, tenant.ID).Return(tenant, nil)

	var created *domain.APIKey
	keyRepo.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.APIKey)
	}).Return(nil)

	token, err := svc.CreateAPIKey(ctx, tenant.ID, "ci key", false)

	require.NoError(t, err)
	assert.True(t, IsValidAPIToken(token))
	require.NotNil(t, created)
	assert.Equal(t, tenant.ID, created.TenantID)
	assert.Equal(t, "ci key", created.Name)
	assert.False(t, created.Admin)
	// Only the hash is stored, never the token itself.
	assert.NotEqual(t, token, created.KeyHash)
	assert.Equal(t, hashToken(token), created.KeyHash)
}

func TestAuthService_CreateAPIKey_AdminFlag(t *testing.T) {
	ctx := context.Background()
	tenantRepo := new(MockTenantRepository)
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(tenantRepo, keyRepo, nil)

	tenant := testTenant()
	tenantRepo.On("GetByID", ctx, tenant.ID).Return(tenant, nil)

	var created *domain.APIKey
	keyRepo.On("Create", ctx, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.APIKey)
	}).Return(nil)

	_, err := svc.CreateAPIKey(ctx, tenant.ID, "ops key", true)

	require.NoError(t, err)
	assert.True(t, created.Admin)
}

func TestAuthService_CreateAPIKey_UnknownTenant(t *testing.T) {
	ctx := context.Background()
	tenantRepo := new(MockTenantRepository)
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(tenantRepo, keyRepo, nil)

	tenantRepo.On("GetByID", ctx, "ffffffffffffffff").Return(nil, domain.ErrTenantNotFound)

	_, err := svc.CreateAPIKey(ctx, "ffffffffffffffff", "key", false)

	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	keyRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_CreateAPIKeyWithToken_RejectsMalformedToken(t *testing.T) {
	ctx := context.Background()
	svc := NewAuthService(new(MockTenantRepository), new(MockAPIKeyRepository), nil)

	for _, token := range []string{
		"",
		"lxr_short",
		"sk-0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		"lxr_zzzz0000000000000000000000000000000000000000000000000000000000zz",
	} {
		err := svc.CreateAPIKeyWithToken(ctx, "a1b2c3d4e5f60718", "key", token, false)
		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr, "token %q must be rejected", token)
		assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
	}
}

func TestAuthService_Authenticate_ResolvesTenant(t *testing.T) {
	ctx := context.Background()
	tenantRepo := new(MockTenantRepository)
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(tenantRepo, keyRepo, nil)

	tenant := testTenant()
	token := apiKeyPrefix + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	stored := &domain.APIKey{
		ID:        "key-1",
		TenantID:  tenant.ID,
		Name:      "ci key",
		KeyHash:   hashToken(token),
		CreatedAt: time.Now().UTC(),
	}

	keyRepo.On("GetByHash", ctx, hashToken(token)).Return(stored, nil)
	tenantRepo.On("GetByID", ctx, tenant.ID).Return(tenant, nil)

	gotTenant, gotKey, err := svc.Authenticate(ctx, token)

	require.NoError(t, err)
	assert.Equal(t, tenant.ID, gotTenant.ID)
	assert.Equal(t, "key-1", gotKey.ID)
}

func TestAuthService_ValidateAPIKey_UnknownTokenIsInvalid(t *testing.T) {
	ctx := context.Background()
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(new(MockTenantRepository), keyRepo, nil)

	token := apiKeyPrefix + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	keyRepo.On("GetByHash", ctx, mock.Anything).Return(nil, domain.ErrAPIKeyNotFound)

	_, err := svc.ValidateAPIKey(ctx, token)

	// Unknown keys are indistinguishable from malformed ones.
	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestAuthService_ValidateAPIKey_RevokedToken(t *testing.T) {
	ctx := context.Background()
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(new(MockTenantRepository), keyRepo, nil)

	token := apiKeyPrefix + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	revokedAt := time.Now().UTC().Add(-time.Hour)
	keyRepo.On("GetByHash", ctx, hashToken(token)).Return(&domain.APIKey{
		ID:        "key-1",
		TenantID:  "a1b2c3d4e5f60718",
		KeyHash:   hashToken(token),
		RevokedAt: &revokedAt,
	}, nil)

	_, err := svc.ValidateAPIKey(ctx, token)

	assert.ErrorIs(t, err, domain.ErrAPIKeyRevoked)
}

func TestIsValidAPIToken(t *testing.T) {
	valid := apiKeyPrefix + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	assert.True(t, IsValidAPIToken(valid))
	assert.False(t, IsValidAPIToken("key_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"))
	assert.False(t, IsValidAPIToken(apiKeyPrefix+"0123"))
	assert.False(t, IsValidAPIToken(""))
}
