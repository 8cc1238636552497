package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPinger is a mock implementation of Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockChunkCounter is a mock implementation of ChunkCounter
type MockChunkCounter struct {
	mock.Mock
}

func (m *MockChunkCounter) Count(ctx context.Context, tenant *domain.Tenant) (int, error) {
	args := m.Called(ctx, tenant)
	return args.Int(0), args.Error(1)
}

func (m *MockChunkCounter) CountPendingEmbeddings(ctx context.Context, tenant *domain.Tenant) (int, error) {
	args := m.Called(ctx, tenant)
	return args.Int(0), args.Error(1)
}

func TestHealthHandler_Healthy(t *testing.T) {
	db := new(MockPinger)
	chunks := new(MockChunkCounter)
	handler := NewHealthHandler(db, chunks)

	db.On("Ping", mock.Anything).Return(nil)
	chunks.On("Count", mock.Anything, mock.Anything).Return(42, nil)
	chunks.On("CountPendingEmbeddings", mock.Anything, mock.Anything).Return(3, nil)

	req := authedRequest(t, http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"chunk_count":42`)
	assert.Contains(t, rec.Body.String(), `"pending_embeddings":3`)
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	db := new(MockPinger)
	handler := NewHealthHandler(db, new(MockChunkCounter))

	db.On("Ping", mock.Anything).Return(errors.New("connection refused"))

	req := authedRequest(t, http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.Health(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unavailable"`)
}
