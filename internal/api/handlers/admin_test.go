package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUsageReporter is a mock implementation of UsageReporter
type MockUsageReporter struct {
	mock.Mock
}

func (m *MockUsageReporter) MonthlySummary(ctx context.Context, tenant *domain.Tenant, year, month int) (*domain.MonthlySummary, error) {
	args := m.Called(ctx, tenant, year, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MonthlySummary), args.Error(1)
}

func (m *MockUsageReporter) DailySummary(ctx context.Context, tenant *domain.Tenant, year, month int) ([]domain.DailyUsage, error) {
	args := m.Called(ctx, tenant, year, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DailyUsage), args.Error(1)
}

func (m *MockUsageReporter) MonthToDateTotals(ctx context.Context, tenant *domain.Tenant) (float64, int, error) {
	args := m.Called(ctx, tenant)
	return args.Get(0).(float64), args.Int(1), args.Error(2)
}

func (m *MockUsageReporter) ListPage(ctx context.Context, tenant *domain.Tenant, cursor string, limit int) ([]*domain.UsageRecord, string, error) {
	args := m.Called(ctx, tenant, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]*domain.UsageRecord), args.String(1), args.Error(2)
}

func (m *MockUsageReporter) Reset(ctx context.Context, tenant *domain.Tenant) error {
	args := m.Called(ctx, tenant)
	return args.Error(0)
}

// MockQuotaAdmin is a mock implementation of QuotaAdmin
type MockQuotaAdmin struct {
	mock.Mock
}

func (m *MockQuotaAdmin) GetSettings(ctx context.Context, tenant *domain.Tenant) (*domain.QuotaSettings, error) {
	args := m.Called(ctx, tenant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QuotaSettings), args.Error(1)
}

func (m *MockQuotaAdmin) UpdateSettings(ctx context.Context, tenant *domain.Tenant, settings *domain.QuotaSettings) error {
	args := m.Called(ctx, tenant, settings)
	return args.Error(0)
}

func TestAdminHandler_Usage(t *testing.T) {
	usage := new(MockUsageReporter)
	handler := NewAdminHandler(usage, new(MockQuotaAdmin))

	usage.On("MonthlySummary", mock.Anything, mock.Anything, 2026, 7).Return(&domain.MonthlySummary{
		Year: 2026, Month: 7, QueryCount: 12, TotalTokens: 4000, TotalCost: 1.5,
		ByModel: []domain.ModelUsage{{Model: "gpt-4-turbo", QueryCount: 12, TotalTokens: 4000, TotalCost: 1.5}},
	}, nil)
	usage.On("DailySummary", mock.Anything, mock.Anything, 2026, 7).Return([]domain.DailyUsage{
		{Date: "2026-07-01", QueryCount: 0},
		{Date: "2026-07-02", QueryCount: 12, Tokens: 4000, Cost: 1.5},
	}, nil)
	usage.On("ListPage", mock.Anything, mock.Anything, "", 50).Return([]*domain.UsageRecord{
		{ID: "rec-1", Query: "notice period", Model: "gpt-4-turbo", TotalTokens: 300, Cost: 0.12},
	}, "next-token", nil)

	req := authedRequest(t, http.MethodGet, "/admin/usage?year=2026&month=7", nil)
	rec := httptest.NewRecorder()
	handler.Usage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UsageResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 12, resp.Summary.QueryCount)
	require.Len(t, resp.Summary.ByModel, 1)
	assert.Equal(t, "gpt-4-turbo", resp.Summary.ByModel[0].Model)
	require.Len(t, resp.Daily, 2)
	assert.Equal(t, "2026-07-01", resp.Daily[0].Date)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "rec-1", resp.Records[0].ID)
	assert.Equal(t, "next-token", resp.NextCursor)
}

func TestAdminHandler_Usage_InvalidMonth(t *testing.T) {
	handler := NewAdminHandler(new(MockUsageReporter), new(MockQuotaAdmin))

	req := authedRequest(t, http.MethodGet, "/admin/usage?month=13", nil)
	rec := httptest.NewRecorder()
	handler.Usage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_GetQuota(t *testing.T) {
	usage := new(MockUsageReporter)
	quota := new(MockQuotaAdmin)
	handler := NewAdminHandler(usage, quota)

	quota.On("GetSettings", mock.Anything, mock.Anything).Return(&domain.QuotaSettings{
		MonthlyBudget:        30.0,
		MaxQueriesPerMonth:   100,
		CostWarningThreshold: 0.10,
	}, nil)
	usage.On("MonthToDateTotals", mock.Anything, mock.Anything).Return(12.5, 40, nil)

	req := authedRequest(t, http.MethodGet, "/admin/quota", nil)
	rec := httptest.NewRecorder()
	handler.GetQuota(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp QuotaSettingsResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 30.0, resp.MonthlyBudget)
	assert.Equal(t, 12.5, resp.CurrentMonthCost)
	assert.Equal(t, 40, resp.CurrentMonthQueries)
}

func TestAdminHandler_UpdateQuota_PartialUpdate(t *testing.T) {
	usage := new(MockUsageReporter)
	quota := new(MockQuotaAdmin)
	handler := NewAdminHandler(usage, quota)

	quota.On("GetSettings", mock.Anything, mock.Anything).Return(&domain.QuotaSettings{
		MonthlyBudget:        30.0,
		MaxQueriesPerMonth:   100,
		CostWarningThreshold: 0.10,
	}, nil)
	quota.On("UpdateSettings", mock.Anything, mock.Anything, mock.MatchedBy(func(s *domain.QuotaSettings) bool {
		// Only the budget changes; the untouched fields keep their values.
		return s.MonthlyBudget == 50.0 && s.MaxQueriesPerMonth == 100 && s.CostWarningThreshold == 0.10
	})).Return(nil)
	usage.On("MonthToDateTotals", mock.Anything, mock.Anything).Return(0.0, 0, nil)

	budget := 50.0
	req := authedRequest(t, http.MethodPost, "/admin/quota", QuotaUpdateRequest{MonthlyBudget: &budget})
	rec := httptest.NewRecorder()
	handler.UpdateQuota(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	quota.AssertExpectations(t)
}

func TestAdminHandler_ResetUsage(t *testing.T) {
	usage := new(MockUsageReporter)
	handler := NewAdminHandler(usage, new(MockQuotaAdmin))

	usage.On("Reset", mock.Anything, mock.Anything).Return(nil).Once()

	req := authedRequest(t, http.MethodPost, "/admin/reset-usage", nil)
	rec := httptest.NewRecorder()
	handler.ResetUsage(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	usage.AssertExpectations(t)
}

func TestAdminHandler_Dashboard(t *testing.T) {
	usage := new(MockUsageReporter)
	quota := new(MockQuotaAdmin)
	handler := NewAdminHandler(usage, quota)

	now := time.Now().UTC()
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	usage.On("MonthlySummary", mock.Anything, mock.Anything, now.Year(), int(now.Month())).
		Return(&domain.MonthlySummary{QueryCount: 3, TotalCost: 1.0}, nil)
	usage.On("MonthlySummary", mock.Anything, mock.Anything, prev.Year(), int(prev.Month())).
		Return(&domain.MonthlySummary{QueryCount: 9, TotalCost: 4.5}, nil)
	usage.On("DailySummary", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.DailyUsage{{Date: "2026-08-01"}}, nil)
	quota.On("GetSettings", mock.Anything, mock.Anything).
		Return(&domain.QuotaSettings{MonthlyBudget: 30.0}, nil)
	usage.On("MonthToDateTotals", mock.Anything, mock.Anything).Return(1.0, 3, nil)

	req := authedRequest(t, http.MethodGet, "/admin/dashboard", nil)
	rec := httptest.NewRecorder()
	handler.Dashboard(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DashboardResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "acme-legal", resp.Tenant)
	assert.Equal(t, 3, resp.Usage.QueryCount)
	assert.Equal(t, 9, resp.PreviousUsage.QueryCount)
	assert.GreaterOrEqual(t, resp.ProjectedCost, 1.0)
	assert.Equal(t, 30.0, resp.Quota.MonthlyBudget)
}

func TestAdminHandler_Unauthorized(t *testing.T) {
	handler := NewAdminHandler(new(MockUsageReporter), new(MockQuotaAdmin))

	req := httptest.NewRequest(http.MethodGet, "/admin/usage", nil)
	rec := httptest.NewRecorder()
	handler.Usage(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
