package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/counsel-labs/lexrag/internal/api"
	"github.com/counsel-labs/lexrag/internal/api/middleware"
	"github.com/counsel-labs/lexrag/internal/domain"
)

type UsageReporter interface {
	MonthlySummary(ctx context.Context, tenant *domain.Tenant, year, month int) (*domain.MonthlySummary, error)
	DailySummary(ctx context.Context, tenant *domain.Tenant, year, month int) ([]domain.DailyUsage, error)
	MonthToDateTotals(ctx context.Context, tenant *domain.Tenant) (float64, int, error)
	ListPage(ctx context.Context, tenant *domain.Tenant, cursor string, limit int) ([]*domain.UsageRecord, string, error)
	Reset(ctx context.Context, tenant *domain.Tenant) error
}

type QuotaAdmin interface {
	GetSettings(ctx context.Context, tenant *domain.Tenant) (*domain.QuotaSettings, error)
	UpdateSettings(ctx context.Context, tenant *domain.Tenant, settings *domain.QuotaSettings) error
}

type AdminHandler struct {
	usage UsageReporter
	quota QuotaAdmin
}

func NewAdminHandler(usage UsageReporter, quota QuotaAdmin) *AdminHandler {
	return &AdminHandler{
		usage: usage,
		quota: quota,
	}
}

type ModelUsageResponse struct {
	Model       string  `json:"model"`
	QueryCount  int     `json:"query_count"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

type MonthlySummaryResponse struct {
	Year         int                  `json:"year"`
	Month        int                  `json:"month"`
	QueryCount   int                  `json:"query_count"`
	InputTokens  int                  `json:"input_tokens"`
	OutputTokens int                  `json:"output_tokens"`
	TotalTokens  int                  `json:"total_tokens"`
	TotalCost    float64              `json:"total_cost"`
	ByModel      []ModelUsageResponse `json:"by_model"`
}

type DailyUsageResponse struct {
	Date       string  `json:"date"`
	QueryCount int     `json:"query_count"`
	Tokens     int     `json:"tokens"`
	Cost       float64 `json:"cost"`
}

type UsageRecordResponse struct {
	ID             string    `json:"id"`
	RecordedAt     time.Time `json:"recorded_at"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Query          string    `json:"query"`
	Model          string    `json:"model"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	TotalTokens    int       `json:"total_tokens"`
	Cost           float64   `json:"cost"`
}

type UsageResponse struct {
	Summary    *MonthlySummaryResponse `json:"summary"`
	Daily      []DailyUsageResponse    `json:"daily"`
	Records    []UsageRecordResponse   `json:"records"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

type QuotaSettingsResponse struct {
	MonthlyBudget        float64 `json:"monthly_budget"`
	MaxQueriesPerMonth   int     `json:"max_queries_per_month"`
	CostWarningThreshold float64 `json:"cost_warning_threshold"`
	CurrentMonthCost     float64 `json:"current_month_cost"`
	CurrentMonthQueries  int     `json:"current_month_queries"`
}

type QuotaUpdateRequest struct {
	MonthlyBudget        *float64 `json:"monthly_budget,omitempty"`
	MaxQueriesPerMonth   *int     `json:"max_queries_per_month,omitempty"`
	CostWarningThreshold *float64 `json:"cost_warning_threshold,omitempty"`
}

type DashboardResponse struct {
	Tenant        string                  `json:"tenant"`
	Quota         *QuotaSettingsResponse  `json:"quota"`
	Usage         *MonthlySummaryResponse `json:"usage"`
	PreviousUsage *MonthlySummaryResponse `json:"previous_usage"`
	ProjectedCost float64                 `json:"projected_cost"`
	Daily         []DailyUsageResponse    `json:"daily"`
}

// Usage handles GET /admin/usage. The year and month query parameters
// default to the current month.
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	year, month, ok := yearMonthParams(r)
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid year or month")
		return
	}

	summary, err := h.usage.MonthlySummary(r.Context(), tenant, year, month)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	daily, err := h.usage.DailySummary(r.Context(), tenant, year, month)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 500 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	records, nextCursor, err := h.usage.ListPage(r.Context(), tenant, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, UsageResponse{
		Summary:    monthlySummaryResponse(summary),
		Daily:      dailyResponses(daily),
		Records:    usageRecordResponses(records),
		NextCursor: nextCursor,
	})
}

// GetQuota handles GET /admin/quota.
func (h *AdminHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp, err := h.quotaResponse(r.Context(), tenant)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, resp)
}

// UpdateQuota handles POST /admin/quota. Omitted fields keep their
// current values.
func (h *AdminHandler) UpdateQuota(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req QuotaUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings, err := h.quota.GetSettings(r.Context(), tenant)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if req.MonthlyBudget != nil {
		settings.MonthlyBudget = *req.MonthlyBudget
	}
	if req.MaxQueriesPerMonth != nil {
		settings.MaxQueriesPerMonth = *req.MaxQueriesPerMonth
	}
	if req.CostWarningThreshold != nil {
		settings.CostWarningThreshold = *req.CostWarningThreshold
	}

	if err := h.quota.UpdateSettings(r.Context(), tenant, settings); err != nil {
		api.HandleError(w, err)
		return
	}

	resp, err := h.quotaResponse(r.Context(), tenant)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, resp)
}

// ResetUsage handles POST /admin/reset-usage. Irreversible.
func (h *AdminHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.usage.Reset(r.Context(), tenant); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Dashboard handles GET /admin/dashboard: quota, current and previous
// month usage, and an end-of-month cost projection in one view.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())
	if tenant == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := time.Now().UTC()
	summary, err := h.usage.MonthlySummary(r.Context(), tenant, now.Year(), int(now.Month()))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	previous, err := h.usage.MonthlySummary(r.Context(), tenant, prev.Year(), int(prev.Month()))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	daily, err := h.usage.DailySummary(r.Context(), tenant, now.Year(), int(now.Month()))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	quota, err := h.quotaResponse(r.Context(), tenant)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DashboardResponse{
		Tenant:        tenant.Name,
		Quota:         quota,
		Usage:         monthlySummaryResponse(summary),
		PreviousUsage: monthlySummaryResponse(previous),
		ProjectedCost: projectMonthCost(summary.TotalCost, now),
		Daily:         dailyResponses(daily),
	})
}

// projectMonthCost extrapolates month-to-date spend linearly to the end
// of the month.
func projectMonthCost(costToDate float64, now time.Time) float64 {
	daysInMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, -1).Day()
	return costToDate / float64(now.Day()) * float64(daysInMonth)
}

func (h *AdminHandler) quotaResponse(ctx context.Context, tenant *domain.Tenant) (*QuotaSettingsResponse, error) {
	settings, err := h.quota.GetSettings(ctx, tenant)
	if err != nil {
		return nil, err
	}
	cost, count, err := h.usage.MonthToDateTotals(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return &QuotaSettingsResponse{
		MonthlyBudget:        settings.MonthlyBudget,
		MaxQueriesPerMonth:   settings.MaxQueriesPerMonth,
		CostWarningThreshold: settings.CostWarningThreshold,
		CurrentMonthCost:     cost,
		CurrentMonthQueries:  count,
	}, nil
}

func yearMonthParams(r *http.Request) (int, int, bool) {
	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())

	if v := r.URL.Query().Get("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 2000 || parsed > 9999 {
			return 0, 0, false
		}
		year = parsed
	}
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 12 {
			return 0, 0, false
		}
		month = parsed
	}
	return year, month, true
}

func monthlySummaryResponse(summary *domain.MonthlySummary) *MonthlySummaryResponse {
	byModel := make([]ModelUsageResponse, len(summary.ByModel))
	for i, m := range summary.ByModel {
		byModel[i] = ModelUsageResponse{
			Model:       m.Model,
			QueryCount:  m.QueryCount,
			TotalTokens: m.TotalTokens,
			TotalCost:   m.TotalCost,
		}
	}
	return &MonthlySummaryResponse{
		Year:         summary.Year,
		Month:        summary.Month,
		QueryCount:   summary.QueryCount,
		InputTokens:  summary.InputTokens,
		OutputTokens: summary.OutputTokens,
		TotalTokens:  summary.TotalTokens,
		TotalCost:    summary.TotalCost,
		ByModel:      byModel,
	}
}

func usageRecordResponses(records []*domain.UsageRecord) []UsageRecordResponse {
	responses := make([]UsageRecordResponse, len(records))
	for i, rec := range records {
		responses[i] = UsageRecordResponse{
			ID:             rec.ID,
			RecordedAt:     rec.RecordedAt,
			ConversationID: rec.ConversationID,
			Query:          rec.Query,
			Model:          rec.Model,
			InputTokens:    rec.InputTokens,
			OutputTokens:   rec.OutputTokens,
			TotalTokens:    rec.TotalTokens,
			Cost:           rec.Cost,
		}
	}
	return responses
}

func dailyResponses(daily []domain.DailyUsage) []DailyUsageResponse {
	responses := make([]DailyUsageResponse, len(daily))
	for i, d := range daily {
		responses[i] = DailyUsageResponse{
			Date:       d.Date,
			QueryCount: d.QueryCount,
			Tokens:     d.Tokens,
			Cost:       d.Cost,
		}
	}
	return responses
}
