package service

import (
	"context"
	"fmt"

	"github.com/counsel-labs/lexrag/internal/domain"
)

// modelRate is the cost per 1,000 tokens for a model.
type modelRate struct {
	Input  float64
	Output float64
}

// modelCostPer1K carries the published per-model rates. Unknown models
// fall back to defaultRate rather than failing the estimate.
var modelCostPer1K = map[string]modelRate{
	"gpt-4-turbo":        {Input: 0.01, Output: 0.03},
	"gpt-4":              {Input: 0.03, Output: 0.06},
	"gpt-3.5-turbo":      {Input: 0.0005, Output: 0.0015},
	"gpt-3.5-turbo-1106": {Input: 0.001, Output: 0.002},
	"gpt-3.5-turbo-0613": {Input: 0.001, Output: 0.002},
}

var defaultRate = modelRate{Input: 0.002, Output: 0.002}

// Token estimation constants: a chars/4 heuristic plus a fixed
// per-message overhead, matching how chat models frame messages.
const (
	charsPerToken            = 4
	tokensPerMessageOverhead = 4
	tokensPerRequestOverhead = 3
)

// CostEstimate is a pre-request prediction of what a completion will cost.
type CostEstimate struct {
	Model         string
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
}

// QuotaSettingsRepository reads and writes the per-tenant quota singleton.
type QuotaSettingsRepository interface {
	Get(ctx context.Context, tenant *domain.Tenant) (*domain.QuotaSettings, error)
	Update(ctx context.Context, tenant *domain.Tenant, settings *domain.QuotaSettings) error
}

// UsageTotalsRepository supplies the month-to-date numbers quota
// enforcement compares against.
type UsageTotalsRepository interface {
	MonthToDateTotals(ctx context.Context, tenant *domain.Tenant) (float64, int, error)
}

// QuotaService gates expensive requests against the tenant's configured
// budget and query ceilings.
//
// CheckExceeded and the subsequent usage record are deliberately not one
// transaction: concurrent requests can all pass the check before any of
// them records usage, overshooting the budget transiently. That is
// accepted for this low-QPS admin-driven workload; do not add locking
// here without revisiting the deployment profile.
type QuotaService struct {
	quotaRepo QuotaSettingsRepository
	usageRepo UsageTotalsRepository
}

func NewQuotaService(quotaRepo QuotaSettingsRepository, usageRepo UsageTotalsRepository) *QuotaService {
	return &QuotaService{
		quotaRepo: quotaRepo,
		usageRepo: usageRepo,
	}
}

// CheckExceeded reports whether the tenant has exhausted its monthly
// budget or query allowance, with a reason naming the breached limit.
func (s *QuotaService) CheckExceeded(ctx context.Context, tenant *domain.Tenant) (bool, string, error) {
	settings, err := s.quotaRepo.Get(ctx, tenant)
	if err != nil {
		return false, "", err
	}

	cost, count, err := s.usageRepo.MonthToDateTotals(ctx, tenant)
	if err != nil {
		return false, "", err
	}

	if settings.MonthlyBudget > 0 && cost >= settings.MonthlyBudget {
		return true, fmt.Sprintf("Monthly budget of $%.2f exceeded ($%.2f used)", settings.MonthlyBudget, cost), nil
	}
	if settings.MaxQueriesPerMonth > 0 && count >= settings.MaxQueriesPerMonth {
		return true, fmt.Sprintf("Monthly query limit of %d exceeded (%d used)", settings.MaxQueriesPerMonth, count), nil
	}
	return false, "", nil
}

// GetSettings returns the tenant's quota configuration.
func (s *QuotaService) GetSettings(ctx context.Context, tenant *domain.Tenant) (*domain.QuotaSettings, error) {
	return s.quotaRepo.Get(ctx, tenant)
}

// UpdateSettings replaces the tenant's quota configuration.
func (s *QuotaService) UpdateSettings(ctx context.Context, tenant *domain.Tenant, settings *domain.QuotaSettings) error {
	return s.quotaRepo.Update(ctx, tenant, settings)
}

// EstimateCost predicts a completion's cost from the prompt messages and
// the output token ceiling, using the per-model rate table.
func (s *QuotaService) EstimateCost(messages []ChatMessage, model string, maxOutputTokens int) CostEstimate {
	inputTokens := tokensPerRequestOverhead
	for _, m := range messages {
		inputTokens += EstimateTokens(m.Content) + tokensPerMessageOverhead
	}

	rate := rateFor(model)
	cost := float64(inputTokens)/1000*rate.Input + float64(maxOutputTokens)/1000*rate.Output

	return CostEstimate{
		Model:         model,
		InputTokens:   inputTokens,
		OutputTokens:  maxOutputTokens,
		EstimatedCost: cost,
	}
}

// ComputeCost prices an actual completion from its token usage.
func ComputeCost(model string, inputTokens, outputTokens int) float64 {
	rate := rateFor(model)
	return float64(inputTokens)/1000*rate.Input + float64(outputTokens)/1000*rate.Output
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

func rateFor(model string) modelRate {
	if rate, ok := modelCostPer1K[model]; ok {
		return rate
	}
	return defaultRate
}
