package domain

import (
	"fmt"
	"time"
)

// UsageRecord is one row of the append-only usage ledger, created once
// per completed generative call. Records are never mutated; the only
// delete path is the admin-gated full reset.
type UsageRecord struct {
	ID             string
	RecordedAt     time.Time
	ConversationID string
	Query          string
	Model          string
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	Cost           float64
}

// ModelUsage is a per-model breakdown line within a monthly summary.
type ModelUsage struct {
	Model       string
	QueryCount  int
	TotalTokens int
	TotalCost   float64
}

// MonthlySummary aggregates a tenant's ledger for one calendar month.
type MonthlySummary struct {
	Year         int
	Month        int
	QueryCount   int
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	TotalCost    float64
	ByModel      []ModelUsage
}

// DailyUsage is one calendar day within a month. Days with no activity
// are present with zero values so charts stay contiguous.
type DailyUsage struct {
	Date       string
	QueryCount int
	Tokens     int
	Cost       float64
}

// QuotaSettings is the per-tenant quota configuration, a singleton row
// read on every RAG request and mutated only through the admin surface.
type QuotaSettings struct {
	MonthlyBudget        float64
	MaxQueriesPerMonth   int
	CostWarningThreshold float64
	UpdatedAt            time.Time
}

// Default quota values applied when a tenant is provisioned.
const (
	DefaultMonthlyBudget        = 30.0
	DefaultMaxQueriesPerMonth   = 100
	DefaultCostWarningThreshold = 0.10
)

// DefaultQuotaSettings returns the provisioning-time quota defaults.
func DefaultQuotaSettings() QuotaSettings {
	return QuotaSettings{
		MonthlyBudget:        DefaultMonthlyBudget,
		MaxQueriesPerMonth:   DefaultMaxQueriesPerMonth,
		CostWarningThreshold: DefaultCostWarningThreshold,
	}
}

// ValidateQuotaSettings validates a QuotaSettings update.
func ValidateQuotaSettings(q *QuotaSettings) error {
	if q == nil {
		return fmt.Errorf("quota settings cannot be nil")
	}

	if q.MonthlyBudget < 0 {
		return fmt.Errorf("monthly budget cannot be negative")
	}

	if q.MaxQueriesPerMonth < 0 {
		return fmt.Errorf("max queries per month cannot be negative")
	}

	if q.CostWarningThreshold < 0 {
		return fmt.Errorf("cost warning threshold cannot be negative")
	}

	return nil
}
