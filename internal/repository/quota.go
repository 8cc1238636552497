package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuotaRepository stores the per-tenant quota settings singleton row in
// the tenant's schema. Reads happen on every RAG request; writes only
// through the admin surface.
type QuotaRepository struct {
	pool     *pgxpool.Pool
	defaults domain.QuotaSettings

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQuotaRepository seeds every new tenant's settings row from defaults.
func NewQuotaRepository(pool *pgxpool.Pool, defaults domain.QuotaSettings) *QuotaRepository {
	return &QuotaRepository{
		pool:     pool,
		defaults: defaults,
		ensured:  make(map[string]bool),
	}
}

func quotaTable(t *domain.Tenant) string {
	return pgx.Identifier{t.SchemaName(), "quota_settings"}.Sanitize()
}

func (r *QuotaRepository) ensure(ctx context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	if r.ensured[tenant.ID] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	schema := pgx.Identifier{tenant.SchemaName()}.Sanitize()
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			singleton bool PRIMARY KEY DEFAULT true CHECK (singleton),
			monthly_budget numeric(12, 2) NOT NULL,
			max_queries_per_month int NOT NULL,
			cost_warning_threshold numeric(12, 4) NOT NULL,
			updated_at timestamptz NOT NULL
		)`,
		quotaTable(tenant),
	)); err != nil {
		return err
	}

	if _, err := r.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (singleton, monthly_budget, max_queries_per_month, cost_warning_threshold, updated_at)
		 VALUES (true, $1, $2, $3, $4) ON CONFLICT (singleton) DO NOTHING`,
		quotaTable(tenant),
	), r.defaults.MonthlyBudget, r.defaults.MaxQueriesPerMonth, r.defaults.CostWarningThreshold, time.Now().UTC()); err != nil {
		return err
	}

	r.mu.Lock()
	r.ensured[tenant.ID] = true
	r.mu.Unlock()
	return nil
}

func (r *QuotaRepository) Get(ctx context.Context, tenant *domain.Tenant) (*domain.QuotaSettings, error) {
	if err := r.ensure(ctx, tenant); err != nil {
		return nil, err
	}

	var settings domain.QuotaSettings
	err := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT monthly_budget, max_queries_per_month, cost_warning_threshold, updated_at FROM %s`,
		quotaTable(tenant),
	)).Scan(&settings.MonthlyBudget, &settings.MaxQueriesPerMonth, &settings.CostWarningThreshold, &settings.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *QuotaRepository) Update(ctx context.Context, tenant *domain.Tenant, settings *domain.QuotaSettings) error {
	if err := domain.ValidateQuotaSettings(settings); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid quota settings", err)
	}
	if err := r.ensure(ctx, tenant); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET monthly_budget = $1, max_queries_per_month = $2, cost_warning_threshold = $3, updated_at = $4`,
		quotaTable(tenant),
	), settings.MonthlyBudget, settings.MaxQueriesPerMonth, settings.CostWarningThreshold, time.Now().UTC())
	return err
}
