package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/pagination"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRecordPage is one page of ledger rows for the admin usage view.
type UsageRecordPage struct {
	Items      []*domain.UsageRecord
	NextCursor string
	HasMore    bool
}

// UsageRepository is the tenant-scoped usage ledger: an append-only table
// in the tenant's own schema. Rows are written once per completed
// generative call and only ever removed by the admin reset.
type UsageRepository struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	ensured map[string]bool
}

func NewUsageRepository(pool *pgxpool.Pool) *UsageRepository {
	return &UsageRepository{
		pool:    pool,
		ensured: make(map[string]bool),
	}
}

func usageTable(t *domain.Tenant) string {
	return pgx.Identifier{t.SchemaName(), "usage_records"}.Sanitize()
}

func (r *UsageRepository) ensure(ctx context.Context, tenant *domain.Tenant) error {
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
			id uuid PRIMARY KEY,
			recorded_at timestamptz NOT NULL,
			conversation_id text,
			query text NOT NULL,
			model text NOT NULL,
			input_tokens int NOT NULL,
			output_tokens int NOT NULL,
			total_tokens int NOT NULL,
			cost numeric(12, 6) NOT NULL
		)`,
		usageTable(tenant),
	)); err != nil {
		return err
	}

	r.mu.Lock()
	r.ensured[tenant.ID] = true
	r.mu.Unlock()
	return nil
}

// Record appends one ledger row and returns its id.
func (r *UsageRepository) Record(ctx context.Context, tenant *domain.Tenant, rec *domain.UsageRecord) (string, error) {
	if err := r.ensure(ctx, tenant); err != nil {
		return "", err
	}

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, recorded_at, conversation_id, query, model, input_tokens, output_tokens, total_tokens, cost)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		usageTable(tenant),
	),
		id, recordedAt, nullableString(rec.ConversationID), rec.Query, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.Cost,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func monthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// MonthToDateTotals returns the current month's total cost and query
// count, the inputs to quota enforcement.
func (r *UsageRepository) MonthToDateTotals(ctx context.Context, tenant *domain.Tenant) (float64, int, error) {
	if err := r.ensure(ctx, tenant); err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	start, end := monthBounds(now.Year(), int(now.Month()))

	var (
		cost  float64
		count int
	)
	err := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COALESCE(SUM(cost), 0), COUNT(*) FROM %s WHERE recorded_at >= $1 AND recorded_at < $2`,
		usageTable(tenant),
	), start, end).Scan(&cost, &count)
	if err != nil {
		return 0, 0, err
	}
	return cost, count, nil
}

// MonthlySummary aggregates the ledger for one calendar month with a
// per-model breakdown.
func (r *UsageRepository) MonthlySummary(ctx context.Context, tenant *domain.Tenant, year, month int) (*domain.MonthlySummary, error) {
	if err := r.ensure(ctx, tenant); err != nil {
		return nil, err
	}

	start, end := monthBounds(year, month)

	summary := &domain.MonthlySummary{Year: year, Month: month}
	err := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		 FROM %s WHERE recorded_at >= $1 AND recorded_at < $2`,
		usageTable(tenant),
	), start, end).Scan(
		&summary.QueryCount, &summary.InputTokens, &summary.OutputTokens,
		&summary.TotalTokens, &summary.TotalCost,
	)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT model, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		 FROM %s WHERE recorded_at >= $1 AND recorded_at < $2
		 GROUP BY model ORDER BY SUM(cost) DESC`,
		usageTable(tenant),
	), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var usage domain.ModelUsage
		if err := rows.Scan(&usage.Model, &usage.QueryCount, &usage.TotalTokens, &usage.TotalCost); err != nil {
			return nil, err
		}
		summary.ByModel = append(summary.ByModel, usage)
	}
	return summary, rows.Err()
}

// DailySummary returns one entry per calendar day of the month, zero
// filled, up to today for the current month or the whole month for past
// months. Days are never omitted so usage charts stay contiguous.
func (r *UsageRepository) DailySummary(ctx context.Context, tenant *domain.Tenant, year, month int) ([]domain.DailyUsage, error) {
	if err := r.ensure(ctx, tenant); err != nil {
		return nil, err
	}

	start, end := monthBounds(year, month)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT date_trunc('day', recorded_at)::date, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		 FROM %s WHERE recorded_at >= $1 AND recorded_at < $2
		 GROUP BY 1 ORDER BY 1`,
		usageTable(tenant),
	), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDay := make(map[string]domain.DailyUsage)
	for rows.Next() {
		var (
			day   time.Time
			usage domain.DailyUsage
		)
		if err := rows.Scan(&day, &usage.QueryCount, &usage.Tokens, &usage.Cost); err != nil {
			return nil, err
		}
		usage.Date = day.Format("2006-01-02")
		byDay[usage.Date] = usage
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fillDailyGaps(byDay, start, end, time.Now().UTC()), nil
}

// fillDailyGaps expands sparse per-day aggregates to a contiguous series.
func fillDailyGaps(byDay map[string]domain.DailyUsage, start, end, now time.Time) []domain.DailyUsage {
	last := end
	if now.Before(end) {
		// Current month: stop at today.
		last = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}

	var days []domain.DailyUsage
	for day := start; day.Before(last); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		if usage, ok := byDay[date]; ok {
			days = append(days, usage)
		} else {
			days = append(days, domain.DailyUsage{Date: date})
		}
	}
	return days
}

// List returns ledger rows newest first with cursor pagination.
func (r *UsageRepository) List(ctx context.Context, tenant *domain.Tenant, cursor *pagination.Cursor, limit int) (*UsageRecordPage, error) {
	if err := r.ensure(ctx, tenant); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if cursor != nil {
		rows, err = r.pool.Query(ctx, fmt.Sprintf(
			`SELECT id, recorded_at, COALESCE(conversation_id, ''), query, model, input_tokens, output_tokens, total_tokens, cost
			 FROM %s
			 WHERE (recorded_at, id::text) < ($1, $2)
			 ORDER BY recorded_at DESC, id DESC
			 LIMIT %d`,
			usageTable(tenant), limit+1,
		), cursor.Timestamp, cursor.LastID)
	} else {
		rows, err = r.pool.Query(ctx, fmt.Sprintf(
			`SELECT id, recorded_at, COALESCE(conversation_id, ''), query, model, input_tokens, output_tokens, total_tokens, cost
			 FROM %s
			 ORDER BY recorded_at DESC, id DESC
			 LIMIT %d`,
			usageTable(tenant), limit+1,
		))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.UsageRecord
	for rows.Next() {
		var rec domain.UsageRecord
		if err := rows.Scan(&rec.ID, &rec.RecordedAt, &rec.ConversationID, &rec.Query, &rec.Model,
			&rec.InputTokens, &rec.OutputTokens, &rec.TotalTokens, &rec.Cost); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &UsageRecordPage{Items: records}
	if len(records) > limit {
		page.Items = records[:limit]
		page.HasMore = true
		lastItem := page.Items[len(page.Items)-1]
		page.NextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.RecordedAt)
	}
	return page, nil
}

// ListPage is List with an opaque cursor string, for the admin surface.
func (r *UsageRepository) ListPage(ctx context.Context, tenant *domain.Tenant, cursor string, limit int) ([]*domain.UsageRecord, string, error) {
	var decoded *pagination.Cursor
	if cursor != "" {
		c, err := pagination.DecodeCursor(cursor)
		if err != nil {
			return nil, "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
		}
		decoded = c
	}

	page, err := r.List(ctx, tenant, decoded, limit)
	if err != nil {
		return nil, "", err
	}
	return page.Items, page.NextCursor, nil
}

// Reset deletes every ledger row for the tenant. Irreversible; only
// reachable through the admin surface.
func (r *UsageRepository) Reset(ctx context.Context, tenant *domain.Tenant) error {
	if err := r.ensure(ctx, tenant); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, usageTable(tenant)))
	return err
}
