package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Execer is the subset of DB satisfied by both a pool and a pgx.Tx, so the
// ledger can fold the period upsert into its debit/credit transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const upsertDeltaQuery = `
	INSERT INTO usage_periods (tenant_id, period_type, period_start, used_requests, quota_snapshot, updated_by, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (tenant_id, period_type, period_start)
	DO UPDATE SET
		used_requests  = usage_periods.used_requests + EXCLUDED.used_requests,
		quota_snapshot = EXCLUDED.quota_snapshot,
		updated_by     = EXCLUDED.updated_by,
		updated_at     = EXCLUDED.updated_at
`

// ApplyDeltaExec upserts the daily and monthly buckets for one mutation
// against any Execer (pool or open transaction).
func ApplyDeltaExec(ctx context.Context, db Execer, d Delta) error {
	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	for _, pt := range []PeriodType{PeriodDaily, PeriodMonthly} {
		_, err := db.Exec(ctx, upsertDeltaQuery,
			d.TenantID, string(pt), PeriodStart(at, pt),
			d.Requests, d.QuotaSnapshot, d.UpdatedBy, at,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert %s usage period: %w", pt, err)
		}
	}
	return nil
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ApplyDelta(ctx context.Context, d Delta) error {
	return ApplyDeltaExec(ctx, s.db, d)
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, pt PeriodType, from, to time.Time) ([]*Record, error) {
	query := `
		SELECT tenant_id, period_type, period_start, used_requests, quota_snapshot, updated_by, updated_at
		FROM usage_periods
		WHERE tenant_id = $1 AND period_type = $2 AND period_start BETWEEN $3 AND $4
		ORDER BY period_start DESC
	`
	rows, err := s.db.Query(ctx, query, tenantID, string(pt), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage periods: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		err := rows.Scan(
			&r.TenantID, &r.PeriodType, &r.PeriodStart,
			&r.UsedRequests, &r.QuotaSnapshot, &r.UpdatedBy, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage period: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage periods: %w", err)
	}

	return records, nil
}
