package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vnmchuo/tryon-gateway/internal/usage"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Ledger {
	return &PostgresStore{db: db}
}

// The WHERE clause makes check-and-decrement one indivisible statement; two
// concurrent debits can never both observe the same sufficient balance.
const debitQuery = `
	UPDATE quota_accounts
	SET remaining = remaining - $2, updated_at = now()
	WHERE tenant_id = $1 AND remaining >= $2
	RETURNING remaining
`

const creditQuery = `
	UPDATE quota_accounts
	SET remaining = LEAST(remaining + $2, monthly_quota), updated_at = now()
	WHERE tenant_id = $1
	RETURNING remaining
`

func (s *PostgresStore) TryDebit(ctx context.Context, tenantID string, amount int64) (DebitResult, error) {
	if amount <= 0 {
		return DebitResult{}, ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return DebitResult{}, fmt.Errorf("failed to begin debit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var remaining int64
	err = tx.QueryRow(ctx, debitQuery, tenantID, amount).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: tenant missing or balance too low.
		err = tx.QueryRow(ctx, `SELECT remaining FROM quota_accounts WHERE tenant_id = $1`, tenantID).Scan(&remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			return DebitResult{}, ErrTenantNotFound
		}
		if err != nil {
			return DebitResult{}, fmt.Errorf("failed to read remaining quota: %w", err)
		}
		return DebitResult{OK: false, Remaining: remaining}, nil
	}
	if err != nil {
		return DebitResult{}, fmt.Errorf("failed to debit quota: %w", err)
	}

	delta := usage.Delta{
		TenantID:      tenantID,
		Requests:      amount,
		QuotaSnapshot: remaining,
		UpdatedBy:     "ledger.debit",
		At:            time.Now().UTC(),
	}
	if err := usage.ApplyDeltaExec(ctx, tx, delta); err != nil {
		return DebitResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DebitResult{}, fmt.Errorf("failed to commit debit: %w", err)
	}
	return DebitResult{OK: true, Remaining: remaining}, nil
}

func (s *PostgresStore) Credit(ctx context.Context, tenantID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin credit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var remaining int64
	err = tx.QueryRow(ctx, creditQuery, tenantID, amount).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrTenantNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit quota: %w", err)
	}

	delta := usage.Delta{
		TenantID:      tenantID,
		Requests:      -amount,
		QuotaSnapshot: remaining,
		UpdatedBy:     "ledger.credit",
		At:            time.Now().UTC(),
	}
	if err := usage.ApplyDeltaExec(ctx, tx, delta); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit credit: %w", err)
	}
	return remaining, nil
}

func (s *PostgresStore) ResetPeriod(ctx context.Context, tenantID string, newQuota int64) error {
	if newQuota < 0 {
		return ErrInvalidAmount
	}

	query := `
		UPDATE quota_accounts
		SET remaining = $2, monthly_quota = $2, plan_renews_at = $3, updated_at = now()
		WHERE tenant_id = $1
	`
	tag, err := s.db.Exec(ctx, query, tenantID, newQuota, time.Now().UTC().AddDate(0, 1, 0))
	if err != nil {
		return fmt.Errorf("failed to reset period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *PostgresStore) Account(ctx context.Context, tenantID string) (*QuotaAccount, error) {
	query := `
		SELECT tenant_id, shop_name, monthly_quota, remaining, plan_renews_at, created_at, updated_at
		FROM quota_accounts
		WHERE tenant_id = $1
	`
	var a QuotaAccount
	err := s.db.QueryRow(ctx, query, tenantID).Scan(
		&a.TenantID, &a.ShopName, &a.MonthlyQuota, &a.Remaining,
		&a.PlanRenewsAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quota account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acct *QuotaAccount) error {
	if acct.MonthlyQuota < 0 || acct.Remaining < 0 || acct.Remaining > acct.MonthlyQuota {
		return ErrInvalidAmount
	}
	if acct.PlanRenewsAt.IsZero() {
		acct.PlanRenewsAt = time.Now().UTC().AddDate(0, 1, 0)
	}

	query := `
		INSERT INTO quota_accounts (tenant_id, shop_name, monthly_quota, remaining, plan_renews_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query,
		acct.TenantID, acct.ShopName, acct.MonthlyQuota, acct.Remaining, acct.PlanRenewsAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quota account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantExists
	}
	return nil
}
