package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrTenantExists   = errors.New("tenant already exists")
)

// QuotaAccount is the per-tenant remaining-request counter. It is mutated
// only through TryDebit/Credit/ResetPeriod; remaining stays within
// [0, monthly_quota] under any interleaving of calls.
type QuotaAccount struct {
	TenantID     string    `json:"tenant_id"`
	ShopName     string    `json:"shop_name"`
	MonthlyQuota int64     `json:"monthly_quota"`
	Remaining    int64     `json:"remaining"`
	PlanRenewsAt time.Time `json:"plan_renews_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type DebitResult struct {
	OK        bool
	Remaining int64
}

type Ledger interface {
	// TryDebit checks remaining >= amount and decrements in one atomic
	// step. A separate check-then-decrement would let two concurrent
	// requests both pass against the same stale remaining.
	TryDebit(ctx context.Context, tenantID string, amount int64) (DebitResult, error)

	// Credit increments remaining, capped at the monthly quota. Crediting
	// more than was debited never pushes remaining above the cap.
	Credit(ctx context.Context, tenantID string, amount int64) (int64, error)

	// ResetPeriod sets remaining and the cap to newQuota and advances the
	// renewal date one month. Used on plan change/renewal, never by the
	// request path.
	ResetPeriod(ctx context.Context, tenantID string, newQuota int64) error

	Account(ctx context.Context, tenantID string) (*QuotaAccount, error)
	CreateAccount(ctx context.Context, acct *QuotaAccount) error
}
