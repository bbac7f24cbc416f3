package usage

import (
	"context"
	"time"
)

type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodMonthly PeriodType = "monthly"
)

// PeriodStart truncates t to the start of its calendar bucket, in UTC.
func PeriodStart(t time.Time, pt PeriodType) time.Time {
	t = t.UTC()
	if pt == PeriodMonthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Record aggregates quota consumption for one tenant and calendar bucket.
// UsedRequests is a signed accumulator; refunds apply negative deltas.
// At most one record exists per (tenant, period_type, period_start), created
// lazily on first touch.
type Record struct {
	TenantID      string     `json:"tenant_id"`
	PeriodType    PeriodType `json:"period_type"`
	PeriodStart   time.Time  `json:"period_start"`
	UsedRequests  int64      `json:"used_requests"`
	QuotaSnapshot int64      `json:"quota_snapshot"`
	UpdatedBy     string     `json:"updated_by"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Delta is one ledger mutation fanned out to the daily and monthly buckets.
type Delta struct {
	TenantID      string
	Requests      int64 // +n on debit, -n on credit
	QuotaSnapshot int64 // remaining after the mutation
	UpdatedBy     string
	At            time.Time
}

// Recorder is the write side consumed by the quota ledger.
type Recorder interface {
	ApplyDelta(ctx context.Context, d Delta) error
}

type Store interface {
	Recorder
	ListByTenant(ctx context.Context, tenantID string, pt PeriodType, from, to time.Time) ([]*Record, error)
}
