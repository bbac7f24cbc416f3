package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/vnmchuo/tryon-gateway/internal/usage"
)

// MemoryStore is an in-process ledger used by tests and dev-mode runs.
// One mutex serializes check-and-decrement, matching the atomicity the
// Postgres store gets from its conditional UPDATE.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*QuotaAccount
	recorder usage.Recorder // optional
	now      func() time.Time
}

func NewMemoryStore(recorder usage.Recorder) *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*QuotaAccount),
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) TryDebit(ctx context.Context, tenantID string, amount int64) (DebitResult, error) {
	if amount <= 0 {
		return DebitResult{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[tenantID]
	if !ok {
		return DebitResult{}, ErrTenantNotFound
	}
	if acct.Remaining < amount {
		return DebitResult{OK: false, Remaining: acct.Remaining}, nil
	}

	acct.Remaining -= amount
	acct.UpdatedAt = s.now()
	if err := s.recordDelta(ctx, tenantID, amount, acct.Remaining, "ledger.debit"); err != nil {
		return DebitResult{}, err
	}
	return DebitResult{OK: true, Remaining: acct.Remaining}, nil
}

func (s *MemoryStore) Credit(ctx context.Context, tenantID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[tenantID]
	if !ok {
		return 0, ErrTenantNotFound
	}

	acct.Remaining += amount
	if acct.Remaining > acct.MonthlyQuota {
		acct.Remaining = acct.MonthlyQuota
	}
	acct.UpdatedAt = s.now()
	if err := s.recordDelta(ctx, tenantID, -amount, acct.Remaining, "ledger.credit"); err != nil {
		return 0, err
	}
	return acct.Remaining, nil
}

func (s *MemoryStore) ResetPeriod(ctx context.Context, tenantID string, newQuota int64) error {
	if newQuota < 0 {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[tenantID]
	if !ok {
		return ErrTenantNotFound
	}

	acct.MonthlyQuota = newQuota
	acct.Remaining = newQuota
	acct.PlanRenewsAt = s.now().AddDate(0, 1, 0)
	acct.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Account(ctx context.Context, tenantID string) (*QuotaAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) CreateAccount(ctx context.Context, acct *QuotaAccount) error {
	if acct.MonthlyQuota < 0 || acct.Remaining < 0 || acct.Remaining > acct.MonthlyQuota {
		return ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acct.TenantID]; ok {
		return ErrTenantExists
	}

	cp := *acct
	now := s.now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	if cp.PlanRenewsAt.IsZero() {
		cp.PlanRenewsAt = now.AddDate(0, 1, 0)
	}
	s.accounts[acct.TenantID] = &cp
	return nil
}

func (s *MemoryStore) recordDelta(ctx context.Context, tenantID string, requests, remaining int64, by string) error {
	if s.recorder == nil {
		return nil
	}
	return s.recorder.ApplyDelta(ctx, usage.Delta{
		TenantID:      tenantID,
		Requests:      requests,
		QuotaSnapshot: remaining,
		UpdatedBy:     by,
		At:            s.now(),
	})
}
