package usage

import (
	"context"
	"sync"
	"time"
)

type periodKey struct {
	tenantID    string
	periodType  PeriodType
	periodStart time.Time
}

// MemoryStore keeps usage periods in process memory. Used by tests and by
// dev-mode runs where no database is available.
type MemoryStore struct {
	mu      sync.Mutex
	records map[periodKey]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[periodKey]*Record)}
}

func (s *MemoryStore) ApplyDelta(ctx context.Context, d Delta) error {
	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pt := range []PeriodType{PeriodDaily, PeriodMonthly} {
		key := periodKey{d.TenantID, pt, PeriodStart(at, pt)}
		rec, ok := s.records[key]
		if !ok {
			rec = &Record{
				TenantID:    d.TenantID,
				PeriodType:  pt,
				PeriodStart: key.periodStart,
			}
			s.records[key] = rec
		}
		rec.UsedRequests += d.Requests
		rec.QuotaSnapshot = d.QuotaSnapshot
		rec.UpdatedBy = d.UpdatedBy
		rec.UpdatedAt = at
	}
	return nil
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string, pt PeriodType, from, to time.Time) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for key, rec := range s.records {
		if key.tenantID != tenantID || key.periodType != pt {
			continue
		}
		if key.periodStart.Before(from) || key.periodStart.After(to) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}
