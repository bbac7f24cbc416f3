package seeder

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnmchuo/tryon-gateway/internal/auth"
	"github.com/vnmchuo/tryon-gateway/internal/ledger"
)

// Demo credentials for local development. Never seeded outside dev mode.
const (
	TestAPIKey   = "test-api-key-12345"
	TestTenantID = "00000000-0000-0000-0000-000000000001"
)

// SeedDemoTenant creates a basic-plan tenant with a known API key so a
// fresh dev instance accepts requests immediately. Existing rows are left
// alone.
func SeedDemoTenant(ctx context.Context, l ledger.Ledger, keys auth.Store, logger zerolog.Logger) {
	quota := ledger.PlanBasic.DefaultQuota()
	now := time.Now().UTC()
	acct := &ledger.QuotaAccount{
		TenantID:     TestTenantID,
		ShopName:     "Demo Shop",
		MonthlyQuota: quota,
		Remaining:    quota,
		PlanRenewsAt: now.AddDate(0, 1, 0),
	}
	if err := l.CreateAccount(ctx, acct); err != nil {
		if !errors.Is(err, ledger.ErrTenantExists) {
			logger.Warn().Err(err).Msg("seeder: failed to create demo tenant")
			return
		}
		logger.Debug().Msg("seeder: demo tenant already exists")
	}

	apiKey := &auth.APIKey{
		TenantID: TestTenantID,
		KeyHash:  auth.HashKey(TestAPIKey),
		Label:    "dev seed key",
		Active:   true,
	}
	if err := keys.Create(ctx, apiKey); err != nil {
		logger.Debug().Err(err).Msg("seeder: demo API key may already exist, skipping")
		return
	}

	logger.Info().
		Str("tenant_id", TestTenantID).
		Str("api_key", TestAPIKey).
		Int64("monthly_quota", quota).
		Msg("seeder: demo tenant ready")
}
