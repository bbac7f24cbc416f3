package generation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vnmchuo/tryon-gateway/internal/ledger"
)

// AdminHandler provisions tenants and changes plans. Routes mounted under
// it must be guarded by auth.RequireAdminToken.
type AdminHandler struct {
	ledger ledger.Ledger
	logger zerolog.Logger
	now    func() time.Time
}

func NewAdminHandler(l ledger.Ledger, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{ledger: l, logger: logger, now: time.Now}
}

type createTenantRequest struct {
	TenantID string `json:"tenant_id"`
	ShopName string `json:"shop_name"`
	Plan     string `json:"plan"`
}

func (h *AdminHandler) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
		return
	}

	plan, err := ledger.ParsePlan(req.Plan)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	quota := plan.DefaultQuota()
	now := h.now().UTC()
	acct := &ledger.QuotaAccount{
		TenantID:     req.TenantID,
		ShopName:     req.ShopName,
		MonthlyQuota: quota,
		Remaining:    quota,
		PlanRenewsAt: now.AddDate(0, 1, 0),
	}
	if err := h.ledger.CreateAccount(r.Context(), acct); err != nil {
		if errors.Is(err, ledger.ErrTenantExists) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "tenant already exists"})
			return
		}
		h.logger.Error().Err(err).Str("tenant_id", req.TenantID).Msg("failed to create tenant")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	h.logger.Info().
		Str("tenant_id", req.TenantID).
		Str("plan", string(plan)).
		Int64("monthly_quota", quota).
		Msg("tenant created")

	writeJSON(w, http.StatusCreated, acct)
}

type changePlanRequest struct {
	Plan string `json:"plan"`
}

func (h *AdminHandler) HandleChangePlan(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	var req changePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	plan, err := ledger.ParsePlan(req.Plan)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.ledger.ResetPeriod(r.Context(), tenantID, plan.DefaultQuota()); err != nil {
		if errors.Is(err, ledger.ErrTenantNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
			return
		}
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to change plan")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	acct, err := h.ledger.Account(r.Context(), tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	h.logger.Info().
		Str("tenant_id", tenantID).
		Str("plan", string(plan)).
		Msg("plan changed")

	writeJSON(w, http.StatusOK, acct)
}
