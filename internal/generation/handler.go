package generation

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vnmchuo/tryon-gateway/internal/auth"
	"github.com/vnmchuo/tryon-gateway/internal/classify"
	"github.com/vnmchuo/tryon-gateway/internal/ledger"
	"github.com/vnmchuo/tryon-gateway/internal/request"
	"github.com/vnmchuo/tryon-gateway/internal/usage"
)

// maxUploadBytes bounds the two uploaded images plus form overhead.
const maxUploadBytes = 20 << 20

type Handler struct {
	orch     *Orchestrator
	ledger   ledger.Ledger
	usage    usage.Store
	requests request.Store
	logger   zerolog.Logger
}

func NewHandler(orch *Orchestrator, l ledger.Ledger, u usage.Store, r request.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		orch:     orch,
		ledger:   l,
		usage:    u,
		requests: r,
		logger:   logger,
	}
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	// The form may carry a tenant_id; it must match the authenticated key.
	if formTenant := r.FormValue("tenant_id"); formTenant != "" && formTenant != tenantID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "tenant mismatch"})
		return
	}

	personImage, err := formImage(r, "person_image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "person_image is required"})
		return
	}
	productImage, err := formImage(r, "product_image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product_image is required"})
		return
	}

	out, err := h.orch.Handle(ctx, Input{
		TenantID:          tenantID,
		RequesterID:       auth.GetAPIKeyID(ctx),
		CustomerReference: r.FormValue("customer_reference"),
		PersonImage:       personImage,
		ProductImage:      productImage,
	})
	if err != nil {
		h.writeGenerateError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="generated_image.png"`)
	w.Header().Set("X-Generation-ID", out.RequestID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Image)
}

// writeGenerateError maps orchestrator errors to the caller-facing status
// and a generic message. Raw collaborator diagnostics stay audit-only.
func (h *Handler) writeGenerateError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrTenantNotFound) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "unknown tenant"})
		return
	}
	if errors.Is(err, ErrQuotaExceeded) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "quota exceeded"})
		return
	}

	var classified *classify.Classified
	if errors.As(err, &classified) {
		writeJSON(w, classified.HTTPStatus(), map[string]string{"error": classified.Message})
		return
	}

	h.logger.Error().Err(err).Msg("unclassified generation error")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (h *Handler) HandleGetGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	rec, err := h.requests.Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, request.ErrNotFound) || (err == nil && rec.TenantID != tenantID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "generation request not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleListGenerations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	records, err := h.requests.ListByTenant(ctx, tenantID, 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if records == nil {
		records = []*request.GenerationRequest{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id": tenantID,
		"requests":  records,
	})
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	periodType := usage.PeriodMonthly
	switch r.URL.Query().Get("period") {
	case "", "monthly":
	case "daily":
		periodType = usage.PeriodDaily
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "period must be daily or monthly"})
		return
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'from' date format (use RFC3339)"})
			return
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'to' date format (use RFC3339)"})
			return
		}
	}

	acct, err := h.ledger.Account(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	periods, err := h.usage.ListByTenant(ctx, tenantID, periodType, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if periods == nil {
		periods = []*usage.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":     tenantID,
		"monthly_quota": acct.MonthlyQuota,
		"remaining":     acct.Remaining,
		"period_type":   periodType,
		"periods":       periods,
		"from":          from,
		"to":            to,
	})
}

func (h *Handler) HandleQuota(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	acct, err := h.ledger.Account(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":      acct.TenantID,
		"monthly_quota":  acct.MonthlyQuota,
		"remaining":      acct.Remaining,
		"plan_renews_at": acct.PlanRenewsAt,
	})
}

func formImage(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
