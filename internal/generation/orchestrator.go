package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/tryon-gateway/internal/audit"
	"github.com/vnmchuo/tryon-gateway/internal/classify"
	"github.com/vnmchuo/tryon-gateway/internal/generator"
	"github.com/vnmchuo/tryon-gateway/internal/ledger"
	"github.com/vnmchuo/tryon-gateway/internal/request"
)

// ErrQuotaExceeded is the admission-denied result: the tenant's monthly
// quota is exhausted, nothing was debited and no external call was made.
var ErrQuotaExceeded = errors.New("quota exceeded")

type Input struct {
	TenantID          string
	RequesterID       string
	CustomerReference string
	PersonImage       []byte
	ProductImage      []byte
}

type Output struct {
	RequestID  string
	Image      []byte
	UsedTokens int
	LatencyMs  int64
}

// Orchestrator runs the quota-governed generation lifecycle: admission
// check, atomic debit, one external call, and a compensating credit plus
// audit entry on any failure after the debit.
type Orchestrator struct {
	ledger    ledger.Ledger
	requests  request.Store
	audit     audit.Store
	generator generator.Generator
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

func NewOrchestrator(
	l ledger.Ledger,
	requests request.Store,
	auditStore audit.Store,
	g generator.Generator,
	tracer trace.Tracer,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		ledger:    l,
		requests:  requests,
		audit:     auditStore,
		generator: g,
		tracer:    tracer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (o *Orchestrator) Handle(ctx context.Context, in Input) (out *Output, err error) {
	ctx, span := o.tracer.Start(ctx, "generation.handle")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", in.TenantID))

	// Fail fast on an unknown tenant; no record is created.
	if _, err := o.ledger.Account(ctx, in.TenantID); err != nil {
		return nil, err
	}

	// Admission is the debit itself: one atomic check-and-decrement.
	res, err := o.ledger.TryDebit(ctx, in.TenantID, 1)
	if err != nil {
		return nil, err
	}

	customerHash := request.HashCustomerReference(in.TenantID, in.CustomerReference)

	if !res.OK {
		rec := &request.GenerationRequest{
			TenantID:     in.TenantID,
			RequesterID:  in.RequesterID,
			CustomerHash: customerHash,
			Status:       request.StatusFailed,
			ErrorCode:    request.CodeQuotaExceeded,
			ErrorMessage: "monthly quota exhausted",
		}
		if err := o.requests.Create(ctx, rec); err != nil {
			o.logger.Error().Err(err).Str("tenant_id", in.TenantID).Msg("failed to record quota rejection")
		}
		o.logger.Info().Str("tenant_id", in.TenantID).Str("request_id", rec.ID).Msg("generation rejected: quota exhausted")
		return nil, ErrQuotaExceeded
	}

	rec := &request.GenerationRequest{
		TenantID:     in.TenantID,
		RequesterID:  in.RequesterID,
		CustomerHash: customerHash,
	}
	if err := o.requests.Create(ctx, rec); err != nil {
		// The debit already happened; refund before surfacing.
		o.refund(ctx, in.TenantID, rec.ID)
		return nil, err
	}
	span.SetAttributes(attribute.String("request_id", rec.ID))

	// From here every exit must resolve the record to exactly one terminal
	// state. Success returns early below; everything else — error return,
	// caller cancellation, panic — funnels through the finalizer, which
	// marks FAILED and credits the debit back.
	defer func() {
		if r := recover(); r != nil {
			o.finalizeFailure(ctx, in.TenantID, rec.ID, classify.Classify(fmt.Errorf("panic: %v", r)))
			panic(r)
		}
		if err != nil {
			c := classify.Classify(err)
			o.finalizeFailure(ctx, in.TenantID, rec.ID, c)
			err = c
		}
	}()

	if err := o.requests.MarkStarted(ctx, rec.ID); err != nil {
		return nil, err
	}
	start := o.now()

	// Single attempt against the collaborator; no lock is held across it.
	result, genErr := o.generator.Generate(ctx, in.ProductImage, in.PersonImage)
	if genErr != nil {
		return nil, genErr
	}
	if ctx.Err() != nil {
		// Caller gone while the call was in flight: failure path, not a
		// request left dangling in STARTED.
		return nil, ctx.Err()
	}

	latencyMs := o.now().Sub(start).Milliseconds()
	sum := sha256.Sum256(result.Image)
	resultRef := "sha256:" + hex.EncodeToString(sum[:])

	if err := o.requests.MarkSuccess(ctx, rec.ID, latencyMs, result.UsedTokens, resultRef); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("tenant_id", in.TenantID).
		Str("request_id", rec.ID).
		Int("used_tokens", result.UsedTokens).
		Int64("latency_ms", latencyMs).
		Int64("remaining", res.Remaining).
		Msg("generation succeeded")

	return &Output{
		RequestID:  rec.ID,
		Image:      result.Image,
		UsedTokens: result.UsedTokens,
		LatencyMs:  latencyMs,
	}, nil
}

// finalizeFailure resolves a post-debit failure: terminal FAILED record,
// audit entry at classifier severity, and the compensating credit. It runs
// on a context detached from the caller so cancellation cannot skip it.
func (o *Orchestrator) finalizeFailure(ctx context.Context, tenantID, requestID string, c *classify.Classified) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.requests.MarkFailed(ctx, requestID, c.Code, c.Detail); err != nil && !errors.Is(err, request.ErrTerminal) {
		o.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to mark request failed")
	}

	entry := &audit.Entry{
		Level:     c.AuditLevel(),
		Source:    "generation.orchestrator",
		Message:   fmt.Sprintf("%s: %s", c.Code, c.Detail),
		RequestID: requestID,
	}
	if err := o.audit.Write(ctx, entry); err != nil {
		o.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to write audit log")
	}

	if c.Refundable() {
		o.refund(ctx, tenantID, requestID)
	}

	o.logger.Warn().
		Str("tenant_id", tenantID).
		Str("request_id", requestID).
		Str("class", string(c.Class)).
		Str("code", c.Code).
		Msg("generation failed")
}

func (o *Orchestrator) refund(ctx context.Context, tenantID, requestID string) {
	if _, err := o.ledger.Credit(context.WithoutCancel(ctx), tenantID, 1); err != nil {
		// A lost refund is a real ledger inconsistency; make it loud.
		o.logger.Error().Err(err).Str("tenant_id", tenantID).Str("request_id", requestID).Msg("compensating credit failed")
	}
}
