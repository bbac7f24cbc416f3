package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vnmchuo/tryon-gateway/internal/audit"
	"github.com/vnmchuo/tryon-gateway/internal/classify"
	"github.com/vnmchuo/tryon-gateway/internal/generator"
	"github.com/vnmchuo/tryon-gateway/internal/ledger"
	"github.com/vnmchuo/tryon-gateway/internal/request"
)

const testTenant = "tenant-1"

type orchestratorFixture struct {
	orch     *Orchestrator
	ledger   *ledger.MemoryStore
	requests *request.MemoryStore
	audit    *audit.MemoryStore
	stub     *generator.Stub
}

// panicGenerator simulates a programming error inside the collaborator call.
type panicGenerator struct{}

func (panicGenerator) Generate(ctx context.Context, productImage, personImage []byte) (*generator.Result, error) {
	panic("boom")
}

func setupOrchestrator(t *testing.T, quota int64, g generator.Generator) *orchestratorFixture {
	t.Helper()

	ledgerStore := ledger.NewMemoryStore(nil)
	now := time.Now().UTC()
	if err := ledgerStore.CreateAccount(context.Background(), &ledger.QuotaAccount{
		TenantID:     testTenant,
		ShopName:     "Test Shop",
		MonthlyQuota: quota,
		Remaining:    quota,
		PlanRenewsAt: now.AddDate(0, 1, 0),
	}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	requestStore := request.NewMemoryStore()
	auditStore := audit.NewMemoryStore()
	tracer := noop.NewTracerProvider().Tracer("test")

	stub, _ := g.(*generator.Stub)
	return &orchestratorFixture{
		orch:     NewOrchestrator(ledgerStore, requestStore, auditStore, g, tracer, zerolog.Nop()),
		ledger:   ledgerStore,
		requests: requestStore,
		audit:    auditStore,
		stub:     stub,
	}
}

func remaining(t *testing.T, f *orchestratorFixture) int64 {
	t.Helper()
	acct, err := f.ledger.Account(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	return acct.Remaining
}

func singleRecord(t *testing.T, f *orchestratorFixture) *request.GenerationRequest {
	t.Helper()
	records, err := f.requests.ListByTenant(context.Background(), testTenant, 10)
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected exactly 1 request record, got %d", len(records))
	}
	return records[0]
}

func TestHandle_Success(t *testing.T) {
	f := setupOrchestrator(t, 500, &generator.Stub{Tokens: 1290})

	out, err := f.orch.Handle(context.Background(), Input{
		TenantID:          testTenant,
		CustomerReference: "customer-7",
		PersonImage:       []byte("person"),
		ProductImage:      []byte("product"),
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(out.Image) == 0 {
		t.Error("Expected a non-empty image")
	}
	if out.UsedTokens != 1290 {
		t.Errorf("Expected 1290 used tokens, got %d", out.UsedTokens)
	}

	if got := remaining(t, f); got != 499 {
		t.Errorf("Expected remaining 499 after debit, got %d", got)
	}

	rec := singleRecord(t, f)
	if rec.ID != out.RequestID {
		t.Errorf("Output request ID %q does not match record %q", out.RequestID, rec.ID)
	}
	if rec.Status != request.StatusSuccess {
		t.Errorf("Expected status success, got %s", rec.Status)
	}
	if rec.UsedTokens != 1290 {
		t.Errorf("Expected 1290 tokens on record, got %d", rec.UsedTokens)
	}
	if !strings.HasPrefix(rec.ResultRef, "sha256:") {
		t.Errorf("Expected sha256 result reference, got %q", rec.ResultRef)
	}
	if rec.CustomerHash == "" || rec.CustomerHash == "customer-7" {
		t.Errorf("Expected hashed customer reference, got %q", rec.CustomerHash)
	}

	if entries := f.audit.All(); len(entries) != 0 {
		t.Errorf("Expected no audit entries on success, got %d", len(entries))
	}
}

func TestHandle_QuotaExhausted(t *testing.T) {
	f := setupOrchestrator(t, 0, &generator.Stub{})

	_, err := f.orch.Handle(context.Background(), Input{
		TenantID:     testTenant,
		PersonImage:  []byte("person"),
		ProductImage: []byte("product"),
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}

	if f.stub.Calls != 0 {
		t.Errorf("Expected no collaborator calls on quota rejection, got %d", f.stub.Calls)
	}
	if got := remaining(t, f); got != 0 {
		t.Errorf("Expected remaining unchanged at 0, got %d", got)
	}

	rec := singleRecord(t, f)
	if rec.Status != request.StatusFailed {
		t.Errorf("Expected status failed, got %s", rec.Status)
	}
	if rec.ErrorCode != request.CodeQuotaExceeded {
		t.Errorf("Expected error code %q, got %q", request.CodeQuotaExceeded, rec.ErrorCode)
	}
}

func TestHandle_UnknownTenant(t *testing.T) {
	f := setupOrchestrator(t, 10, &generator.Stub{})

	_, err := f.orch.Handle(context.Background(), Input{
		TenantID:     "no-such-tenant",
		PersonImage:  []byte("person"),
		ProductImage: []byte("product"),
	})
	if !errors.Is(err, ledger.ErrTenantNotFound) {
		t.Fatalf("Expected ErrTenantNotFound, got %v", err)
	}
	if f.stub.Calls != 0 {
		t.Errorf("Expected no collaborator calls for unknown tenant, got %d", f.stub.Calls)
	}

	records, err := f.requests.ListByTenant(context.Background(), "no-such-tenant", 10)
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records for unknown tenant, got %d", len(records))
	}
}

func TestHandle_EmptyResultRefundsDebit(t *testing.T) {
	f := setupOrchestrator(t, 10, &generator.Stub{
		Err: &generator.EmptyResultError{Diagnostic: "safety block: garment category"},
	})

	_, err := f.orch.Handle(context.Background(), Input{
		TenantID:     testTenant,
		PersonImage:  []byte("person"),
		ProductImage: []byte("product"),
	})
	if err == nil {
		t.Fatal("Expected an error")
	}

	var classified *classify.Classified
	if !errors.As(err, &classified) {
		t.Fatalf("Expected a classified error, got %T", err)
	}
	if classified.Code != "empty_result" {
		t.Errorf("Expected code empty_result, got %q", classified.Code)
	}

	if got := remaining(t, f); got != 10 {
		t.Errorf("Expected remaining restored to 10 after refund, got %d", got)
	}

	rec := singleRecord(t, f)
	if rec.Status != request.StatusFailed {
		t.Errorf("Expected status failed, got %s", rec.Status)
	}
	if rec.ErrorCode != "empty_result" {
		t.Errorf("Expected error code empty_result, got %q", rec.ErrorCode)
	}

	entries := f.audit.All()
	if len(entries) != 1 {
		t.Fatalf("Expected exactly 1 audit entry, got %d", len(entries))
	}
	if entries[0].Level != audit.LevelError {
		t.Errorf("Expected audit level error, got %s", entries[0].Level)
	}
	if entries[0].RequestID != rec.ID {
		t.Errorf("Expected audit entry linked to request %q, got %q", rec.ID, entries[0].RequestID)
	}
	if !strings.Contains(entries[0].Message, "safety block") {
		t.Errorf("Expected diagnostic in audit message, got %q", entries[0].Message)
	}
}

func TestHandle_CancellationFinalizesRequest(t *testing.T) {
	f := setupOrchestrator(t, 10, &generator.Stub{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Handle(ctx, Input{
		TenantID:     testTenant,
		PersonImage:  []byte("person"),
		ProductImage: []byte("product"),
	})
	if err == nil {
		t.Fatal("Expected an error after cancellation")
	}

	var classified *classify.Classified
	if !errors.As(err, &classified) {
		t.Fatalf("Expected a classified error, got %T", err)
	}
	if classified.Code != "timeout" {
		t.Errorf("Expected code timeout, got %q", classified.Code)
	}

	rec := singleRecord(t, f)
	if !rec.Status.Terminal() {
		t.Errorf("Expected a terminal status after cancellation, got %s", rec.Status)
	}
	if got := remaining(t, f); got != 10 {
		t.Errorf("Expected remaining restored to 10 after refund, got %d", got)
	}
}

func TestHandle_PanicStillRefunds(t *testing.T) {
	f := setupOrchestrator(t, 10, panicGenerator{})

	func() {
		defer func() {
			if recover() == nil {
				t.Error("Expected panic to propagate")
			}
		}()
		_, _ = f.orch.Handle(context.Background(), Input{
			TenantID:     testTenant,
			PersonImage:  []byte("person"),
			ProductImage: []byte("product"),
		})
	}()

	rec := singleRecord(t, f)
	if rec.Status != request.StatusFailed {
		t.Errorf("Expected status failed after panic, got %s", rec.Status)
	}
	if got := remaining(t, f); got != 10 {
		t.Errorf("Expected remaining restored to 10 after refund, got %d", got)
	}
	if entries := f.audit.All(); len(entries) != 1 {
		t.Errorf("Expected 1 audit entry after panic, got %d", len(entries))
	}
}
