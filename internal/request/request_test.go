package request

import (
	"context"
	"errors"
	"testing"
)

func TestLifecycle_SuccessPath(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	req := &GenerationRequest{TenantID: "shop-1", RequesterID: "key-1"}
	if err := store.Create(ctx, req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.ID == "" {
		t.Fatal("Expected ID to be assigned")
	}
	if req.Status != StatusPending {
		t.Errorf("Expected status pending, got %s", req.Status)
	}

	if err := store.MarkStarted(ctx, req.ID); err != nil {
		t.Fatalf("MarkStarted failed: %v", err)
	}
	if err := store.MarkSuccess(ctx, req.ID, 1200, 845, "sha256:abc"); err != nil {
		t.Fatalf("MarkSuccess failed: %v", err)
	}

	got, err := store.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusSuccess {
		t.Errorf("Expected status success, got %s", got.Status)
	}
	if got.LatencyMs != 1200 || got.UsedTokens != 845 || got.ResultRef != "sha256:abc" {
		t.Errorf("Unexpected result fields: %+v", got)
	}
}

func TestLifecycle_TerminalImmutability(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	req := &GenerationRequest{TenantID: "shop-1"}
	if err := store.Create(ctx, req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.MarkStarted(ctx, req.ID); err != nil {
		t.Fatalf("MarkStarted failed: %v", err)
	}
	if err := store.MarkFailed(ctx, req.ID, "empty_result", "provider returned no image"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// Every further transition is refused.
	if err := store.MarkStarted(ctx, req.ID); !errors.Is(err, ErrTerminal) {
		t.Errorf("Expected ErrTerminal, got %v", err)
	}
	if err := store.MarkSuccess(ctx, req.ID, 1, 1, ""); !errors.Is(err, ErrTerminal) {
		t.Errorf("Expected ErrTerminal, got %v", err)
	}
	if err := store.MarkFailed(ctx, req.ID, "other", "other"); !errors.Is(err, ErrTerminal) {
		t.Errorf("Expected ErrTerminal, got %v", err)
	}

	got, _ := store.Get(ctx, req.ID)
	if got.ErrorCode != "empty_result" {
		t.Errorf("Expected error_code preserved, got %s", got.ErrorCode)
	}
}

func TestCreate_DirectlyFailedAtAdmission(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	req := &GenerationRequest{
		TenantID:  "shop-1",
		Status:    StatusFailed,
		ErrorCode: CodeQuotaExceeded,
	}
	if err := store.Create(ctx, req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, _ := store.Get(ctx, req.ID)
	if got.Status != StatusFailed || got.ErrorCode != CodeQuotaExceeded {
		t.Errorf("Expected failed/quota_exceeded, got %s/%s", got.Status, got.ErrorCode)
	}

	if err := store.MarkStarted(ctx, req.ID); !errors.Is(err, ErrTerminal) {
		t.Errorf("Expected ErrTerminal, got %v", err)
	}
}

func TestTransition_UnknownID(t *testing.T) {
	store := NewMemoryStore()
	if err := store.MarkStarted(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestHashCustomerReference(t *testing.T) {
	if got := HashCustomerReference("shop-1", ""); got != "" {
		t.Errorf("Expected empty hash for empty reference, got %s", got)
	}

	h1 := HashCustomerReference("shop-1", "customer-42")
	h2 := HashCustomerReference("shop-2", "customer-42")
	if h1 == "" || h2 == "" {
		t.Fatal("Expected non-empty hashes")
	}
	// Salted by tenant: the same customer token hashes differently per shop.
	if h1 == h2 {
		t.Error("Expected different hashes across tenants")
	}
	if h1 == "customer-42" {
		t.Error("Raw reference must never appear in the hash")
	}
	if got := HashCustomerReference("shop-1", "customer-42"); got != h1 {
		t.Error("Expected hash to be deterministic")
	}
}

func TestListByTenant(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, &GenerationRequest{TenantID: "shop-1"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if err := store.Create(ctx, &GenerationRequest{TenantID: "shop-2"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.ListByTenant(ctx, "shop-1", 2)
	if err != nil {
		t.Fatalf("ListByTenant failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 requests with limit 2, got %d", len(got))
	}
	for _, r := range got {
		if r.TenantID != "shop-1" {
			t.Errorf("Unexpected tenant %s", r.TenantID)
		}
	}
}
