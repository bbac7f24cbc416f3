package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
)

func TestWithBreaker_PassThrough(t *testing.T) {
	stub := &Stub{Image: []byte("img"), Tokens: 7}
	g := WithBreaker(stub, "test")

	result, err := g.Generate(context.Background(), []byte("p"), []byte("m"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if string(result.Image) != "img" || result.UsedTokens != 7 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestWithBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	stub := &Stub{Err: errors.New("provider down")}
	g := WithBreaker(stub, "test")

	for i := 0; i < 3; i++ {
		if _, err := g.Generate(context.Background(), nil, nil); err == nil {
			t.Fatal("Expected error")
		}
	}

	// Breaker is open now; the provider is no longer called.
	before := stub.Calls
	_, err := g.Generate(context.Background(), nil, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected ErrOpenState, got %v", err)
	}
	if stub.Calls != before {
		t.Errorf("Expected no provider call while open, got %d extra", stub.Calls-before)
	}
}
