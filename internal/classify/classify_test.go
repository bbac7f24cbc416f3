package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/tryon-gateway/internal/audit"
	"github.com/vnmchuo/tryon-gateway/internal/generator"
)

func TestClassify_EmptyResult(t *testing.T) {
	err := fmt.Errorf("generate: %w", &generator.EmptyResultError{Diagnostic: "model refused: garment too complex"})

	c := Classify(err)
	if c.Class != ClassExternalService {
		t.Errorf("Expected external_service, got %s", c.Class)
	}
	if c.Code != "empty_result" {
		t.Errorf("Expected empty_result code, got %s", c.Code)
	}
	if c.Detail != "model refused: garment too complex" {
		t.Errorf("Expected provider diagnostic in Detail, got %q", c.Detail)
	}
	if c.HTTPStatus() != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", c.HTTPStatus())
	}
	if c.AuditLevel() != audit.LevelError {
		t.Errorf("Expected error level, got %s", c.AuditLevel())
	}
	if !c.Refundable() {
		t.Error("Expected refundable")
	}
}

func TestClassify_Internal(t *testing.T) {
	c := Classify(errors.New("connection reset by peer"))
	if c.Class != ClassInternal {
		t.Errorf("Expected internal, got %s", c.Class)
	}
	if c.Code != "internal_error" {
		t.Errorf("Expected internal_error code, got %s", c.Code)
	}
	if c.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", c.HTTPStatus())
	}
	if c.AuditLevel() != audit.LevelWarn {
		t.Errorf("Expected warn level, got %s", c.AuditLevel())
	}
	if !c.Refundable() {
		t.Error("Expected refundable")
	}
}

func TestClassify_Cancellation(t *testing.T) {
	for _, err := range []error{context.Canceled, context.DeadlineExceeded} {
		c := Classify(fmt.Errorf("call: %w", err))
		if c.Class != ClassInternal {
			t.Errorf("%v: expected internal, got %s", err, c.Class)
		}
		if c.Code != "timeout" {
			t.Errorf("%v: expected timeout code, got %s", err, c.Code)
		}
	}
}

func TestClassify_BreakerOpen(t *testing.T) {
	c := Classify(gobreaker.ErrOpenState)
	if c.Class != ClassInternal || c.Code != "provider_unavailable" {
		t.Errorf("Expected internal/provider_unavailable, got %s/%s", c.Class, c.Code)
	}
}

func TestClassified_MessageNeverLeaksDetail(t *testing.T) {
	c := Classify(&generator.EmptyResultError{Diagnostic: "raw provider internals"})
	if c.Message == c.Detail {
		t.Error("Public message must not equal the raw diagnostic")
	}
	if c.Message == "" {
		t.Error("Expected a generic public message")
	}
}

func TestClassified_Unwrap(t *testing.T) {
	cause := &generator.EmptyResultError{Diagnostic: "x"}
	c := Classify(cause)

	var emptyErr *generator.EmptyResultError
	if !errors.As(c, &emptyErr) {
		t.Error("Expected Classified to unwrap to the cause")
	}
}
