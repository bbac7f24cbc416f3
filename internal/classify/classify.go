// Package classify maps failures raised during an external generation call
// into a fixed taxonomy that drives refund eligibility, audit severity, and
// the status surfaced to the caller.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/tryon-gateway/internal/audit"
	"github.com/vnmchuo/tryon-gateway/internal/generator"
)

type Class string

const (
	// ClassExternalService: the collaborator responded but produced no
	// usable result.
	ClassExternalService Class = "external_service"
	// ClassInternal: any other fault (network, serialization, programming
	// error, cancellation).
	ClassInternal Class = "internal"
)

// Classified is the single failure shape the orchestrator's finalizer
// consumes. Detail carries the raw diagnostic and is audit-only; Message is
// safe to show callers.
type Classified struct {
	Class   Class
	Code    string
	Message string
	Detail  string
	cause   error
}

func (c *Classified) Error() string {
	return fmt.Sprintf("%s (%s): %s", c.Class, c.Code, c.Detail)
}

func (c *Classified) Unwrap() error {
	return c.cause
}

// Classify maps any error from the generation pipeline into exactly one
// class. Admission denial never reaches here; it is a pre-call
// short-circuit with no debit to refund.
func Classify(err error) *Classified {
	var emptyErr *generator.EmptyResultError
	if errors.As(err, &emptyErr) {
		return &Classified{
			Class:   ClassExternalService,
			Code:    "empty_result",
			Message: "image generation failed",
			Detail:  emptyErr.Diagnostic,
			cause:   err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Classified{
			Class:   ClassInternal,
			Code:    "timeout",
			Message: "image generation timed out",
			Detail:  err.Error(),
			cause:   err,
		}
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Classified{
			Class:   ClassInternal,
			Code:    "provider_unavailable",
			Message: "image generation temporarily unavailable",
			Detail:  err.Error(),
			cause:   err,
		}
	}

	return &Classified{
		Class:   ClassInternal,
		Code:    "internal_error",
		Message: "internal error",
		Detail:  fmt.Sprintf("%T: %v", err, err),
		cause:   err,
	}
}

// HTTPStatus is the status class surfaced to the caller: bad-gateway for a
// provider-side failure, internal-error for everything else.
func (c *Classified) HTTPStatus() int {
	if c.Class == ClassExternalService {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (c *Classified) AuditLevel() audit.Level {
	if c.Class == ClassExternalService {
		return audit.LevelError
	}
	return audit.LevelWarn
}

// Refundable reports whether the debited quota is credited back. Both
// classes refund: the tenant got nothing for the debit either way.
func (c *Classified) Refundable() bool {
	return true
}
