package generator

import (
	"context"
	"fmt"
)

type Result struct {
	Image      []byte
	UsedTokens int
}

// Generator is the external image-generation collaborator: it composes the
// garment from the product image onto the person image. One call, one
// attempt; retry policy is the caller's concern.
type Generator interface {
	Generate(ctx context.Context, productImage, personImage []byte) (*Result, error)
}

// EmptyResultError means the provider responded but produced no usable
// image. Diagnostic carries the provider's raw text for the audit trail;
// it is never surfaced to end users.
type EmptyResultError struct {
	Diagnostic string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("generation provider returned an empty result: %s", e.Diagnostic)
}
