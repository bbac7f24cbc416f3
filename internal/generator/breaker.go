package generator

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

type breakerGenerator struct {
	inner Generator
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps a Generator in a circuit breaker so a flapping provider
// fails fast instead of burning the request timeout on every call.
func WithBreaker(g Generator, name string) Generator {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &breakerGenerator{
		inner: g,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *breakerGenerator) Generate(ctx context.Context, productImage, personImage []byte) (*Result, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Generate(ctx, productImage, personImage)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Result), nil
}
