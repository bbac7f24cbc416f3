package audit

import (
	"context"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Entry is one durable audit record. RequestID is a weak reference: it is
// lookup-only and the entry outlives deletion of the request it points at.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

type Store interface {
	Write(ctx context.Context, entry *Entry) error
	ListByRequest(ctx context.Context, requestID string) ([]*Entry, error)
}
