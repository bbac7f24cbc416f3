package request

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("generation request not found")
	// ErrTerminal is returned for any transition attempted on a request
	// already in SUCCESS or FAILED.
	ErrTerminal = errors.New("generation request is in a terminal state")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusStarted Status = "started"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CodeQuotaExceeded marks requests rejected at admission. They are created
// directly at FAILED and never pass through PENDING/STARTED.
const CodeQuotaExceeded = "quota_exceeded"

// GenerationRequest is one persisted generation attempt. Once it reaches a
// terminal status the stores refuse further mutation.
type GenerationRequest struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	RequesterID  string    `json:"requester_id,omitempty"`
	CustomerHash string    `json:"customer_hash,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UsedTokens   int       `json:"used_tokens"`
	LatencyMs    int64     `json:"latency_ms"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ResultRef    string    `json:"result_reference,omitempty"`
}

// HashCustomerReference one-way hashes an externally supplied customer
// token, salted by tenant. The raw value is never persisted.
func HashCustomerReference(tenantID, raw string) string {
	if raw == "" {
		return ""
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", tenantID, raw)))
	return hex.EncodeToString(h[:])
}

type Store interface {
	// Create persists a new request. Status defaults to PENDING; admission
	// rejections are created directly at FAILED.
	Create(ctx context.Context, req *GenerationRequest) error

	MarkStarted(ctx context.Context, id string) error
	MarkSuccess(ctx context.Context, id string, latencyMs int64, usedTokens int, resultRef string) error
	MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error

	Get(ctx context.Context, id string) (*GenerationRequest, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*GenerationRequest, error)
}
