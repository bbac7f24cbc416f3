package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

const requestColumns = `id, tenant_id, requester_id, customer_hash, status, created_at, updated_at,
	used_tokens, latency_ms, error_code, error_message, result_reference`

func (s *PostgresStore) Create(ctx context.Context, req *GenerationRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}

	query := `
		INSERT INTO generation_requests (id, tenant_id, requester_id, customer_hash, status, used_tokens, latency_ms, error_code, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query,
		req.ID, req.TenantID, req.RequesterID, req.CustomerHash, string(req.Status),
		req.UsedTokens, req.LatencyMs, req.ErrorCode, req.ErrorMessage,
	).Scan(&req.CreatedAt, &req.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create generation request: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkStarted(ctx context.Context, id string) error {
	query := `
		UPDATE generation_requests
		SET status = 'started', updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	return s.transition(ctx, id, query)
}

func (s *PostgresStore) MarkSuccess(ctx context.Context, id string, latencyMs int64, usedTokens int, resultRef string) error {
	query := `
		UPDATE generation_requests
		SET status = 'success', latency_ms = $2, used_tokens = $3, result_reference = $4, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'started')
	`
	return s.transition(ctx, id, query, latencyMs, usedTokens, resultRef)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error {
	query := `
		UPDATE generation_requests
		SET status = 'failed', error_code = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'started')
	`
	return s.transition(ctx, id, query, errorCode, errorMessage)
}

// transition runs a guarded status update; zero rows affected means the
// request is missing or already terminal.
func (s *PostgresStore) transition(ctx context.Context, id, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update generation request: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRow(ctx, `SELECT status FROM generation_requests WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read generation request status: %w", err)
	}
	return ErrTerminal
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*GenerationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM generation_requests WHERE id = $1`

	var r GenerationRequest
	err := s.db.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.TenantID, &r.RequesterID, &r.CustomerHash, &r.Status,
		&r.CreatedAt, &r.UpdatedAt, &r.UsedTokens, &r.LatencyMs,
		&r.ErrorCode, &r.ErrorMessage, &r.ResultRef,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation request: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*GenerationRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + requestColumns + `
		FROM generation_requests
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation requests: %w", err)
	}
	defer rows.Close()

	var requests []*GenerationRequest
	for rows.Next() {
		var r GenerationRequest
		err := rows.Scan(
			&r.ID, &r.TenantID, &r.RequesterID, &r.CustomerHash, &r.Status,
			&r.CreatedAt, &r.UpdatedAt, &r.UsedTokens, &r.LatencyMs,
			&r.ErrorCode, &r.ErrorMessage, &r.ResultRef,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation request: %w", err)
		}
		requests = append(requests, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation requests: %w", err)
	}
	return requests, nil
}
