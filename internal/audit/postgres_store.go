package audit

import (
	"context"
	"fmt"

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

func (s *PostgresStore) Write(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO audit_logs (level, source, message, request_id)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id, timestamp
	`
	err := s.db.QueryRow(ctx, query,
		string(entry.Level), entry.Source, entry.Message, entry.RequestID,
	).Scan(&entry.ID, &entry.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRequest(ctx context.Context, requestID string) ([]*Entry, error) {
	query := `
		SELECT id, timestamp, level, source, message, COALESCE(request_id, '')
		FROM audit_logs
		WHERE request_id = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Source, &e.Message, &e.RequestID); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return entries, nil
}
