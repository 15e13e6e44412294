package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectEvents = `SELECT id, event_type, severity, description, source, ts FROM security_events`

// PostgresStore persists security events to the security_events table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveEvent implements Store.
func (s *PostgresStore) SaveEvent(ctx context.Context, e *SecurityEvent) error {
	q := `
		INSERT INTO security_events (id, event_type, severity, description, source, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.Exec(ctx, q, e.ID, e.Type, e.Severity, e.Description, e.Source, e.Timestamp); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*SecurityEvent, error) {
	return s.query(ctx, selectEvents+` ORDER BY ts DESC LIMIT $1`, limit)
}

// All implements Store.
func (s *PostgresStore) All(ctx context.Context) ([]*SecurityEvent, error) {
	return s.query(ctx, selectEvents+` ORDER BY ts ASC`)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*SecurityEvent, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[SecurityEvent])
	if err != nil {
		return nil, fmt.Errorf("scan security events: %w", err)
	}
	return events, nil
}
