// Package postgres backs the event log and idempotency ledger with
// PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/idot-digital/eventsource/internal/models"
	"github.com/idot-digital/eventsource/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	entity_id TEXT NOT NULL DEFAULT '',
	payload BYTEA,
	triggered_by TEXT NOT NULL DEFAULT '',
	triggered_at TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_tenant ON events (tenant_id, id);
CREATE INDEX IF NOT EXISTS idx_events_account ON events (account_id, id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type, id);
CREATE TABLE IF NOT EXISTS idempotency_keys (
	surrogate_id BIGSERIAL PRIMARY KEY,
	idempotency_key TEXT NOT NULL UNIQUE
);
`

// Store implements storage.Store on PostgreSQL.
type Store struct{}

func New() *Store {
	return &Store{}
}

func (s *Store) Schema() string {
	return schema
}

func (s *Store) AppendEvents(ctx context.Context, tx storage.DBTX, events []models.Event) ([]int64, error) {
	const q = `
INSERT INTO events (event_id, tenant_id, account_id, correlation_id, type,
	entity_type, entity_id, payload, triggered_by, triggered_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`

	ids := make([]int64, len(events))
	for i := range events {
		e := &events[i]
		err := tx.QueryRowContext(ctx, q,
			e.EventID, e.TenantID, e.AccountID, e.CorrelationID, e.Type,
			e.EntityType, e.EntityID, []byte(e.Payload), e.TriggeredBy, e.TriggeredAt,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		).Scan(&ids[i])
		if err != nil {
			return nil, fmt.Errorf("failed to insert event %d: %w", i, err)
		}
	}
	return ids, nil
}

func (s *Store) ListEvents(ctx context.Context, db storage.DBTX, filter storage.EventFilter) ([]models.Event, error) {
	where, args := buildWhere(filter)
	q := `
SELECT id, event_id, tenant_id, account_id, correlation_id, type,
	entity_type, entity_id, payload, triggered_by, triggered_at, created_at
FROM events` + where + fmt.Sprintf("\nORDER BY id ASC\nLIMIT $%d", len(args)+1)
	args = append(args, filter.Limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) GetEventByID(ctx context.Context, db storage.DBTX, id int64) (models.Event, error) {
	const q = `
SELECT id, event_id, tenant_id, account_id, correlation_id, type,
	entity_type, entity_id, payload, triggered_by, triggered_at, created_at
FROM events WHERE id = $1`

	e, err := scanEvent(db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, storage.ErrNotFound
	}
	return e, err
}

func (s *Store) InsertKey(ctx context.Context, tx storage.DBTX, key string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO idempotency_keys (idempotency_key) VALUES ($1) RETURNING surrogate_id`, key).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("failed to insert idempotency key: %w", err)
	}
	return id, nil
}

func (s *Store) HasKey(ctx context.Context, db storage.DBTX, key string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM idempotency_keys WHERE idempotency_key = $1`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return true, nil
}

func (s *Store) PruneKeys(ctx context.Context, db storage.DBTX, retain int64) (int64, error) {
	res, err := db.ExecContext(ctx, `
DELETE FROM idempotency_keys
WHERE surrogate_id <= (SELECT COALESCE(MAX(surrogate_id), 0) FROM idempotency_keys) - $1`, retain)
	if err != nil {
		return 0, fmt.Errorf("failed to prune idempotency keys: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var e models.Event
	var payload []byte
	var createdAt string
	err := row.Scan(
		&e.ID, &e.EventID, &e.TenantID, &e.AccountID, &e.CorrelationID, &e.Type,
		&e.EntityType, &e.EntityID, &payload, &e.TriggeredBy, &e.TriggeredAt, &createdAt,
	)
	if err != nil {
		return models.Event{}, err
	}
	e.Payload = payload
	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return e, nil
}

func buildWhere(filter storage.EventFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.TenantID != "" {
		add("tenant_id", filter.TenantID)
	}
	if filter.AccountID != "" {
		add("account_id", filter.AccountID)
	}
	if filter.CorrelationID != "" {
		add("correlation_id", filter.CorrelationID)
	}
	if filter.Type != "" {
		add("type", filter.Type)
	}
	if filter.AfterID > 0 {
		args = append(args, filter.AfterID)
		conds = append(conds, fmt.Sprintf("id > $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

// isUniqueViolation reports a unique_violation (23505) from the driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
