// Package sqlite backs the event log and idempotency ledger with SQLite via
// the pure-Go modernc.org/sqlite driver. It is the backend used by the test
// suite and is sufficient for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/idot-digital/eventsource/internal/models"
	"github.com/idot-digital/eventsource/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	correlation_id TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	entity_type TEXT NOT NULL DEFAULT '',
	entity_id TEXT NOT NULL DEFAULT '',
	payload BLOB,
	triggered_by TEXT NOT NULL DEFAULT '',
	triggered_at TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_tenant ON events (tenant_id, id);
CREATE INDEX IF NOT EXISTS idx_events_account ON events (account_id, id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type, id);
CREATE TABLE IF NOT EXISTS idempotency_keys (
	surrogate_id INTEGER PRIMARY KEY AUTOINCREMENT,
	idempotency_key TEXT NOT NULL UNIQUE
);
`

// Store implements storage.Store on SQLite.
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
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ids := make([]int64, len(events))
	for i := range events {
		e := &events[i]
		res, err := tx.ExecContext(ctx, q,
			e.EventID, e.TenantID, e.AccountID, e.CorrelationID, e.Type,
			e.EntityType, e.EntityID, []byte(e.Payload), e.TriggeredBy, e.TriggeredAt,
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert event %d: %w", i, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read insert id: %w", err)
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *Store) ListEvents(ctx context.Context, db storage.DBTX, filter storage.EventFilter) ([]models.Event, error) {
	where, args := buildWhere(filter)
	q := `
SELECT id, event_id, tenant_id, account_id, correlation_id, type,
	entity_type, entity_id, payload, triggered_by, triggered_at, created_at
FROM events` + where + `
ORDER BY id ASC
LIMIT ?`
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
FROM events WHERE id = ?`

	e, err := scanEvent(db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, storage.ErrNotFound
	}
	return e, err
}

func (s *Store) InsertKey(ctx context.Context, tx storage.DBTX, key string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO idempotency_keys (idempotency_key) VALUES (?)`, key)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, storage.ErrDuplicateKey
		}
		return 0, fmt.Errorf("failed to insert idempotency key: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) HasKey(ctx context.Context, db storage.DBTX, key string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM idempotency_keys WHERE idempotency_key = ?`, key).Scan(&one)
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
WHERE surrogate_id <= (SELECT COALESCE(MAX(surrogate_id), 0) FROM idempotency_keys) - ?`, retain)
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
	if filter.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.AccountID != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.CorrelationID != "" {
		conds = append(conds, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.AfterID > 0 {
		conds = append(conds, "id > ?")
		args = append(args, filter.AfterID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// SQLITE_CONSTRAINT_UNIQUE (2067). NOT NULL and CHECK violations share
	// the driver's "constraint failed" prefix but not this text.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
