// Package mysql backs the event log and idempotency ledger with MySQL via
// go-sql-driver/mysql. The DSN must enable multiStatements for the startup
// schema to apply.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/idot-digital/eventsource/internal/models"
	"github.com/idot-digital/eventsource/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	event_id VARCHAR(36) NOT NULL,
	tenant_id VARCHAR(255) NOT NULL,
	account_id VARCHAR(255) NOT NULL,
	correlation_id VARCHAR(255) NOT NULL DEFAULT '',
	type VARCHAR(255) NOT NULL,
	entity_type VARCHAR(255) NOT NULL DEFAULT '',
	entity_id VARCHAR(255) NOT NULL DEFAULT '',
	payload BLOB,
	triggered_by VARCHAR(255) NOT NULL DEFAULT '',
	triggered_at VARCHAR(64) NOT NULL DEFAULT '',
	created_at VARCHAR(64) NOT NULL,
	INDEX idx_events_tenant (tenant_id, id),
	INDEX idx_events_account (account_id, id),
	INDEX idx_events_type (type, id)
);
CREATE TABLE IF NOT EXISTS idempotency_keys (
	surrogate_id BIGINT AUTO_INCREMENT PRIMARY KEY,
	idempotency_key VARCHAR(36) NOT NULL,
	UNIQUE KEY uniq_idempotency_key (idempotency_key)
);
`

// Store implements storage.Store on MySQL.
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
	// MySQL cannot subquery the table being deleted from directly.
	res, err := db.ExecContext(ctx, `
DELETE FROM idempotency_keys
WHERE surrogate_id <= (SELECT cutoff FROM
	(SELECT COALESCE(MAX(surrogate_id), 0) - ? AS cutoff FROM idempotency_keys) AS bound)`, retain)
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

// isUniqueViolation reports ER_DUP_ENTRY (1062) from the driver.
func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
