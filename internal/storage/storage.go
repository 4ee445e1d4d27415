// Package storage defines the interfaces between the ingestion/query core
// and the SQL backends under storage/mysql, storage/postgres and
// storage/sqlite.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/idot-digital/eventsource/internal/models"
)

var (
	// ErrDuplicateKey indicates an idempotency key that is already recorded.
	// Adapters translate their driver's unique-violation error into this.
	ErrDuplicateKey = errors.New("idempotency key already recorded")

	// ErrNotFound indicates a lookup for an event id that does not exist.
	ErrNotFound = errors.New("event not found")
)

// DBTX is the minimal database surface the store needs. Both *sql.DB and
// *sql.Tx satisfy it, leaving transaction boundaries to the caller.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// EventFilter selects and pages over the event log. Zero-valued string
// fields are not applied. Results are always ordered ascending by id.
type EventFilter struct {
	TenantID      string
	AccountID     string
	CorrelationID string
	Type          string

	// AfterID restricts to rows with id strictly greater.
	AfterID int64

	// Limit caps the number of returned rows; callers fetch limit+1 to
	// detect whether more pages exist.
	Limit int
}

// EventStore is the append-only event log.
type EventStore interface {
	// AppendEvents inserts the events in order and returns their assigned
	// ids. Must be called inside the ingestion transaction.
	AppendEvents(ctx context.Context, tx DBTX, events []models.Event) ([]int64, error)

	// ListEvents returns events matching the filter, ascending by id.
	ListEvents(ctx context.Context, db DBTX, filter EventFilter) ([]models.Event, error)

	// GetEventByID returns one event or ErrNotFound.
	GetEventByID(ctx context.Context, db DBTX, id int64) (models.Event, error)
}

// LedgerStore is the bounded idempotency-key table.
type LedgerStore interface {
	// InsertKey records a key under a fresh surrogate id, returning
	// ErrDuplicateKey if the key is already present.
	InsertKey(ctx context.Context, tx DBTX, key string) (int64, error)

	// HasKey reports whether a key is recorded.
	HasKey(ctx context.Context, db DBTX, key string) (bool, error)

	// PruneKeys deletes every key whose surrogate id is more than retain
	// below the current maximum, returning the number deleted.
	PruneKeys(ctx context.Context, db DBTX, retain int64) (int64, error)
}

// Store is the full backend contract implemented by each adapter.
type Store interface {
	EventStore
	LedgerStore

	// Schema returns the DDL executed at startup.
	Schema() string
}
