// Package ledger tracks idempotency keys of previously ingested events. The
// ledger is bounded: a periodic janitor keeps only the N most recently
// inserted keys, so deduplication is guaranteed over a sliding window of
// insertion order, not over arbitrary wall-clock age.
package ledger

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/idot-digital/eventsource/internal/storage"
)

// Ledger is the idempotency-key ledger over a storage backend.
type Ledger struct {
	db     *sql.DB
	store  storage.LedgerStore
	logger *slog.Logger
}

func New(db *sql.DB, store storage.LedgerStore, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, store: store, logger: logger}
}

// IsDuplicate reports whether key has been recorded before. Detection is by
// key value only.
func (l *Ledger) IsDuplicate(ctx context.Context, key string) (bool, error) {
	return l.store.HasKey(ctx, l.db, key)
}

// Record stores key under a fresh surrogate id as part of tx. Returns
// storage.ErrDuplicateKey if another writer recorded the key first; the
// unique constraint makes this check atomic across racing ingestions.
func (l *Ledger) Record(ctx context.Context, tx storage.DBTX, key string) (int64, error) {
	return l.store.InsertKey(ctx, tx, key)
}

// Cleanup deletes every key outside the retain most recent insertions and
// returns the number deleted.
func (l *Ledger) Cleanup(ctx context.Context, retain int64) (int64, error) {
	return l.store.PruneKeys(ctx, l.db, retain)
}
