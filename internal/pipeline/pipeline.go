// Package pipeline orchestrates event ingestion: idempotency checks, payload
// validation and the atomic durable append.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/idot-digital/eventsource/internal/eventtype"
	"github.com/idot-digital/eventsource/internal/ledger"
	"github.com/idot-digital/eventsource/internal/metrics"
	"github.com/idot-digital/eventsource/internal/models"
	"github.com/idot-digital/eventsource/internal/storage"
)

// ErrTransient marks storage-level failures worth retrying by the caller,
// such as an idempotency-key race that persisted past the pipeline's own
// single retry.
var ErrTransient = errors.New("transient ingestion failure")

// Result is the outcome of ingesting one batch. A batch with any validation
// failure is rejected as a whole: nothing was appended and Failures holds one
// entry per batch position, with an empty error set for candidates that
// passed. Duplicates are informational and never fail the batch.
type Result struct {
	Appended   []models.Event
	Duplicates []string
	Failures   []models.EventError
}

// Rejected reports whether the batch was refused because of validation
// failures.
func (r Result) Rejected() bool {
	return len(r.Failures) > 0
}

// Pipeline validates and appends candidate event batches.
type Pipeline struct {
	registry  *eventtype.Registry
	validator *eventtype.Validator
	ledger    *ledger.Ledger
	store     storage.EventStore
	db        *sql.DB
	logger    *slog.Logger
}

func New(registry *eventtype.Registry, ledger *ledger.Ledger, store storage.EventStore, db *sql.DB, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		registry:  registry,
		validator: eventtype.NewValidator(registry),
		ledger:    ledger,
		store:     store,
		db:        db,
		logger:    logger,
	}
}

// Ingest processes one batch atomically. Every candidate is first checked
// against the idempotency ledger; duplicates are skipped and reported. All
// remaining candidates are validated before anything touches the log: a
// single validation failure voids the whole batch and returns the complete
// per-event error list. Surviving events are appended, and their keys
// recorded, in one transaction.
func (p *Pipeline) Ingest(ctx context.Context, batch []models.CandidateEvent) (Result, error) {
	var res Result
	if len(batch) == 0 {
		return res, nil
	}

	type survivor struct {
		event models.Event
		key   string
	}
	var survivors []survivor
	seen := make(map[string]bool, len(batch))
	errsByIndex := make([][]string, len(batch))
	failed := 0

	for i, c := range batch {
		errs := structuralErrors(c)

		if len(errs) == 0 {
			if seen[c.IdempotencyKey] {
				res.Duplicates = append(res.Duplicates, c.IdempotencyKey)
				metrics.IngestedEvents.WithLabelValues(metrics.StatusDuplicate).Inc()
				continue
			}
			dup, err := p.ledger.IsDuplicate(ctx, c.IdempotencyKey)
			if err != nil {
				return Result{}, fmt.Errorf("idempotency check failed: %w", err)
			}
			if dup {
				res.Duplicates = append(res.Duplicates, c.IdempotencyKey)
				metrics.IngestedEvents.WithLabelValues(metrics.StatusDuplicate).Inc()
				continue
			}
			seen[c.IdempotencyKey] = true

			outcome := p.validator.Validate(c.Type, c.Payload)
			errs = append(errs, outcome.Errors...)
			if outcome.OK && !p.registry.Known(c.Type) {
				metrics.IngestedEvents.WithLabelValues(metrics.StatusUnregistered).Inc()
			}
		}

		if len(errs) > 0 {
			errsByIndex[i] = errs
			failed++
			continue
		}

		survivors = append(survivors, survivor{
			event: models.Event{
				EventID:       uuid.Must(uuid.NewV7()).String(),
				TenantID:      c.TenantID,
				AccountID:     c.AccountID,
				CorrelationID: c.CorrelationID,
				Type:          c.Type,
				EntityType:    c.EntityType,
				EntityID:      c.EntityID,
				Payload:       c.Payload,
				TriggeredBy:   c.TriggeredBy,
				TriggeredAt:   c.TriggeredAt,
				CreatedAt:     time.Now().UTC(),
			},
			key: c.IdempotencyKey,
		})
	}

	if failed > 0 {
		failures := make([]models.EventError, len(batch))
		for i, c := range batch {
			errs := errsByIndex[i]
			if errs == nil {
				errs = []string{}
			}
			failures[i] = models.EventError{Index: i, Type: c.Type, Errors: errs}
		}
		metrics.IngestedEvents.WithLabelValues(metrics.StatusRejected).Add(float64(failed))
		return Result{Failures: failures}, nil
	}
	if len(survivors) == 0 {
		return res, nil
	}

	// Append with a single retry for keys that raced past the earlier
	// duplicate check; the unique constraint is the arbiter.
	for attempt := 0; ; attempt++ {
		events := make([]models.Event, len(survivors))
		keys := make([]string, len(survivors))
		for i, s := range survivors {
			events[i] = s.event
			keys[i] = s.key
		}

		appended, racedKey, err := p.appendBatch(ctx, events, keys)
		if err != nil {
			return Result{}, err
		}
		if racedKey == "" {
			res.Appended = appended
			metrics.IngestedEvents.WithLabelValues(metrics.StatusAppended).Add(float64(len(appended)))
			return res, nil
		}
		if attempt > 0 {
			return Result{}, fmt.Errorf("%w: idempotency key %s raced twice", ErrTransient, racedKey)
		}

		p.logger.Info("Idempotency key raced with concurrent ingestion, retrying", "key", racedKey)
		kept := survivors[:0]
		for _, s := range survivors {
			if s.key == racedKey {
				res.Duplicates = append(res.Duplicates, s.key)
				metrics.IngestedEvents.WithLabelValues(metrics.StatusDuplicate).Inc()
				continue
			}
			kept = append(kept, s)
		}
		survivors = kept
		if len(survivors) == 0 {
			return res, nil
		}
	}
}

// appendBatch records the keys and appends the events in one transaction.
// On an idempotency-key unique violation it rolls back and returns the
// offending key so the caller can reclassify it as a duplicate.
func (p *Pipeline) appendBatch(ctx context.Context, events []models.Event, keys []string) ([]models.Event, string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, key := range keys {
		if _, err := p.ledger.Record(ctx, tx, key); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil, key, nil
			}
			return nil, "", fmt.Errorf("failed to record idempotency key %d: %w", i, err)
		}
	}

	ids, err := p.store.AppendEvents(ctx, tx, events)
	if err != nil {
		return nil, "", fmt.Errorf("failed to append events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("failed to commit ingestion: %w", err)
	}

	for i := range events {
		events[i].ID = ids[i]
	}
	return events, "", nil
}

// structuralErrors checks the candidate envelope before payload validation.
func structuralErrors(c models.CandidateEvent) []string {
	var errs []string
	if c.Type == "" {
		errs = append(errs, `missing required field "type"`)
	}
	if c.TenantID == "" {
		errs = append(errs, `missing required field "tenantId"`)
	}
	if c.AccountID == "" {
		errs = append(errs, `missing required field "accountId"`)
	}
	if c.IdempotencyKey == "" {
		errs = append(errs, `missing required field "idempotencyKey"`)
	} else if _, err := uuid.Parse(c.IdempotencyKey); err != nil {
		errs = append(errs, `field "idempotencyKey" must be a UUID string`)
	}
	return errs
}
