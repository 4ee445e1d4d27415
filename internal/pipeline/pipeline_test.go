package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/idot-digital/eventsource/internal/eventtype"
	"github.com/idot-digital/eventsource/internal/ledger"
	"github.com/idot-digital/eventsource/internal/models"
	sqlitestore "github.com/idot-digital/eventsource/internal/storage/sqlite"
)

func testPipeline(t *testing.T) (*Pipeline, *sql.DB, *sqlitestore.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := sqlitestore.New()
	_, err = db.Exec(store.Schema())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := ledger.New(db, store, logger)
	return New(eventtype.BuiltinRegistry(), led, store, db, logger), db, store
}

func candidate(eventType string, payload string) models.CandidateEvent {
	return models.CandidateEvent{
		TenantID:       "tenant-1",
		AccountID:      "acct-1",
		Type:           eventType,
		Payload:        json.RawMessage(payload),
		IdempotencyKey: uuid.NewString(),
	}
}

func validActivity() models.CandidateEvent {
	return candidate("activity.created.v1", `{
		"activityId": "df6b5c5e-45a3-4e4a-9f6d-2f1f9a3f2a11",
		"name": "Pour foundation",
		"status": "planned"
	}`)
}

func storedCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n))
	return n
}

func TestIngestValidBatch(t *testing.T) {
	p, db, _ := testPipeline(t)

	res, err := p.Ingest(context.Background(), []models.CandidateEvent{validActivity(), validActivity()})
	require.NoError(t, err)
	assert.False(t, res.Rejected())
	require.Len(t, res.Appended, 2)
	assert.Empty(t, res.Duplicates)
	assert.Less(t, res.Appended[0].ID, res.Appended[1].ID)
	assert.NotEmpty(t, res.Appended[0].EventID)
	assert.False(t, res.Appended[0].CreatedAt.IsZero())
	assert.Equal(t, 2, storedCount(t, db))
}

func TestIngestEmptyBatch(t *testing.T) {
	p, db, _ := testPipeline(t)
	res, err := p.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Appended)
	assert.Zero(t, storedCount(t, db))
}

func TestIngestSameBatchTwiceAppendsOnce(t *testing.T) {
	p, db, _ := testPipeline(t)
	batch := []models.CandidateEvent{validActivity(), validActivity()}

	first, err := p.Ingest(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, first.Appended, 2)

	second, err := p.Ingest(context.Background(), batch)
	require.NoError(t, err)
	assert.False(t, second.Rejected(), "duplicates are not validation errors")
	assert.Empty(t, second.Appended)
	assert.ElementsMatch(t, []string{batch[0].IdempotencyKey, batch[1].IdempotencyKey}, second.Duplicates)
	assert.Equal(t, 2, storedCount(t, db))
}

func TestIngestSharedKeyWithinBatchAppendsOnce(t *testing.T) {
	p, db, _ := testPipeline(t)
	a := validActivity()
	b := validActivity()
	b.IdempotencyKey = a.IdempotencyKey

	res, err := p.Ingest(context.Background(), []models.CandidateEvent{a, b})
	require.NoError(t, err)
	require.Len(t, res.Appended, 1)
	assert.Equal(t, []string{a.IdempotencyKey}, res.Duplicates)
	assert.Equal(t, 1, storedCount(t, db))
}

func TestIngestRejectsWholeBatchOnValidationFailure(t *testing.T) {
	p, db, _ := testPipeline(t)

	bad := candidate("activity.created.v1", `{"name":"","status":"demolished","floors":1}`)
	res, err := p.Ingest(context.Background(), []models.CandidateEvent{validActivity(), bad, validActivity()})
	require.NoError(t, err)

	require.True(t, res.Rejected())
	assert.Empty(t, res.Appended)
	require.Len(t, res.Failures, 3, "one entry per batch position")
	for i, failure := range res.Failures {
		assert.Equal(t, i, failure.Index)
		assert.Equal(t, "activity.created.v1", failure.Type)
	}
	assert.Empty(t, res.Failures[0].Errors)
	assert.Len(t, res.Failures[1].Errors, 4)
	assert.Empty(t, res.Failures[2].Errors)

	assert.Zero(t, storedCount(t, db), "nothing reaches the log on rejection")
}

func TestIngestRejectionDoesNotRecordKeys(t *testing.T) {
	p, db, _ := testPipeline(t)

	good := validActivity()
	bad := candidate("activity.created.v1", `{}`)
	res, err := p.Ingest(context.Background(), []models.CandidateEvent{good, bad})
	require.NoError(t, err)
	require.True(t, res.Rejected())

	// The good event can be resubmitted alone; its key was never burned.
	res, err = p.Ingest(context.Background(), []models.CandidateEvent{good})
	require.NoError(t, err)
	assert.Len(t, res.Appended, 1)
	assert.Empty(t, res.Duplicates)
	assert.Equal(t, 1, storedCount(t, db))
}

func TestIngestUnregisteredTypePassesThrough(t *testing.T) {
	p, db, _ := testPipeline(t)

	res, err := p.Ingest(context.Background(), []models.CandidateEvent{
		candidate("crane.lifted.v9", `{"whatever":true}`),
	})
	require.NoError(t, err)
	assert.False(t, res.Rejected())
	assert.Len(t, res.Appended, 1)
	assert.Equal(t, 1, storedCount(t, db))
}

func TestIngestStructuralErrors(t *testing.T) {
	p, _, _ := testPipeline(t)

	res, err := p.Ingest(context.Background(), []models.CandidateEvent{{
		Payload: json.RawMessage(`{}`),
	}})
	require.NoError(t, err)
	require.True(t, res.Rejected())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, []string{
		`missing required field "type"`,
		`missing required field "tenantId"`,
		`missing required field "accountId"`,
		`missing required field "idempotencyKey"`,
	}, res.Failures[0].Errors)
}

func TestIngestInvalidIdempotencyKey(t *testing.T) {
	p, _, _ := testPipeline(t)

	c := validActivity()
	c.IdempotencyKey = "not-a-uuid"
	res, err := p.Ingest(context.Background(), []models.CandidateEvent{c})
	require.NoError(t, err)
	require.True(t, res.Rejected())
	assert.Equal(t, []string{`field "idempotencyKey" must be a UUID string`}, res.Failures[0].Errors)
}

func TestIngestSkipsKeyRecordedByAnotherWriter(t *testing.T) {
	p, db, store := testPipeline(t)
	ctx := context.Background()

	a := validActivity()
	b := validActivity()
	_, err := store.InsertKey(ctx, db, b.IdempotencyKey)
	require.NoError(t, err)

	res, err := p.Ingest(ctx, []models.CandidateEvent{a, b})
	require.NoError(t, err)
	assert.Len(t, res.Appended, 1)
	assert.Equal(t, []string{b.IdempotencyKey}, res.Duplicates)
	assert.Equal(t, 1, storedCount(t, db))
}

func TestAppendBatchReportsRacedKey(t *testing.T) {
	p, db, store := testPipeline(t)
	ctx := context.Background()

	// A concurrent ingestion wins the key between the pipeline's duplicate
	// check and its append transaction. The unique constraint detects it and
	// the whole transaction rolls back.
	raced := uuid.NewString()
	_, err := store.InsertKey(ctx, db, raced)
	require.NoError(t, err)

	events := []models.Event{{
		EventID:   uuid.NewString(),
		TenantID:  "tenant-1",
		AccountID: "acct-1",
		Type:      "crane.lifted.v9",
		Payload:   json.RawMessage(`{}`),
	}}
	appended, racedKey, err := p.appendBatch(ctx, events, []string{raced})
	require.NoError(t, err)
	assert.Equal(t, raced, racedKey)
	assert.Empty(t, appended)
	assert.Zero(t, storedCount(t, db))
}
