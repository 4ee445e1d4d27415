package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/idot-digital/eventsource/internal/cursor"
	"github.com/idot-digital/eventsource/internal/models"
	sqlitestore "github.com/idot-digital/eventsource/internal/storage/sqlite"
)

func seededStore(t *testing.T, n int) (*sql.DB, *sqlitestore.Store, []int64) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := sqlitestore.New()
	_, err = db.Exec(store.Schema())
	require.NoError(t, err)

	events := make([]models.Event, n)
	for i := range events {
		events[i] = models.Event{
			EventID:   uuid.NewString(),
			TenantID:  "tenant-1",
			AccountID: "acct-1",
			Type:      "activity.created.v1",
			Payload:   json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i)),
			CreatedAt: time.Now().UTC(),
		}
	}
	ids, err := store.AppendEvents(context.Background(), db, events)
	require.NoError(t, err)
	return db, store, ids
}

func TestPaginationWalksEveryRowExactlyOnce(t *testing.T) {
	db, store, ids := seededStore(t, 5)
	ctx := context.Background()

	var walked []int64
	token := ""
	pages := 0
	for {
		q := New().Filter(FilterTenantID, "tenant-1").Limit(2)
		if token != "" {
			require.NoError(t, q.ContinueFrom(token))
		}
		page, err := q.Execute(ctx, db, store)
		require.NoError(t, err)
		for _, e := range page.Items {
			walked = append(walked, e.ID)
		}
		pages++
		if !page.HasMore {
			assert.Empty(t, q.NextToken(Page{}), "no token past the final page")
			break
		}
		token = q.NextToken(page)
		require.NotEmpty(t, token)
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, ids, walked, "every row exactly once, ascending")
}

func TestFirstPageLimitAndNext(t *testing.T) {
	db, store, ids := seededStore(t, 5)
	ctx := context.Background()

	q := New().Limit(2)
	page, err := q.Execute(ctx, db, store)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[:2], []int64{page.Items[0].ID, page.Items[1].ID})

	tok, err := cursor.Decode(q.NextToken(page))
	require.NoError(t, err)
	assert.Equal(t, ids[1], tok.ResumeID)
}

func TestExactMultipleHasNoExtraPage(t *testing.T) {
	db, store, _ := seededStore(t, 4)
	ctx := context.Background()

	q := New().Limit(4)
	page, err := q.Execute(ctx, db, store)
	require.NoError(t, err)
	assert.Len(t, page.Items, 4)
	assert.False(t, page.HasMore)
}

func TestContinueFromRejectsMalformedToken(t *testing.T) {
	q := New()
	assert.ErrorIs(t, q.ContinueFrom("not-base64!!"), cursor.ErrMalformedToken)
}

func TestContinueFromRejectsFilterMismatch(t *testing.T) {
	token := cursor.Encode(3, map[string]string{FilterTenantID: "tenant-1"})

	// Filter dropped between pages.
	err := New().ContinueFrom(token)
	assert.ErrorIs(t, err, ErrFilterMismatch)

	// Filter changed between pages.
	err = New().Filter(FilterTenantID, "tenant-2").ContinueFrom(token)
	assert.ErrorIs(t, err, ErrFilterMismatch)

	// Extra filter added between pages.
	err = New().Filter(FilterTenantID, "tenant-1").Filter(FilterType, "x.y.v1").ContinueFrom(token)
	assert.ErrorIs(t, err, ErrFilterMismatch)

	// Matching filters resume cleanly.
	q := New().Filter(FilterTenantID, "tenant-1")
	require.NoError(t, q.ContinueFrom(token))
}

func TestTokenEchoesFilters(t *testing.T) {
	db, store, _ := seededStore(t, 3)
	ctx := context.Background()

	q := New().Filter(FilterTenantID, "tenant-1").Filter(FilterType, "activity.created.v1").Limit(1)
	page, err := q.Execute(ctx, db, store)
	require.NoError(t, err)
	require.True(t, page.HasMore)

	tok, err := cursor.Decode(q.NextToken(page))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		FilterTenantID: "tenant-1",
		FilterType:     "activity.created.v1",
	}, tok.Filters)
}

func TestLimitClamping(t *testing.T) {
	q := New().Limit(0)
	assert.Equal(t, DefaultLimit, q.limit)

	q = New().Limit(MaxLimit + 1000)
	assert.Equal(t, MaxLimit, q.limit)
}

func TestFilterIgnoresEmptyValues(t *testing.T) {
	q := New().Filter(FilterTenantID, "").Filter(FilterType, "a.b.v1")
	assert.Equal(t, map[string]string{FilterType: "a.b.v1"}, q.Filters())
}
