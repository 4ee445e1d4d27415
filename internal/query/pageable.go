// Package query builds cursor-ordered, filter-composable listings over the
// event log. Every list endpoint goes through a Query so pagination behaves
// identically regardless of the filters in play.
package query

import (
	"context"
	"errors"
	"maps"

	"github.com/idot-digital/eventsource/internal/cursor"
	"github.com/idot-digital/eventsource/internal/models"
	"github.com/idot-digital/eventsource/internal/storage"
)

// ErrFilterMismatch is returned when a continuation token's echoed filters
// differ from the filters of the current request. Resuming under different
// filters would silently skip or repeat records, so the token is rejected
// and the client must restart the listing.
var ErrFilterMismatch = errors.New("continuation token does not match request filters")

// Filter parameter names. These double as the query-parameter names echoed
// inside continuation tokens.
const (
	FilterTenantID      = "tenantId"
	FilterAccountID     = "accountId"
	FilterCorrelationID = "correlationId"
	FilterType          = "type"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Page is one page of a listing, ascending by id.
type Page struct {
	Items   []models.Event
	HasMore bool
}

// Query accumulates filters, a resume position and a limit, then executes
// against a storage backend. Filters compose with logical AND.
type Query struct {
	filters map[string]string
	afterID int64
	limit   int
}

func New() *Query {
	return &Query{
		filters: make(map[string]string),
		limit:   DefaultLimit,
	}
}

// Filter adds an equality predicate. Empty values are ignored so handlers
// can pass query parameters through unchecked.
func (q *Query) Filter(name, value string) *Query {
	if value != "" {
		q.filters[name] = value
	}
	return q
}

// Limit sets the page size, clamped to [1, MaxLimit]. Non-positive values
// keep the default.
func (q *Query) Limit(n int) *Query {
	if n > 0 {
		q.limit = min(n, MaxLimit)
	}
	return q
}

// ContinueFrom resumes the listing from an encoded continuation token. The
// token's filter echo must match the filters already applied to this query;
// a mismatch returns ErrFilterMismatch, a corrupt token
// cursor.ErrMalformedToken.
func (q *Query) ContinueFrom(token string) error {
	t, err := cursor.Decode(token)
	if err != nil {
		return err
	}
	echo := t.Filters
	if echo == nil {
		echo = map[string]string{}
	}
	if !maps.Equal(echo, q.filters) {
		return ErrFilterMismatch
	}
	q.afterID = t.ResumeID
	return nil
}

// Execute fetches one page. It asks the store for limit+1 rows; the
// presence of the extra row is what signals a further page, avoiding a
// separate count query.
func (q *Query) Execute(ctx context.Context, db storage.DBTX, store storage.EventStore) (Page, error) {
	filter := storage.EventFilter{
		TenantID:      q.filters[FilterTenantID],
		AccountID:     q.filters[FilterAccountID],
		CorrelationID: q.filters[FilterCorrelationID],
		Type:          q.filters[FilterType],
		AfterID:       q.afterID,
		Limit:         q.limit + 1,
	}
	items, err := store.ListEvents(ctx, db, filter)
	if err != nil {
		return Page{}, err
	}
	page := Page{Items: items}
	if len(items) > q.limit {
		page.Items = items[:q.limit]
		page.HasMore = true
	}
	return page, nil
}

// NextToken encodes the continuation token for the page after p. Only
// meaningful when p.HasMore.
func (q *Query) NextToken(p Page) string {
	if len(p.Items) == 0 {
		return ""
	}
	var echo map[string]string
	if len(q.filters) > 0 {
		echo = maps.Clone(q.filters)
	}
	return cursor.Encode(p.Items[len(p.Items)-1].ID, echo)
}

// Filters returns the active filter set, keyed by parameter name.
func (q *Query) Filters() map[string]string {
	return maps.Clone(q.filters)
}
