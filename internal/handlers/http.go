package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/idot-digital/eventsource/internal/models"
	"github.com/idot-digital/eventsource/internal/pipeline"
	"github.com/idot-digital/eventsource/internal/query"
	"github.com/idot-digital/eventsource/internal/server"
	"github.com/idot-digital/eventsource/internal/storage"
)

const streamReplayBatch = 100

// HTTPHandlers implements the HTTP server handlers
type HTTPHandlers struct {
	server *server.Server
}

func NewHTTPHandlers(s *server.Server) *HTTPHandlers {
	return &HTTPHandlers{server: s}
}

// IngestEventsHandler accepts a JSON array of candidate events and ingests
// them as one atomic batch.
func (h *HTTPHandlers) IngestEventsHandler(w http.ResponseWriter, r *http.Request) {
	var batch []models.CandidateEvent
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.server.GetPipeline().Ingest(r.Context(), batch)
	if err != nil {
		h.server.GetLogger().Error("Failed to ingest batch", "error", err)
		if errors.Is(err, pipeline.ErrTransient) {
			http.Error(w, "Ingestion conflict, retry the request", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Failed to ingest events", http.StatusInternalServerError)
		return
	}

	if result.Rejected() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.IngestRejection{
			Error:    "batch rejected",
			Failures: result.Failures,
		})
		return
	}

	for i := range result.Appended {
		h.server.GetEmitterChan() <- &result.Appended[i]
	}

	ids := make([]int64, len(result.Appended))
	for i, e := range result.Appended {
		ids[i] = e.ID
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.IngestResponse{
		Appended:   len(result.Appended),
		Duplicates: result.Duplicates,
		IDs:        ids,
	})
}

// ListEventsHandler returns a filtered page of the event log with a next
// link when more rows exist.
func (h *HTTPHandlers) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := query.New().
		Filter(query.FilterTenantID, params.Get(query.FilterTenantID)).
		Filter(query.FilterAccountID, params.Get(query.FilterAccountID)).
		Filter(query.FilterCorrelationID, params.Get(query.FilterCorrelationID)).
		Filter(query.FilterType, params.Get(query.FilterType))

	if limitStr := params.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		q.Limit(limit)
	}

	if token := params.Get("continuationToken"); token != "" {
		if err := q.ContinueFrom(token); err != nil {
			http.Error(w, fmt.Sprintf("Invalid continuation token: %v", err), http.StatusBadRequest)
			return
		}
	}

	page, err := q.Execute(r.Context(), h.server.GetDB(), h.server.GetStore())
	if err != nil {
		h.server.GetLogger().Error("Failed to list events", "error", err)
		http.Error(w, "Failed to list events", http.StatusInternalServerError)
		return
	}

	resp := models.ListResponse{
		Items: page.Items,
		Links: models.Links{Self: r.URL.RequestURI()},
	}
	if resp.Items == nil {
		resp.Items = []models.Event{}
	}
	if page.HasMore {
		next := url.Values{}
		for name, value := range q.Filters() {
			next.Set(name, value)
		}
		if limitStr := params.Get("limit"); limitStr != "" {
			next.Set("limit", limitStr)
		}
		next.Set("continuationToken", q.NextToken(page))
		resp.Links.Next = r.URL.Path + "?" + next.Encode()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetEventByIDHandler returns a single event by its log id.
func (h *HTTPHandlers) GetEventByIDHandler(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid id parameter", http.StatusBadRequest)
		return
	}

	event, err := h.server.GetStore().GetEventByID(r.Context(), h.server.GetDB(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		h.server.GetLogger().Error("Failed to get event", "id", id, "error", err)
		http.Error(w, "Failed to get event", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(event)
}

// StreamEventsHandler serves a tenant's events as a server-sent event
// stream: first the stored history, then live appends.
func (h *HTTPHandlers) StreamEventsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get(query.FilterTenantID)
	if tenantID == "" {
		http.Error(w, "Missing tenantId parameter", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	channel, listener, err := h.server.AttachListener()
	if err != nil {
		http.Error(w, "Too many active streams", http.StatusServiceUnavailable)
		return
	}
	defer h.server.DetachListener(listener)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := int64(0)

	// Replay stored history first; the listener attached above catches
	// anything appended meanwhile.
	for {
		events, err := h.server.GetStore().ListEvents(r.Context(), h.server.GetDB(), storage.EventFilter{
			TenantID: tenantID,
			AfterID:  lastID,
			Limit:    streamReplayBatch,
		})
		if err != nil {
			h.server.GetLogger().Error("Failed to replay events", "error", err)
			return
		}
		if len(events) == 0 {
			break
		}
		for i := range events {
			if !writeSSE(w, &events[i]) {
				return
			}
			lastID = events[i].ID
		}
		flusher.Flush()
	}
	flusher.Flush()

	for {
		select {
		case event := <-channel:
			if event.TenantID == tenantID && event.ID > lastID {
				if !writeSSE(w, event) {
					return
				}
				flusher.Flush()
				lastID = event.ID
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event *models.Event) bool {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return false
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", eventJSON)
	return err == nil
}
