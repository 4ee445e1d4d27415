package models

import (
	"encoding/json"
	"time"
)

// Event is one immutable record of the append-only log. ID is the
// store-assigned, strictly increasing cursor key; EventID is the globally
// unique identifier assigned at ingestion time.
type Event struct {
	ID            int64           `json:"id"`
	EventID       string          `json:"eventId"`
	TenantID      string          `json:"tenantId"`
	AccountID     string          `json:"accountId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Type          string          `json:"type"`
	EntityType    string          `json:"entityType,omitempty"`
	EntityID      string          `json:"entityId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	TriggeredBy   string          `json:"triggeredBy,omitempty"`
	TriggeredAt   string          `json:"triggeredAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// CandidateEvent is an event as submitted by a caller, before validation
// and durable append.
type CandidateEvent struct {
	TenantID       string          `json:"tenantId"`
	AccountID      string          `json:"accountId"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	Type           string          `json:"type"`
	EntityType     string          `json:"entityType,omitempty"`
	EntityID       string          `json:"entityId,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	TriggeredBy    string          `json:"triggeredBy,omitempty"`
	TriggeredAt    string          `json:"triggeredAt,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

// EventError reports the validation outcome for one batch position. On a
// rejected batch every position gets an entry; Errors is empty for
// candidates that passed.
type EventError struct {
	Index  int      `json:"index"`
	Type   string   `json:"type"`
	Errors []string `json:"errors"`
}

type IngestResponse struct {
	Appended   int      `json:"appended"`
	Duplicates []string `json:"duplicates,omitempty"`
	IDs        []int64  `json:"ids,omitempty"`
}

type IngestRejection struct {
	Error    string       `json:"error"`
	Failures []EventError `json:"failures"`
}

type Links struct {
	Self string `json:"self"`
	Next string `json:"next,omitempty"`
}

type ListResponse struct {
	Items []Event `json:"items"`
	Links Links   `json:"links"`
}
