package v1

import (
	"encoding/json"
	"time"
)

// triggerDiscoveryRequest is the body for POST /discovery/trigger.
type triggerDiscoveryRequest struct {
	ArtistID *int64 `json:"artist_id,omitempty"`
}

// triggerResponse acknowledges a manual trigger.
type triggerResponse struct {
	Triggered bool `json:"triggered"`
}

// eventResponse is the API representation of a logged event.
type eventResponse struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// listEventsResponse is the response for GET /events.
type listEventsResponse struct {
	Items []eventResponse `json:"items"`
}

// errorResponse is the standard error shape.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
