package model

import (
	"encoding/json"
	"time"
)

// Webhook event types emitted by the upstream booking provider.
const (
	EventOrderCreated    = "order.created"
	EventOrderUpdated    = "order.updated"
	EventOrderCancelled  = "order.cancelled"
	EventScheduleChanged = "order.schedule_changed"
)

// WebhookEvent is the durable record of one inbound provider event. The
// ExternalEventID is globally unique across all time; a second event carrying
// the same id is a no-op, not an error. Rows are never deleted (audit trail).
type WebhookEvent struct {
	ExternalEventID string          `json:"external_event_id"`
	EventType       string          `json:"event_type"`
	ProviderOrderID string          `json:"provider_order_id"`
	Payload         json.RawMessage `json:"payload"`
	Processed       bool            `json:"processed"`
	ProcessingError string          `json:"processing_error,omitempty"`
	ReceivedAt      time.Time       `json:"received_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
}

// ProcessingResult describes the outcome of dispatching one webhook event.
type ProcessingResult struct {
	Handled   bool   `json:"handled"`
	Duplicate bool   `json:"duplicate"`
	Reason    string `json:"reason,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	EventID   string `json:"event_id,omitempty"`
}
