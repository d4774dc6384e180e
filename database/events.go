package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/parkerflight/bookingcore/model"
)

// ErrDuplicateEvent is returned by InsertWebhookEvent when a row with the
// same external event id already exists. Callers treat it as "already seen",
// not as a failure.
var ErrDuplicateEvent = errors.New("webhook event already recorded")

// pqUniqueViolation is the Postgres error code for a unique constraint hit.
const pqUniqueViolation = "23505"

// GetWebhookEvent retrieves an event row by its external id. An absent row
// returns (nil, nil).
func (d Datasource) GetWebhookEvent(ctx context.Context, externalEventID string) (*model.WebhookEvent, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT external_event_id, event_type, COALESCE(provider_order_id, ''), payload, processed, COALESCE(processing_error, ''), received_at, processed_at
		FROM webhook_events
		WHERE external_event_id = $1
	`, externalEventID)

	event := model.WebhookEvent{}
	var payload []byte
	var processedAt sql.NullTime
	err := row.Scan(&event.ExternalEventID, &event.EventType, &event.ProviderOrderID, &payload, &event.Processed, &event.ProcessingError, &event.ReceivedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	event.Payload = payload
	if processedAt.Valid {
		event.ProcessedAt = &processedAt.Time
	}
	return &event, nil
}

// InsertWebhookEvent inserts the event row with processed = false before any
// business logic runs, so a crash mid-processing leaves a durable,
// re-drivable record. The unique constraint on external_event_id turns a
// concurrent double-delivery into ErrDuplicateEvent.
func (d Datasource) InsertWebhookEvent(ctx context.Context, event *model.WebhookEvent) error {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO webhook_events (external_event_id, event_type, provider_order_id, payload, processed, received_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`, event.ExternalEventID, event.EventType, event.ProviderOrderID, []byte(event.Payload), event.ReceivedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

// MarkEventProcessed records the dispatch outcome for an event. An empty
// processingError marks it processed; otherwise the error text is stored and
// the row stays re-drivable.
func (d Datasource) MarkEventProcessed(ctx context.Context, externalEventID string, processingError string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE webhook_events
		SET processed = $2, processing_error = NULLIF($3, ''), processed_at = NOW()
		WHERE external_event_id = $1
	`, externalEventID, processingError == "", processingError)
	return err
}
