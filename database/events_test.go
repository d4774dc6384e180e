/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkerflight/bookingcore/model"
)

func TestInsertWebhookEvent(t *testing.T) {
	d, mock := newMockDatasource(t)

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs("evt_1", model.EventOrderCreated, "ord_1", []byte(`{"id":"evt_1"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := d.InsertWebhookEvent(context.Background(), &model.WebhookEvent{
		ExternalEventID: "evt_1",
		EventType:       model.EventOrderCreated,
		ProviderOrderID: "ord_1",
		Payload:         []byte(`{"id":"evt_1"}`),
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertWebhookEventUniqueViolation(t *testing.T) {
	d, mock := newMockDatasource(t)

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnError(&pq.Error{Code: pq.ErrorCode(pqUniqueViolation)})

	err := d.InsertWebhookEvent(context.Background(), &model.WebhookEvent{
		ExternalEventID: "evt_1",
		EventType:       model.EventOrderCreated,
	})

	// The unique constraint hit is surfaced as "already seen", not a failure.
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestGetWebhookEvent(t *testing.T) {
	d, mock := newMockDatasource(t)

	received := time.Now()
	processed := received.Add(time.Second)
	columns := []string{"external_event_id", "event_type", "provider_order_id", "payload", "processed", "processing_error", "received_at", "processed_at"}
	mock.ExpectQuery(`(?s)SELECT .* FROM webhook_events`).
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("evt_1", model.EventOrderUpdated, "ord_1", []byte(`{"id":"evt_1"}`), true, "", received, processed))

	event, err := d.GetWebhookEvent(context.Background(), "evt_1")

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "evt_1", event.ExternalEventID)
	assert.True(t, event.Processed)
	require.NotNil(t, event.ProcessedAt)
	assert.WithinDuration(t, processed, *event.ProcessedAt, time.Millisecond)
}

func TestGetWebhookEventAbsent(t *testing.T) {
	d, mock := newMockDatasource(t)

	mock.ExpectQuery(`(?s)SELECT .* FROM webhook_events`).
		WithArgs("evt_unknown").
		WillReturnRows(sqlmock.NewRows([]string{"external_event_id"}))

	event, err := d.GetWebhookEvent(context.Background(), "evt_unknown")

	assert.NoError(t, err)
	assert.Nil(t, event)
}

func TestMarkEventProcessed(t *testing.T) {
	d, mock := newMockDatasource(t)

	mock.ExpectExec("UPDATE webhook_events").
		WithArgs("evt_1", true, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := d.MarkEventProcessed(context.Background(), "evt_1", "")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventProcessedWithError(t *testing.T) {
	d, mock := newMockDatasource(t)

	mock.ExpectExec("UPDATE webhook_events").
		WithArgs("evt_1", false, "invalid status transition ticketed -> order_created for booking bkg_1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := d.MarkEventProcessed(context.Background(), "evt_1", "invalid status transition ticketed -> order_created for booking bkg_1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
