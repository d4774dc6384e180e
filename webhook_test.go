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

package bookingcore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parkerflight/bookingcore/database"
	"github.com/parkerflight/bookingcore/database/mocks"
	"github.com/parkerflight/bookingcore/model"
	"github.com/parkerflight/bookingcore/notification"
)

const testSecret = "whsec_test_secret"

type fakeNotifier struct {
	updates []notification.BookingUpdate
	err     error
}

func (f *fakeNotifier) Notify(_ context.Context, update notification.BookingUpdate) error {
	f.updates = append(f.updates, update)
	return f.err
}

func signPayload(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestProcessor() (*WebhookProcessor, *mocks.MockDataSource, *fakeNotifier) {
	datasource := new(mocks.MockDataSource)
	notifier := &fakeNotifier{}
	return NewWebhookProcessor(datasource, notifier, testSecret), datasource, notifier
}

func ingest(t *testing.T, p *WebhookProcessor, body []byte) (*model.ProcessingResult, error) {
	t.Helper()
	timestamp := "1735689600"
	return p.Ingest(context.Background(), body, signPayload(testSecret, timestamp, body), timestamp)
}

func TestIngestRejectsBadSignature(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	body := []byte(`{"id":"evt_1","type":"order.created","data":{"id":"ord_1"}}`)
	_, err := p.Ingest(context.Background(), body, "sha256=not-the-right-mac", "1735689600")

	var sigErr *InvalidSignatureError
	require.ErrorAs(t, err, &sigErr)
	datasource.AssertNotCalled(t, "GetWebhookEvent", mock.Anything, mock.Anything)
}

func TestIngestRejectsMissingSignatureHeaders(t *testing.T) {
	p, _, _ := newTestProcessor()

	body := []byte(`{"id":"evt_1","type":"order.created","data":{"id":"ord_1"}}`)
	_, err := p.Ingest(context.Background(), body, "", "")

	var sigErr *InvalidSignatureError
	require.ErrorAs(t, err, &sigErr)
}

func TestVerifySignatureAcceptsPrefixedHeader(t *testing.T) {
	p, _, _ := newTestProcessor()

	body := []byte(`{"id":"evt_1"}`)
	timestamp := "1735689600"
	signature := "sha256=" + signPayload(testSecret, timestamp, body)

	assert.NoError(t, p.VerifySignature(body, signature, timestamp))
}

func TestVerifySignatureSkippedWithoutSecret(t *testing.T) {
	datasource := new(mocks.MockDataSource)
	p := NewWebhookProcessor(datasource, &fakeNotifier{}, "")

	assert.NoError(t, p.VerifySignature([]byte(`{}`), "", ""))
}

func TestIngestOrderCreated(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	datasource.On("GetWebhookEvent", mock.Anything, "evt_1").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(nil)
	datasource.On("FindOrderByProviderID", mock.Anything, "ord_1").Return(&model.BookingOrder{
		BookingID: "bkg_1",
		UserID:    "usr_1",
		Status:    model.StatusPaymentAuthorized,
	}, nil)
	datasource.On("UpdateOrderStatus", mock.Anything, "bkg_1", model.StatusOrderCreated, mock.Anything).Return(nil)
	datasource.On("MarkEventProcessed", mock.Anything, "evt_1", "").Return(nil)

	body := []byte(`{"id":"evt_1","type":"order.created","data":{"id":"ord_1","status":"pending"}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.False(t, result.Duplicate)
	assert.Equal(t, "bkg_1", result.BookingID)
	assert.Equal(t, model.StatusOrderCreated, result.NewStatus)
	assert.Equal(t, "evt_1", result.EventID)
	datasource.AssertExpectations(t)
}

func TestIngestDuplicateEventIsNoOp(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	datasource.On("GetWebhookEvent", mock.Anything, "evt_1").Return(&model.WebhookEvent{
		ExternalEventID: "evt_1",
		Processed:       true,
	}, nil)

	body := []byte(`{"id":"evt_1","type":"order.created","data":{"id":"ord_1"}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	datasource.AssertNotCalled(t, "InsertWebhookEvent", mock.Anything, mock.Anything)
	datasource.AssertNotCalled(t, "FindOrderByProviderID", mock.Anything, mock.Anything)
}

func TestIngestConcurrentDuplicateDelivery(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	// The dedup lookup misses but the insert loses the race to a concurrent
	// delivery of the same event id.
	datasource.On("GetWebhookEvent", mock.Anything, "evt_1").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(database.ErrDuplicateEvent)

	body := []byte(`{"id":"evt_1","type":"order.created","data":{"id":"ord_1"}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	datasource.AssertNotCalled(t, "FindOrderByProviderID", mock.Anything, mock.Anything)
}

func TestIngestRejectsStatusRegression(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	datasource.On("GetWebhookEvent", mock.Anything, "evt_2").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(nil)
	datasource.On("FindOrderByProviderID", mock.Anything, "ord_1").Return(&model.BookingOrder{
		BookingID: "bkg_1",
		Status:    model.StatusTicketed,
	}, nil)
	datasource.On("MarkEventProcessed", mock.Anything, "evt_2", mock.MatchedBy(func(s string) bool {
		return s != ""
	})).Return(nil)

	// order.created would regress ticketed -> order_created.
	body := []byte(`{"id":"evt_2","type":"order.created","data":{"id":"ord_1","status":"pending"}}`)
	result, err := ingest(t, p, body)

	// A lifecycle rejection is terminal for the event, not a delivery
	// failure: the provider must not redeliver.
	require.NoError(t, err)
	assert.False(t, result.Handled)
	assert.Contains(t, result.Reason, "invalid status transition")
	datasource.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	datasource.AssertExpectations(t)
}

func TestIngestDuplicateStatusIsNoOp(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	datasource.On("GetWebhookEvent", mock.Anything, "evt_3").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(nil)
	datasource.On("FindOrderByProviderID", mock.Anything, "ord_1").Return(&model.BookingOrder{
		BookingID: "bkg_1",
		Status:    model.StatusTicketed,
	}, nil)
	datasource.On("MarkEventProcessed", mock.Anything, "evt_3", "").Return(nil)

	body := []byte(`{"id":"evt_3","type":"order.updated","data":{"id":"ord_1","status":"ticketed"}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, model.StatusTicketed, result.NewStatus)
	datasource.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestTicketedSendsNotification(t *testing.T) {
	p, datasource, notifier := newTestProcessor()

	datasource.On("GetWebhookEvent", mock.Anything, "evt_4").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(nil)
	datasource.On("FindOrderByProviderID", mock.Anything, "ord_1").Return(&model.BookingOrder{
		BookingID: "bkg_1",
		UserID:    "usr_1",
		Status:    model.StatusOrderCreated,
	}, nil)
	datasource.On("UpdateOrderStatus", mock.Anything, "bkg_1", model.StatusTicketed, mock.Anything).Return(nil)
	datasource.On("MarkEventProcessed", mock.Anything, "evt_4", "").Return(nil)

	body := []byte(`{"id":"evt_4","type":"order.updated","data":{"id":"ord_1","status":"confirmed","booking_reference":"PNR123"}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.True(t, result.Handled)
	require.Len(t, notifier.updates, 1)
	assert.Equal(t, "usr_1", notifier.updates[0].UserID)
	assert.Equal(t, model.StatusTicketed, notifier.updates[0].Status)
	assert.Equal(t, "PNR123", notifier.updates[0].BookingReference)
}

func TestIngestNotificationFailureIsSwallowed(t *testing.T) {
	p, datasource, notifier := newTestProcessor()
	notifier.err = errors.New("notification sink unreachable")

	datasource.On("GetWebhookEvent", mock.Anything, "evt_5").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(nil)
	datasource.On("FindOrderByProviderID", mock.Anything, "ord_1").Return(&model.BookingOrder{
		BookingID: "bkg_1",
		Status:    model.StatusOrderCreated,
	}, nil)
	datasource.On("UpdateOrderStatus", mock.Anything, "bkg_1", model.StatusCancelled, mock.Anything).Return(nil)
	datasource.On("MarkEventProcessed", mock.Anything, "evt_5", "").Return(nil)

	body := []byte(`{"id":"evt_5","type":"order.cancelled","data":{"id":"ord_1","status":"cancelled"}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, model.StatusCancelled, result.NewStatus)
}

func TestIngestUnknownOrderIsAccepted(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	datasource.On("GetWebhookEvent", mock.Anything, "evt_6").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(nil)
	datasource.On("FindOrderByProviderID", mock.Anything, "ord_unknown").Return(nil, nil)
	datasource.On("MarkEventProcessed", mock.Anything, "evt_6", "").Return(nil)

	body := []byte(`{"id":"evt_6","type":"order.updated","data":{"id":"ord_unknown","status":"confirmed"}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.False(t, result.Handled)
	assert.Equal(t, "booking not found", result.Reason)
}

func TestIngestUnhandledEventType(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	datasource.On("GetWebhookEvent", mock.Anything, "evt_7").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(nil)
	datasource.On("MarkEventProcessed", mock.Anything, "evt_7", "").Return(nil)

	body := []byte(`{"id":"evt_7","type":"payment.settled","data":{"id":"ord_1"}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.False(t, result.Handled)
	assert.Equal(t, "unhandled event type", result.Reason)
}

func TestIngestScheduleChanged(t *testing.T) {
	p, datasource, notifier := newTestProcessor()

	datasource.On("GetWebhookEvent", mock.Anything, "evt_8").Return(nil, nil)
	datasource.On("InsertWebhookEvent", mock.Anything, mock.Anything).Return(nil)
	datasource.On("FindOrderByProviderID", mock.Anything, "ord_1").Return(&model.BookingOrder{
		BookingID: "bkg_1",
		UserID:    "usr_1",
		Status:    model.StatusTicketed,
	}, nil)
	// A schedule change never moves the lifecycle status.
	datasource.On("UpdateOrderStatus", mock.Anything, "bkg_1", model.StatusTicketed, mock.Anything).Return(nil)
	datasource.On("MarkEventProcessed", mock.Anything, "evt_8", "").Return(nil)

	body := []byte(`{"id":"evt_8","type":"order.schedule_changed","data":{"id":"ord_1","schedule_changes":{"departure":"2026-09-10T08:00:00Z"}}}`)
	result, err := ingest(t, p, body)

	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, model.StatusTicketed, result.NewStatus)
	require.Len(t, notifier.updates, 1)
	assert.Equal(t, "schedule_changed", notifier.updates[0].Status)
}

func TestIngestMissingEventID(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	body := []byte(`{"type":"order.created","data":{"id":"ord_1"}}`)
	_, err := ingest(t, p, body)

	var badPayload *MalformedPayloadError
	require.ErrorAs(t, err, &badPayload)
	datasource.AssertNotCalled(t, "GetWebhookEvent", mock.Anything, mock.Anything)
}

func TestIngestRejectsUnparseableBody(t *testing.T) {
	p, datasource, _ := newTestProcessor()

	// The signature is valid for these bytes; the JSON is not.
	body := []byte(`{"id":`)
	_, err := ingest(t, p, body)

	var badPayload *MalformedPayloadError
	require.ErrorAs(t, err, &badPayload)
	datasource.AssertNotCalled(t, "GetWebhookEvent", mock.Anything, mock.Anything)
}
