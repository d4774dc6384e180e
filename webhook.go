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
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parkerflight/bookingcore/database"
	"github.com/parkerflight/bookingcore/model"
	"github.com/parkerflight/bookingcore/notification"
)

// WebhookProcessor deduplicates inbound provider events, drives the booking
// state machine and triggers side effects. Idempotency is at the event-id
// level: a redelivered event id is a no-op regardless of what the first
// delivery did.
type WebhookProcessor struct {
	datasource database.IDataSource
	notifier   notification.Notifier
	secret     string
}

// NewWebhookProcessor creates a processor over the repository and notifier
// collaborators. The secret is the shared HMAC key for signature
// verification.
func NewWebhookProcessor(db database.IDataSource, notifier notification.Notifier, secret string) *WebhookProcessor {
	return &WebhookProcessor{
		datasource: db,
		notifier:   notifier,
		secret:     secret,
	}
}

// providerEvent is the wire shape of one provider webhook delivery.
type providerEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		BookingReference string `json:"booking_reference"`
		Tickets          []struct {
			Number string `json:"number"`
		} `json:"tickets"`
		ScheduleChanges json.RawMessage `json:"schedule_changes"`
	} `json:"data"`
}

// Ingest runs the full webhook sequence: verify signature, deduplicate,
// persist, dispatch, record the outcome. Signature verification runs before
// any JSON parsing so unverified input is never processed. The returned
// ProcessingResult is safe to serialize into the HTTP response.
func (p *WebhookProcessor) Ingest(ctx context.Context, rawBody []byte, signature, timestamp string) (*model.ProcessingResult, error) {
	// Step 1: signature before parsing.
	if err := p.VerifySignature(rawBody, signature, timestamp); err != nil {
		return nil, err
	}

	var event providerEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, &MalformedPayloadError{Reason: err.Error()}
	}
	if event.ID == "" {
		return nil, &MalformedPayloadError{Reason: "missing event id"}
	}

	// Step 2: dedup fast path. The processed flag is irrelevant here; an
	// existing row of any state means the side effects already ran or will
	// run off the stored record.
	existing, err := p.datasource.GetWebhookEvent(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logrus.WithField("event_id", event.ID).Info("duplicate webhook event, skipping")
		return &model.ProcessingResult{Duplicate: true, EventID: event.ID}, nil
	}

	// Step 3: persist before processing so a crash mid-dispatch leaves a
	// durable, re-drivable record. A unique violation here means a concurrent
	// delivery won the race; treat it exactly like the dedup hit above.
	row := &model.WebhookEvent{
		ExternalEventID: event.ID,
		EventType:       event.Type,
		ProviderOrderID: event.Data.ID,
		Payload:         rawBody,
		ReceivedAt:      time.Now(),
	}
	if err := p.datasource.InsertWebhookEvent(ctx, row); err != nil {
		if errors.Is(err, database.ErrDuplicateEvent) {
			logrus.WithField("event_id", event.ID).Info("concurrent duplicate webhook event, skipping")
			return &model.ProcessingResult{Duplicate: true, EventID: event.ID}, nil
		}
		return nil, err
	}

	// Step 4: dispatch by event type.
	result, dispatchErr := p.dispatch(ctx, &event)

	// Step 5: record the outcome. Lifecycle rejections are terminal for this
	// event: it is marked processed-with-error and never re-driven, and the
	// response stays a success so the provider does not redeliver forever.
	var transitionErr *InvalidTransitionError
	if errors.As(dispatchErr, &transitionErr) {
		logrus.WithField("event_id", event.ID).Warn(dispatchErr)
		if err := p.datasource.MarkEventProcessed(ctx, event.ID, dispatchErr.Error()); err != nil {
			return nil, err
		}
		return &model.ProcessingResult{
			Handled: false,
			Reason:  dispatchErr.Error(),
			EventID: event.ID,
		}, nil
	}
	if dispatchErr != nil {
		if err := p.datasource.MarkEventProcessed(ctx, event.ID, dispatchErr.Error()); err != nil {
			logrus.WithField("event_id", event.ID).Error(err)
		}
		return nil, dispatchErr
	}

	if err := p.datasource.MarkEventProcessed(ctx, event.ID, ""); err != nil {
		return nil, err
	}
	result.EventID = event.ID
	return result, nil
}

// VerifySignature recomputes the HMAC-SHA256 of timestamp + "." + rawBody
// under the shared secret and compares it in constant time against the
// provided header value.
func (p *WebhookProcessor) VerifySignature(rawBody []byte, signature, timestamp string) error {
	if p.secret == "" {
		logrus.Warn("no webhook secret configured - skipping signature verification")
		return nil
	}
	if signature == "" || timestamp == "" {
		return &InvalidSignatureError{Reason: "missing signature or timestamp header"}
	}

	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	computed := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	expected := strings.TrimPrefix(signature, "sha256=")
	if !hmac.Equal([]byte(computed), []byte(expected)) {
		return &InvalidSignatureError{Reason: "signature mismatch"}
	}
	return nil
}

func (p *WebhookProcessor) dispatch(ctx context.Context, event *providerEvent) (*model.ProcessingResult, error) {
	switch event.Type {
	case model.EventOrderCreated:
		return p.handleOrderCreated(ctx, event)
	case model.EventOrderUpdated:
		return p.handleOrderUpdated(ctx, event)
	case model.EventOrderCancelled:
		return p.handleOrderCancelled(ctx, event)
	case model.EventScheduleChanged:
		return p.handleScheduleChanged(ctx, event)
	default:
		logrus.WithField("event_type", event.Type).Info("unhandled webhook event type")
		return &model.ProcessingResult{Handled: false, Reason: "unhandled event type"}, nil
	}
}

// handleOrderCreated advances a booking to order_created when the provider
// confirms the order exists.
func (p *WebhookProcessor) handleOrderCreated(ctx context.Context, event *providerEvent) (*model.ProcessingResult, error) {
	order, result, err := p.loadOrder(ctx, event)
	if order == nil {
		return result, err
	}

	if err := p.applyTransition(ctx, order, model.StatusOrderCreated, event); err != nil {
		return nil, err
	}
	return &model.ProcessingResult{
		Handled:   true,
		BookingID: order.BookingID,
		OrderID:   event.Data.ID,
		NewStatus: model.StatusOrderCreated,
	}, nil
}

// handleOrderUpdated maps the provider's status through the fixed table and
// applies it, notifying the user on ticketing.
func (p *WebhookProcessor) handleOrderUpdated(ctx context.Context, event *providerEvent) (*model.ProcessingResult, error) {
	order, result, err := p.loadOrder(ctx, event)
	if order == nil {
		return result, err
	}

	newStatus := model.MapProviderStatus(event.Data.Status)
	if err := p.applyTransition(ctx, order, newStatus, event); err != nil {
		return nil, err
	}

	if newStatus == model.StatusTicketed {
		p.notify(ctx, order, newStatus, event)
	}
	return &model.ProcessingResult{
		Handled:   true,
		BookingID: order.BookingID,
		OrderID:   event.Data.ID,
		NewStatus: newStatus,
	}, nil
}

// handleOrderCancelled moves the booking to cancelled and notifies the user.
func (p *WebhookProcessor) handleOrderCancelled(ctx context.Context, event *providerEvent) (*model.ProcessingResult, error) {
	order, result, err := p.loadOrder(ctx, event)
	if order == nil {
		return result, err
	}

	if err := p.applyTransition(ctx, order, model.StatusCancelled, event); err != nil {
		return nil, err
	}

	p.notify(ctx, order, model.StatusCancelled, event)
	return &model.ProcessingResult{
		Handled:   true,
		BookingID: order.BookingID,
		OrderID:   event.Data.ID,
		NewStatus: model.StatusCancelled,
	}, nil
}

// handleScheduleChanged records the new schedule payload without changing the
// lifecycle status, then notifies the user.
func (p *WebhookProcessor) handleScheduleChanged(ctx context.Context, event *providerEvent) (*model.ProcessingResult, error) {
	order, result, err := p.loadOrder(ctx, event)
	if order == nil {
		return result, err
	}

	raw := json.RawMessage(event.Data.ScheduleChanges)
	if err := p.datasource.UpdateOrderStatus(ctx, order.BookingID, order.Status, raw); err != nil {
		return nil, err
	}

	p.notify(ctx, order, "schedule_changed", event)
	return &model.ProcessingResult{
		Handled:   true,
		BookingID: order.BookingID,
		OrderID:   event.Data.ID,
		NewStatus: order.Status,
	}, nil
}

// loadOrder resolves the booking referenced by an event. An untracked order
// is not an error: the event may precede the local write, so it is accepted
// and reported as not handled.
func (p *WebhookProcessor) loadOrder(ctx context.Context, event *providerEvent) (*model.BookingOrder, *model.ProcessingResult, error) {
	order, err := p.datasource.FindOrderByProviderID(ctx, event.Data.ID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		logrus.WithFields(logrus.Fields{
			"event_id": event.ID,
			"order_id": event.Data.ID,
		}).Warn((&UnknownOrderError{ProviderOrderID: event.Data.ID}).Error())
		return nil, &model.ProcessingResult{Handled: false, Reason: "booking not found", OrderID: event.Data.ID}, nil
	}
	return order, nil, nil
}

// applyTransition writes the new status only if it is not a regression. A
// duplicate of the current status is a no-op; anything outside the lifecycle
// graph is rejected.
func (p *WebhookProcessor) applyTransition(ctx context.Context, order *model.BookingOrder, newStatus string, event *providerEvent) error {
	if order.Status == newStatus {
		logrus.WithFields(logrus.Fields{
			"booking_id": order.BookingID,
			"status":     newStatus,
		}).Info("duplicate status, no transition applied")
		return nil
	}
	if !model.IsValidTransition(order.Status, newStatus) {
		return &InvalidTransitionError{
			BookingID: order.BookingID,
			From:      order.Status,
			To:        newStatus,
		}
	}

	raw, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if err := p.datasource.UpdateOrderStatus(ctx, order.BookingID, newStatus, raw); err != nil {
		return err
	}
	order.Status = newStatus
	return nil
}

// notify sends a user-visible booking update. Failures are logged and
// swallowed: a notification problem must never fail the webhook response, or
// the provider would retry indefinitely.
func (p *WebhookProcessor) notify(ctx context.Context, order *model.BookingOrder, status string, event *providerEvent) {
	update := notification.BookingUpdate{
		UserID:           order.UserID,
		OrderID:          event.Data.ID,
		Status:           status,
		BookingReference: event.Data.BookingReference,
		ScheduleChanges:  event.Data.ScheduleChanges,
	}
	if err := p.notifier.Notify(ctx, update); err != nil {
		logrus.WithFields(logrus.Fields{
			"booking_id": order.BookingID,
			"status":     status,
		}).Warnf("failed to send notification: %v", err)
	}
}
