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
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/parkerflight/bookingcore/database"
	"github.com/parkerflight/bookingcore/internal/envelope"
	redlock "github.com/parkerflight/bookingcore/internal/lock"
	"github.com/parkerflight/bookingcore/internal/resilience"
	"github.com/parkerflight/bookingcore/model"
	"github.com/parkerflight/bookingcore/provider"
)

// Operation contexts partitioning circuit-breaker state per upstream
// capability. Stable across calls, distinct across unrelated operations.
const (
	OpProviderSearch = "provider-search"
	OpProviderOrders = "provider-orders"
)

// ErrNoBookableOffers is returned when every offer for a search is already
// inside the expiry safety buffer.
var ErrNoBookableOffers = errors.New("no bookable offers for search")

// ErrOfferExpired is returned when the selected offer passed its expiry
// buffer before order creation could be attempted.
var ErrOfferExpired = errors.New("offer expired before order creation")

// defaultOfferWait gives the provider time to produce offers after an offer
// request before the first listing.
const defaultOfferWait = 3 * time.Second

// Pipeline sequences search, offer retrieval and order creation against the
// upstream provider. Every upstream call goes through the resilience
// executor; order creation always carries the caller's idempotency key.
type Pipeline struct {
	provider   provider.Client
	datasource database.IDataSource
	executor   *resilience.Executor
	encryption *envelope.Service
	policy     *resilience.RetryPolicy
	offerWait  time.Duration
	locks      redis.UniversalClient
}

// NewPipeline creates the orchestrator over its collaborators.
func NewPipeline(client provider.Client, db database.IDataSource, executor *resilience.Executor, encryption *envelope.Service) *Pipeline {
	return &Pipeline{
		provider:   client,
		datasource: db,
		executor:   executor,
		encryption: encryption,
		policy:     resilience.DefaultPolicy(),
		offerWait:  defaultOfferWait,
	}
}

// UseAttemptLock enables the Redis lock that serializes concurrent Book
// calls sharing one idempotency key.
func (pl *Pipeline) UseAttemptLock(client redis.UniversalClient) {
	pl.locks = client
}

// BookingRequest is one logical booking attempt. The idempotency key scopes
// the attempt: reusing it across calls makes repeated order submissions one
// order upstream.
type BookingRequest struct {
	UserID         string                   `json:"user_id"`
	Params         model.SearchParams       `json:"params"`
	Passengers     []model.PassengerDetails `json:"passengers"`
	IdempotencyKey string                   `json:"idempotency_key,omitempty"`
}

// Book runs the full pipeline: search, offer retrieval with expiry
// filtering, passenger encryption, order creation. Stage failures after
// retry exhaustion mark the attempt failed, except order creation, whose
// unknown outcome is escalated via OrderStateUnknownError for
// reconciliation.
func (pl *Pipeline) Book(ctx context.Context, req BookingRequest) (*model.BookingOrder, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = model.NewIdempotencyKey()
	}

	// Two concurrent attempts with the same idempotency key would still be
	// one order upstream, but they would race the local booking row. The
	// lock serializes them.
	if pl.locks != nil {
		locker := redlock.NewLocker(pl.locks, "booking-attempt:"+req.IdempotencyKey, model.GenerateUUIDWithSuffix("lck"))
		if err := locker.WaitLock(ctx, time.Minute, 10*time.Second); err != nil {
			return nil, err
		}
		defer func() {
			if err := locker.Unlock(context.Background()); err != nil {
				logrus.Warnf("failed to release booking attempt lock: %v", err)
			}
		}()
	}

	// Stage A: search.
	handle, err := pl.Search(ctx, req.Params)
	if err != nil {
		return pl.recordFailedAttempt(ctx, req, "flight search failed: "+err.Error()), err
	}

	pl.waitForOffers(ctx)

	// Stage B: offer retrieval.
	offers, err := pl.RetrieveOffers(ctx, handle)
	if err != nil {
		return pl.recordFailedAttempt(ctx, req, "offer retrieval failed: "+err.Error()), err
	}
	if len(offers) == 0 {
		return pl.recordFailedAttempt(ctx, req, ErrNoBookableOffers.Error()), ErrNoBookableOffers
	}
	offer := offers[0]

	booking, err := pl.datasource.RecordBooking(ctx, &model.BookingOrder{
		UserID:        req.UserID,
		OfferID:       offer.OfferID,
		Status:        model.StatusOfferSelected,
		TotalAmount:   offer.TotalAmount,
		TotalCurrency: offer.TotalCurrency,
		MetaData: map[string]interface{}{
			"idempotency_key":  req.IdempotencyKey,
			"offer_request_id": handle,
		},
	})
	if err != nil {
		return nil, err
	}

	// Passenger PII is envelope-encrypted before persistence. An encryption
	// failure is fatal for the write path: plaintext is never stored.
	if err := pl.storePassengers(ctx, booking.BookingID, req.Passengers); err != nil {
		pl.markFailed(ctx, booking.BookingID, "passenger encryption failed: "+err.Error())
		return booking, err
	}

	// Payment authorization completes out-of-band before order creation; the
	// lifecycle reflects it so the provider's order.created event lands on a
	// valid transition.
	if err := pl.datasource.UpdateOrderStatus(ctx, booking.BookingID, model.StatusPaymentAuthorized, nil); err != nil {
		return booking, err
	}
	booking.Status = model.StatusPaymentAuthorized

	// Stage C: order creation.
	order, err := pl.CreateOrder(ctx, &offer, req.Passengers, req.IdempotencyKey)
	if err != nil {
		if escalated := pl.escalate(booking.BookingID, req.IdempotencyKey, err); escalated != nil {
			return booking, escalated
		}
		pl.markFailed(ctx, booking.BookingID, "order creation failed: "+err.Error())
		return booking, err
	}

	// Persist the provider order id before returning success so webhook
	// events can find the booking.
	if err := pl.datasource.AttachProviderOrder(ctx, booking.BookingID, order.ID, order.BookingReference); err != nil {
		return booking, err
	}
	booking.ProviderOrderID = order.ID
	booking.BookingReference = order.BookingReference

	logrus.WithFields(logrus.Fields{
		"booking_id":        booking.BookingID,
		"provider_order_id": order.ID,
	}).Info("booking pipeline completed")
	return booking, nil
}

// Search submits the slice/passenger parameters and returns the
// offer-request handle. Read-only upstream, safe to retry freely.
func (pl *Pipeline) Search(ctx context.Context, params model.SearchParams) (string, error) {
	return resilience.Run(ctx, pl.executor, OpProviderSearch, pl.policy, func(ctx context.Context) (string, error) {
		return pl.provider.CreateOfferRequest(ctx, params)
	})
}

// RetrieveOffers lists offers for the handle and filters out any offer whose
// expiry, minus the safety buffer, has already passed. An expired offer must
// never reach order creation.
func (pl *Pipeline) RetrieveOffers(ctx context.Context, offerRequestID string) ([]model.Offer, error) {
	offers, err := resilience.Run(ctx, pl.executor, OpProviderSearch, pl.policy, func(ctx context.Context) ([]model.Offer, error) {
		return pl.provider.ListOffers(ctx, offerRequestID)
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	bookable := make([]model.Offer, 0, len(offers))
	for _, offer := range offers {
		if offer.IsBookable(now) {
			bookable = append(bookable, offer)
		}
	}
	if dropped := len(offers) - len(bookable); dropped > 0 {
		logrus.WithField("dropped", dropped).Info("filtered offers inside expiry buffer")
	}
	return bookable, nil
}

// CreateOrder re-validates the offer's expiry and submits order creation,
// passing the same idempotency key on every attempt so a retried network
// failure cannot create two orders.
func (pl *Pipeline) CreateOrder(ctx context.Context, offer *model.Offer, passengers []model.PassengerDetails, idempotencyKey string) (*provider.Order, error) {
	if !offer.IsBookable(time.Now()) {
		return nil, ErrOfferExpired
	}
	return resilience.Run(ctx, pl.executor, OpProviderOrders, pl.policy, func(ctx context.Context) (*provider.Order, error) {
		return pl.provider.CreateOrder(ctx, offer.OfferID, passengers, idempotencyKey)
	})
}

// storePassengers serializes the passengers, envelope-encrypts them under
// the PII key class and persists the sealed payload.
func (pl *Pipeline) storePassengers(ctx context.Context, bookingID string, passengers []model.PassengerDetails) error {
	if len(passengers) == 0 {
		return nil
	}
	plaintext, err := json.Marshal(passengers)
	if err != nil {
		return err
	}
	sealed, err := pl.encryption.Encrypt(ctx, plaintext, envelope.KeyClassPII)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(sealed)
	if err != nil {
		return err
	}
	return pl.datasource.UpdatePassengerData(ctx, bookingID, encoded)
}

// escalate decides whether an order-creation failure has an unknown upstream
// outcome. Retry exhaustion, an open circuit or a dead context all mean the
// order may exist upstream despite the local failure; reconciliation or the
// provider's webhook is then the source of truth. Known failures return nil:
// a non-retryable provider rejection, or an offer that crossed the expiry
// buffer before anything was submitted upstream.
func (pl *Pipeline) escalate(bookingID, idempotencyKey string, err error) error {
	if errors.Is(err, ErrOfferExpired) {
		return nil
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable() {
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"booking_id":      bookingID,
		"idempotency_key": idempotencyKey,
	}).Error("order creation outcome unknown, escalating for reconciliation")
	return &OrderStateUnknownError{
		BookingID:      bookingID,
		IdempotencyKey: idempotencyKey,
		Err:            err,
	}
}

// recordFailedAttempt persists a failed booking attempt with its
// human-readable reason so stage A/B exhaustion leaves an auditable record.
func (pl *Pipeline) recordFailedAttempt(ctx context.Context, req BookingRequest, reason string) *model.BookingOrder {
	booking, err := pl.datasource.RecordBooking(ctx, &model.BookingOrder{
		UserID:        req.UserID,
		Status:        model.StatusFailed,
		FailureReason: reason,
		MetaData: map[string]interface{}{
			"idempotency_key": req.IdempotencyKey,
		},
	})
	if err != nil {
		logrus.Error(err)
		return nil
	}
	if err := pl.datasource.UpdateOrderFailure(ctx, booking.BookingID, reason); err != nil {
		logrus.Error(err)
	}
	booking.Status = model.StatusFailed
	return booking
}

func (pl *Pipeline) markFailed(ctx context.Context, bookingID, reason string) {
	if err := pl.datasource.UpdateOrderFailure(ctx, bookingID, reason); err != nil {
		logrus.Error(err)
	}
}

// waitForOffers gives the provider a moment to produce offers, respecting
// caller cancellation.
func (pl *Pipeline) waitForOffers(ctx context.Context) {
	if pl.offerWait <= 0 {
		return
	}
	timer := time.NewTimer(pl.offerWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
