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

// Package provider is the boundary to the upstream booking provider. The
// Client interface is the capability the rest of the system consumes; the
// HTTP implementation classifies failures into typed, retryability-carrying
// errors so no caller ever inspects message strings.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/parkerflight/bookingcore/model"
)

// Order is the provider-side view of a created order.
type Order struct {
	ID               string    `json:"id"`
	BookingReference string    `json:"booking_reference"`
	Status           string    `json:"status"`
	TicketNumbers    []string  `json:"ticket_numbers,omitempty"`
	TotalAmount      string    `json:"total_amount"`
	TotalCurrency    string    `json:"total_currency"`
	CreatedAt        time.Time `json:"created_at"`
}

// Client is the upstream provider capability. Concrete implementations (the
// real HTTP client, test doubles) satisfy it.
type Client interface {
	// CreateOfferRequest submits slice/passenger parameters and returns an
	// offer-request handle. Read-only upstream; safe to retry freely.
	CreateOfferRequest(ctx context.Context, params model.SearchParams) (string, error)
	// ListOffers lists the offers produced for an offer-request handle.
	ListOffers(ctx context.Context, offerRequestID string) ([]model.Offer, error)
	// CreateOrder books the offer. The same idempotency key must be passed on
	// every attempt of one logical booking so a retried network failure
	// cannot create two orders.
	CreateOrder(ctx context.Context, offerID string, passengers []model.PassengerDetails, idempotencyKey string) (*Order, error)
	// GetOrder fetches the current provider-side state of an order.
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	// CancelOrder requests cancellation of an existing order.
	CancelOrder(ctx context.Context, orderID string) (*Order, error)
}

// APIError is the typed error for provider responses. Rate limiting (429),
// request timeout (408) and server errors (5xx) are retryable; other client
// errors are not and bypass the retry loop.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.Status, e.Message)
}

// Retryable reports whether the resilience engine may retry the call.
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status == 408 || e.Status >= 500
}
