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

package model

import "time"

// Booking lifecycle statuses. Transitions are monotonic per the graph in
// ValidTransitions; out-of-order or duplicate webhook events must never
// regress a booking's status.
const (
	StatusOfferSelected     = "offer_selected"
	StatusPaymentAuthorized = "payment_authorized"
	StatusOrderCreated      = "order_created"
	StatusTicketed          = "ticketed"
	StatusFailed            = "failed"
	StatusCancelled         = "cancelled"
	StatusRefunded          = "refunded"
)

// ValidTransitions is the authoritative transition graph for a booking order.
// Any transition not present here is rejected and logged, not silently applied.
var ValidTransitions = map[string][]string{
	StatusOfferSelected:     {StatusPaymentAuthorized, StatusFailed, StatusCancelled},
	StatusPaymentAuthorized: {StatusOrderCreated, StatusFailed, StatusCancelled},
	StatusOrderCreated:      {StatusTicketed, StatusFailed, StatusCancelled},
	StatusTicketed:          {StatusFailed, StatusCancelled},
	StatusCancelled:         {StatusRefunded},
	StatusFailed:            {},
	StatusRefunded:          {},
}

// IsValidTransition reports whether moving a booking from one status to
// another is allowed by the lifecycle graph. A transition to the current
// status is not a valid transition; callers treat it as a duplicate.
func IsValidTransition(from, to string) bool {
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a booking status has no outgoing
// transitions left.
func IsTerminalStatus(status string) bool {
	return len(ValidTransitions[status]) == 0
}

// providerStatusMap translates the upstream provider's order status into the
// local booking status. Unknown provider statuses map to themselves so the
// transition check can reject them.
var providerStatusMap = map[string]string{
	"pending":   StatusOrderCreated,
	"confirmed": StatusTicketed,
	"ticketed":  StatusTicketed,
	"cancelled": StatusCancelled,
	"refunded":  StatusRefunded,
	"expired":   StatusFailed,
}

// MapProviderStatus returns the local booking status for a provider order
// status.
func MapProviderStatus(providerStatus string) string {
	if local, ok := providerStatusMap[providerStatus]; ok {
		return local
	}
	return providerStatus
}

// BookingOrder is the tracked lifecycle record for one booking attempt. It is
// owned by the pipeline at creation and mutated only by the webhook event
// processor thereafter.
type BookingOrder struct {
	BookingID        string                 `json:"booking_id"`
	UserID           string                 `json:"user_id"`
	ProviderOrderID  string                 `json:"provider_order_id"`
	OfferID          string                 `json:"offer_id"`
	BookingReference string                 `json:"booking_reference"`
	Status           string                 `json:"status"`
	FailureReason    string                 `json:"failure_reason,omitempty"`
	TicketNumbers    []string               `json:"ticket_numbers,omitempty"`
	TotalAmount      string                 `json:"total_amount"`
	TotalCurrency    string                 `json:"total_currency"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}
