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
	"encoding/json"

	"github.com/parkerflight/bookingcore/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	booking      // Interface for booking order operations
	webhookEvent // Interface for webhook event operations
}

// booking defines methods for handling booking orders.
type booking interface {
	RecordBooking(ctx context.Context, order *model.BookingOrder) (*model.BookingOrder, error)            // Inserts a new booking order
	GetBookingByID(ctx context.Context, bookingID string) (*model.BookingOrder, error)                    // Retrieves a booking by its local id; nil when absent
	FindOrderByProviderID(ctx context.Context, providerOrderID string) (*model.BookingOrder, error)       // Retrieves a booking by the provider's order id; nil when absent
	UpdateOrderStatus(ctx context.Context, bookingID, status string, raw json.RawMessage) error           // Writes a new status plus the raw provider payload
	UpdateOrderFailure(ctx context.Context, bookingID, reason string) error                               // Marks a booking failed with a human-readable reason
	AttachProviderOrder(ctx context.Context, bookingID, providerOrderID, bookingReference string) error   // Persists the provider order id after order creation
	UpdatePassengerData(ctx context.Context, bookingID string, encryptedPassengers json.RawMessage) error // Stores the envelope-encrypted passenger blob
}

// webhookEvent defines methods for handling inbound provider events.
type webhookEvent interface {
	GetWebhookEvent(ctx context.Context, externalEventID string) (*model.WebhookEvent, error) // Retrieves an event by its external id; nil when absent
	InsertWebhookEvent(ctx context.Context, event *model.WebhookEvent) error                  // Inserts an event row; returns ErrDuplicateEvent on a unique violation
	MarkEventProcessed(ctx context.Context, externalEventID string, processingError string) error
}
