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
package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/parkerflight/bookingcore/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Booking methods

func (m *MockDataSource) RecordBooking(ctx context.Context, order *model.BookingOrder) (*model.BookingOrder, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BookingOrder), args.Error(1)
}

func (m *MockDataSource) GetBookingByID(ctx context.Context, bookingID string) (*model.BookingOrder, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BookingOrder), args.Error(1)
}

func (m *MockDataSource) FindOrderByProviderID(ctx context.Context, providerOrderID string) (*model.BookingOrder, error) {
	args := m.Called(ctx, providerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BookingOrder), args.Error(1)
}

func (m *MockDataSource) UpdateOrderStatus(ctx context.Context, bookingID, status string, raw json.RawMessage) error {
	args := m.Called(ctx, bookingID, status, raw)
	return args.Error(0)
}

func (m *MockDataSource) UpdateOrderFailure(ctx context.Context, bookingID, reason string) error {
	args := m.Called(ctx, bookingID, reason)
	return args.Error(0)
}

func (m *MockDataSource) AttachProviderOrder(ctx context.Context, bookingID, providerOrderID, bookingReference string) error {
	args := m.Called(ctx, bookingID, providerOrderID, bookingReference)
	return args.Error(0)
}

func (m *MockDataSource) UpdatePassengerData(ctx context.Context, bookingID string, encryptedPassengers json.RawMessage) error {
	args := m.Called(ctx, bookingID, encryptedPassengers)
	return args.Error(0)
}

// Webhook event methods

func (m *MockDataSource) GetWebhookEvent(ctx context.Context, externalEventID string) (*model.WebhookEvent, error) {
	args := m.Called(ctx, externalEventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WebhookEvent), args.Error(1)
}

func (m *MockDataSource) InsertWebhookEvent(ctx context.Context, event *model.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDataSource) MarkEventProcessed(ctx context.Context, externalEventID string, processingError string) error {
	args := m.Called(ctx, externalEventID, processingError)
	return args.Error(0)
}
