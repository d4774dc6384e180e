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

	"github.com/parkerflight/bookingcore/config"
	"github.com/parkerflight/bookingcore/database"
	"github.com/parkerflight/bookingcore/internal/envelope"
	redis_db "github.com/parkerflight/bookingcore/internal/redis-db"
	"github.com/parkerflight/bookingcore/internal/resilience"
	"github.com/parkerflight/bookingcore/model"
	"github.com/parkerflight/bookingcore/notification"
	"github.com/parkerflight/bookingcore/provider"
)

// BookingCore wires the resilient booking services: one shared resilience
// executor, the envelope encryption service, the webhook event processor and
// the booking pipeline.
type BookingCore struct {
	datasource database.IDataSource
	executor   *resilience.Executor
	encryption *envelope.Service
	processor  *WebhookProcessor
	pipeline   *Pipeline
}

// NewBookingCore initializes the application services against the provided
// datasource. It fetches the configuration and builds the provider client,
// the KMS-backed envelope service and the notification queue.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *BookingCore: A pointer to the newly created instance.
// - error: An error if any of the initialization steps fail.
func NewBookingCore(db database.IDataSource) (*BookingCore, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor()
	encryption, err := envelope.NewServiceFromConfig(configuration, executor)
	if err != nil {
		return nil, err
	}

	providerClient := provider.NewClientFromConfig(configuration)
	notifier := notification.NewQueueNotifier()

	processor := NewWebhookProcessor(db, notifier, configuration.Provider.WebhookSecret)
	pipeline := NewPipeline(providerClient, db, executor, encryption)

	if configuration.Redis.Dns != "" {
		rd, err := redis_db.NewRedisClient(configuration.Redis.Dns)
		if err != nil {
			return nil, err
		}
		pipeline.UseAttemptLock(rd.Client())
	}

	return &BookingCore{
		datasource: db,
		executor:   executor,
		encryption: encryption,
		processor:  processor,
		pipeline:   pipeline,
	}, nil
}

// GetBooking retrieves a booking by its local id.
func (b *BookingCore) GetBooking(ctx context.Context, bookingID string) (*model.BookingOrder, error) {
	return b.datasource.GetBookingByID(ctx, bookingID)
}

// Processor returns the webhook event processor.
func (b *BookingCore) Processor() *WebhookProcessor {
	return b.processor
}

// Pipeline returns the booking pipeline orchestrator.
func (b *BookingCore) Pipeline() *Pipeline {
	return b.pipeline
}

// Encryption returns the envelope encryption service.
func (b *BookingCore) Encryption() *envelope.Service {
	return b.encryption
}
