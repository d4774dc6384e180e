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

// Package notification delivers user-visible booking updates. Delivery is
// best-effort: updates are queued and shipped out-of-band, and the webhook
// processor swallows any enqueue failure so an unreachable notification sink
// can never fail a webhook response.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/parkerflight/bookingcore/config"
	redis_db "github.com/parkerflight/bookingcore/internal/redis-db"
)

const NOTIFICATION_QUEUE = "new:notification"

// BookingUpdate is the payload of one user-visible status notification.
type BookingUpdate struct {
	UserID           string          `json:"user_id"`
	OrderID          string          `json:"order_id"`
	Status           string          `json:"status"`
	BookingReference string          `json:"booking_reference,omitempty"`
	ScheduleChanges  json.RawMessage `json:"schedule_changes,omitempty"`
}

// Notifier is the collaborator consumed by the webhook processor and the
// booking pipeline.
type Notifier interface {
	Notify(ctx context.Context, update BookingUpdate) error
}

// QueueNotifier enqueues booking updates onto the notification queue for the
// delivery worker.
type QueueNotifier struct{}

func NewQueueNotifier() *QueueNotifier {
	return &QueueNotifier{}
}

// Notify enqueues a booking update task.
func (n *QueueNotifier) Notify(_ context.Context, update BookingUpdate) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return err
	}
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	})
	defer func() {
		if err := client.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{asynq.Queue(NOTIFICATION_QUEUE)}
	task := asynq.NewTask(NOTIFICATION_QUEUE, payload, taskOptions...)
	info, err := client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}

// ProcessNotification processes a booking update task from the queue.
func ProcessNotification(_ context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	var update BookingUpdate
	if err := json.Unmarshal(task.Payload(), &update); err != nil {
		log.Printf("Error unmarshaling notification payload: %v", err)
		return err
	}
	logrus.WithFields(logrus.Fields{
		"order_id": update.OrderID,
		"status":   update.Status,
	}).Info("Processing booking notification")
	return deliverHTTP(update)
}

// deliverHTTP ships one booking update to the configured notification sink.
func deliverHTTP(update BookingUpdate) error {
	conf, err := config.Fetch()
	if err != nil {
		log.Println("Error fetching config:", err)
		return err
	}

	jsonData, err := json.Marshal(update)
	if err != nil {
		log.Println("Error marshaling data:", err)
		return err
	}
	payload := bytes.NewBuffer(jsonData)

	req, err := http.NewRequest("POST", conf.Notification.Webhook.Url, payload)
	if err != nil {
		log.Println("Error creating request:", err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		log.Println("Error sending request:", err)
		return err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	// Check if the status code is not in the 2XX success range
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("Notification delivery failed with status code: %d\n", resp.StatusCode)
		return nil
	}

	return nil
}
