// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package pubsub

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// QueueConfig controls the storage-queue trigger.
type QueueConfig struct {
	Name              string        `mapstructure:"name"`
	MaxDequeueCount   int64         `mapstructure:"max_dequeue_count"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	BatchSize         int32         `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Name:              "thumbnail-cleanup",
		MaxDequeueCount:   5,
		PollInterval:      time.Second,
		VisibilityTimeout: 30 * time.Second,
		BatchSize:         32,
		Concurrency:       10,
	}
}

type queueReceiver interface {
	DequeueMessages(ctx context.Context, o *azqueue.DequeueMessagesOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// AzureQueueService consumes Event Grid deliveries from an Azure storage queue.
type AzureQueueService struct {
	tracer     trace.Tracer
	queue      queueReceiver
	dispatcher *Dispatcher
	cfg        QueueConfig
	ready      func(bool)
}

var _ Service = (*AzureQueueService)(nil)

func NewAzureQueueService(queue *azqueue.QueueClient, dispatcher *Dispatcher, cfg QueueConfig, ready func(bool)) *AzureQueueService {
	return newAzureQueueService(queue, dispatcher, cfg, ready)
}

func newAzureQueueService(queue queueReceiver, dispatcher *Dispatcher, cfg QueueConfig, ready func(bool)) *AzureQueueService {
	def := DefaultQueueConfig()
	if cfg.BatchSize <= 0 || cfg.BatchSize > 32 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = def.VisibilityTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if ready == nil {
		ready = func(bool) {}
	}
	return &AzureQueueService{
		tracer:     otel.Tracer("github.com/cardinalhq/thumbsync/internal/pubsub/azure"),
		queue:      queue,
		dispatcher: dispatcher,
		cfg:        cfg,
		ready:      ready,
	}
}

func (ps *AzureQueueService) Run(doneCtx context.Context) error {
	slog.Info("Starting Azure Queue polling loop", slog.String("queue", ps.cfg.Name))
	ps.ready(true)
	defer ps.ready(false)

	for {
		select {
		case <-doneCtx.Done():
			slog.Info("Azure Queue polling loop stopped")
			return nil
		default:
		}

		n, err := ps.pollOnce(doneCtx)
		wait := time.Duration(0)
		switch {
		case err != nil:
			slog.Error("Failed to receive messages from Azure Queue", slog.Any("error", err))
			wait = 5 * time.Second
		case n == 0:
			wait = ps.cfg.PollInterval
		}
		if wait > 0 {
			select {
			case <-doneCtx.Done():
			case <-time.After(wait):
			}
		}
	}
}

// pollOnce dequeues one batch and handles it, returning the number of
// messages received. Messages are handled concurrently so the whole batch
// finishes well inside its visibility timeout.
func (ps *AzureQueueService) pollOnce(doneCtx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(doneCtx, 30*time.Second)
	result, err := ps.queue.DequeueMessages(ctx, &azqueue.DequeueMessagesOptions{
		NumberOfMessages:  to.Ptr(ps.cfg.BatchSize),
		VisibilityTimeout: to.Ptr(int32(ps.cfg.VisibilityTimeout / time.Second)),
	})
	cancel()
	if err != nil {
		return 0, fmt.Errorf("failed to dequeue from %s: %w", ps.cfg.Name, err)
	}

	var g errgroup.Group
	g.SetLimit(ps.cfg.Concurrency)
	for _, message := range result.Messages {
		if message == nil || message.MessageID == nil || message.PopReceipt == nil {
			continue
		}
		g.Go(func() error {
			if ps.handleMessage(doneCtx, message) {
				ps.deleteMessage(doneCtx, *message.MessageID, *message.PopReceipt)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(result.Messages), nil
}

// handleMessage returns true when the message should be removed from the queue.
func (ps *AzureQueueService) handleMessage(ctx context.Context, message *azqueue.DequeuedMessage) bool {
	ctx, span := ps.tracer.Start(ctx, "AzureQueueService.handleMessage")
	defer span.End()

	ll := slog.With(slog.String("messageID", *message.MessageID))

	var dequeueCount int64
	if message.DequeueCount != nil {
		dequeueCount = *message.DequeueCount
	}
	if ps.cfg.MaxDequeueCount > 0 && dequeueCount > ps.cfg.MaxDequeueCount {
		ll.Error("Dropping poison message",
			slog.Int64("dequeueCount", dequeueCount),
			slog.Int64("maxDequeueCount", ps.cfg.MaxDequeueCount))
		return true
	}

	if message.MessageText == nil || *message.MessageText == "" {
		ll.Warn("Dropping empty queue message")
		return true
	}

	disp, err := ps.dispatcher.Dispatch(ctx, decodeIfBase64(*message.MessageText))
	if err != nil {
		ll.Error("Dropping unparsable queue message",
			slog.Any("error", err),
			slog.String("message_content", *message.MessageText))
		return true
	}
	if disp.NeedsRedelivery() {
		ll.Warn("Leaving message for redelivery",
			slog.Int("redeliver", disp.Redeliver),
			slog.Int64("dequeueCount", dequeueCount))
		return false
	}
	return true
}

func (ps *AzureQueueService) deleteMessage(doneCtx context.Context, messageID, popReceipt string) {
	ctx, cancel := context.WithTimeout(doneCtx, 10*time.Second)
	defer cancel()
	if _, err := ps.queue.DeleteMessage(ctx, messageID, popReceipt, nil); err != nil {
		slog.Error("Failed to delete Azure Queue message",
			slog.Any("error", err),
			slog.String("messageID", messageID))
	}
}

// Event Grid writes queue messages base64 encoded.
func decodeIfBase64(s string) []byte {
	if len(s)%4 != 0 {
		return []byte(s)
	}

	for _, c := range s {
		if !(('A' <= c && c <= 'Z') ||
			('a' <= c && c <= 'z') ||
			('0' <= c && c <= '9') ||
			c == '+' || c == '/' || c == '=') {
			return []byte(s)
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return []byte(s)
	}
	return decoded
}
