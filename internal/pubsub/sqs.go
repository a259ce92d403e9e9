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
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type sqsReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSService consumes S3 ObjectRemoved notifications from an SQS queue.
type SQSService struct {
	tracer     trace.Tracer
	client     sqsReceiver
	queueURL   string
	dispatcher *Dispatcher
	cfg        QueueConfig
	ready      func(bool)
}

var _ Service = (*SQSService)(nil)

func NewSQSService(client *sqs.Client, queueURL string, dispatcher *Dispatcher, cfg QueueConfig, ready func(bool)) *SQSService {
	return newSQSService(client, queueURL, dispatcher, cfg, ready)
}

func newSQSService(client sqsReceiver, queueURL string, dispatcher *Dispatcher, cfg QueueConfig, ready func(bool)) *SQSService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultQueueConfig().Concurrency
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = DefaultQueueConfig().VisibilityTimeout
	}
	if ready == nil {
		ready = func(bool) {}
	}
	return &SQSService{
		tracer:     otel.Tracer("github.com/cardinalhq/thumbsync/internal/pubsub/sqs"),
		client:     client,
		queueURL:   queueURL,
		dispatcher: dispatcher,
		cfg:        cfg,
		ready:      ready,
	}
}

func (ps *SQSService) Run(doneCtx context.Context) error {
	slog.Info("Starting SQS polling loop", slog.String("queueURL", ps.queueURL))
	ps.ready(true)
	defer ps.ready(false)

	for {
		select {
		case <-doneCtx.Done():
			slog.Info("SQS polling loop stopped")
			return nil
		default:
		}

		if _, err := ps.pollOnce(doneCtx); err != nil {
			slog.Error("Failed to receive messages from SQS", slog.Any("error", err))
			select {
			case <-doneCtx.Done():
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (ps *SQSService) pollOnce(doneCtx context.Context) (int, error) {
	result, err := ps.client.ReceiveMessage(doneCtx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(ps.queueURL),
		MaxNumberOfMessages:         10,
		WaitTimeSeconds:             20,
		VisibilityTimeout:           int32(ps.cfg.VisibilityTimeout / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to receive from %s: %w", ps.queueURL, err)
	}

	g, gctx := errgroup.WithContext(doneCtx)
	g.SetLimit(ps.cfg.Concurrency)
	for _, msg := range result.Messages {
		g.Go(func() error {
			if ps.handleMessage(gctx, msg) {
				ps.deleteMessage(msg)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(result.Messages), nil
}

func (ps *SQSService) handleMessage(ctx context.Context, msg types.Message) bool {
	ctx, span := ps.tracer.Start(ctx, "SQSService.handleMessage")
	defer span.End()

	ll := slog.With(slog.String("messageId", aws.ToString(msg.MessageId)))

	if count := receiveCount(msg); ps.cfg.MaxDequeueCount > 0 && count > ps.cfg.MaxDequeueCount {
		ll.Error("Dropping poison message",
			slog.Int64("receiveCount", count),
			slog.Int64("maxDequeueCount", ps.cfg.MaxDequeueCount))
		return true
	}

	if msg.Body == nil || *msg.Body == "" {
		ll.Warn("Received SQS message with empty body")
		return true
	}

	msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	disp, err := ps.dispatcher.Dispatch(msgCtx, []byte(*msg.Body))
	if err != nil {
		ll.Error("Dropping unparsable SQS message", slog.Any("error", err))
		return true
	}
	if disp.NeedsRedelivery() {
		ll.Warn("Leaving SQS message for retry", slog.Int("redeliver", disp.Redeliver))
		return false
	}
	return true
}

func (ps *SQSService) deleteMessage(msg types.Message) {
	// Deletion outlives shutdown so a handled message is not redelivered.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := ps.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(ps.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		slog.Error("Failed to delete SQS message",
			slog.Any("error", err),
			slog.String("messageId", aws.ToString(msg.MessageId)))
	}
}

func receiveCount(msg types.Message) int64 {
	v, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
