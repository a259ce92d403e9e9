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

package enqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidQueueName = errors.New("invalid queue name")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrMessageTooLarge  = errors.New("message exceeds the queue size limit")
)

var (
	messagesEnqueued metric.Int64Counter
	queuesCreated    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/thumbsync/internal/enqueue")

	var err error
	messagesEnqueued, err = meter.Int64Counter(
		"thumbsync.enqueue.messages",
		metric.WithDescription("Messages submitted to a queue, by result"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create messagesEnqueued counter: %w", err))
	}

	queuesCreated, err = meter.Int64Counter(
		"thumbsync.enqueue.queue_created",
		metric.WithDescription("Queues created because they did not exist yet"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create queuesCreated counter: %w", err))
	}
}

// QueueRef is a queue that is known to exist.
type QueueRef struct {
	Name string
	// URL is set by backends that address queues by URL.
	URL     string
	Created bool
}

// QueueBackend is a managed queue platform.
type QueueBackend interface {
	Provider() string
	// ValidateQueueName checks the platform's naming rules.
	ValidateQueueName(name string) error
	// MaxMessageBytes is the largest stored message the platform accepts.
	MaxMessageBytes() int
	// EnsureQueue creates the queue unless it already exists.
	EnsureQueue(ctx context.Context, name string) (QueueRef, error)
	Send(ctx context.Context, queue QueueRef, content string) error
}

// Service ensures a queue exists and sends one message to it. It keeps no
// state between calls and never retries.
type Service struct {
	backend  QueueBackend
	encoding Encoding
	tracer   trace.Tracer
}

type Option func(*Service)

func WithEncoding(e Encoding) Option {
	return func(s *Service) {
		s.encoding = e
	}
}

func NewService(backend QueueBackend, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		encoding: EncodingBase64,
		tracer:   otel.Tracer("github.com/cardinalhq/thumbsync/internal/enqueue"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EnsureQueueAndEnqueue creates queueName if needed and sends message to it.
// Platform faults are returned wrapped; nothing is retried here.
func (s *Service) EnsureQueueAndEnqueue(ctx context.Context, queueName, message string) (err error) {
	ctx, span := s.tracer.Start(ctx, "enqueue.EnsureQueueAndEnqueue",
		trace.WithAttributes(
			attribute.String("provider", s.backend.Provider()),
			attribute.String("queue", queueName),
		),
	)
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		messagesEnqueued.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", s.backend.Provider()),
			attribute.String("result", result),
		))
		span.End()
	}()

	if err := s.backend.ValidateQueueName(queueName); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQueueName, err)
	}
	if message == "" {
		return ErrEmptyMessage
	}

	content := s.encoding.Encode(message)
	if limit := s.backend.MaxMessageBytes(); len(content) > limit {
		return fmt.Errorf("%w: %d bytes encoded as %s, limit %d", ErrMessageTooLarge, len(content), s.encoding, limit)
	}

	ref, err := s.backend.EnsureQueue(ctx, queueName)
	if err != nil {
		return fmt.Errorf("failed to ensure queue %s: %w", queueName, err)
	}
	if ref.Created {
		slog.Info("The queue was created", slog.String("queue", queueName), slog.String("provider", s.backend.Provider()))
		queuesCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", s.backend.Provider())))
	}

	if err := s.backend.Send(ctx, ref, content); err != nil {
		return fmt.Errorf("failed to send message to queue %s: %w", queueName, err)
	}

	slog.Debug("Message enqueued",
		slog.String("queue", queueName),
		slog.Int("bytes", len(content)))
	return nil
}
