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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/eventgrid/azsystemevents"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/thumbsync/internal/idgen"
	"github.com/cardinalhq/thumbsync/internal/logctx"
	"github.com/cardinalhq/thumbsync/internal/thumbnails"
)

var eventsCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/thumbsync/internal/pubsub")

	var err error
	eventsCounter, err = meter.Int64Counter(
		"thumbsync.pubsub.events",
		metric.WithDescription("Number of events received, by type and ingress"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create pubsub.events counter: %w", err))
	}
}

// Disposition summarizes what should happen to a delivered payload.
type Disposition struct {
	Acked     int
	Redeliver int
	// ValidationCode is set when the payload was an Event Grid subscription
	// validation request.
	ValidationCode string
	Results        []thumbnails.Result
}

// NeedsRedelivery reports whether any event in the payload asked to be retried.
func (d Disposition) NeedsRedelivery() bool {
	return d.Redeliver > 0
}

// Dispatcher routes parsed events to the thumbnail cleaner.
type Dispatcher struct {
	cleaner Cleaner
	policy  thumbnails.RedeliveryPolicy
	ingress string
}

func NewDispatcher(cleaner Cleaner, policy thumbnails.RedeliveryPolicy, ingress string) *Dispatcher {
	return &Dispatcher{cleaner: cleaner, policy: policy, ingress: ingress}
}

// Dispatch parses a raw payload and handles every event in it. An error is
// returned only when the payload cannot be parsed at all.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (Disposition, error) {
	events, err := ParseEvents(raw)
	if err != nil {
		return Disposition{}, err
	}

	var disp Disposition
	for _, evt := range events {
		d.dispatchEvent(ctx, evt, &disp)
	}
	return disp, nil
}

func (d *Dispatcher) dispatchEvent(ctx context.Context, evt Event, disp *Disposition) {
	id := evt.ID
	if id == "" {
		id = idgen.InvocationID()
	}
	ctx, ll := logctx.With(ctx,
		slog.String("eventID", id),
		slog.String("eventType", evt.Type),
		slog.String("schema", string(evt.Schema)),
	)

	eventsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", evt.Type),
		attribute.String("source", d.ingress),
	))

	switch evt.Type {
	case string(azsystemevents.TypeSubscriptionValidation):
		var data azsystemevents.SubscriptionValidationEventData
		if err := json.Unmarshal(evt.Data, &data); err != nil || data.ValidationCode == nil {
			ll.Warn("Subscription validation event without a validation code", slog.Any("error", err))
			disp.Acked++
			return
		}
		ll.Info("Answering Event Grid subscription validation")
		disp.ValidationCode = *data.ValidationCode
		disp.Acked++

	case string(azsystemevents.TypeStorageBlobDeleted), TypeS3ObjectRemoved:
		blob, err := toBlobDeleted(evt)
		if err != nil {
			ll.Warn("Blob deleted event with unreadable data", slog.Any("error", err))
		}
		res := d.cleaner.Handle(ctx, blob.URL)
		disp.Results = append(disp.Results, res)
		if d.policy.ShouldRedeliver(res) {
			disp.Redeliver++
		} else {
			disp.Acked++
		}

	default:
		ll.Debug("Ignoring event", slog.String("subject", evt.Subject), slog.String("source", evt.Source))
		disp.Acked++
	}
}

func toBlobDeleted(evt Event) (BlobDeletedEvent, error) {
	out := BlobDeletedEvent{
		ID:        evt.ID,
		Type:      evt.Type,
		Subject:   evt.Subject,
		Source:    evt.Source,
		URL:       evt.URL,
		EventTime: evt.EventTime,
		Schema:    evt.Schema,
	}
	if out.URL != "" || len(evt.Data) == 0 {
		return out, nil
	}

	var data azsystemevents.StorageBlobDeletedEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return out, fmt.Errorf("failed to decode blob deleted data: %w", err)
	}
	if data.URL != nil {
		out.URL = *data.URL
	}
	return out, nil
}
