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

package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/thumbsync/internal/cloudstorage"
	"github.com/cardinalhq/thumbsync/internal/logctx"
)

// ErrStoreUnavailable is reported when the handler has no storage client.
var ErrStoreUnavailable = errors.New("thumbnail store is not configured")

var cleanupCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/thumbsync/internal/thumbnails")

	var err error
	cleanupCounter, err = meter.Int64Counter(
		"thumbsync.cleanup.events",
		metric.WithDescription("Number of blob deletion events handled, by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cleanup.events counter: %w", err))
	}
}

// Config controls where thumbnails live and how their paths are derived.
type Config struct {
	Container       string
	PathStrategy    string
	SourceContainer string
	DeleteTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Container:       "thumbnails",
		PathStrategy:    string(StrategyTrailingSegments),
		SourceContainer: "screenshots",
		DeleteTimeout:   30 * time.Second,
	}
}

// Handler removes the thumbnail that belongs to a deleted source blob.
type Handler struct {
	store     cloudstorage.Client
	container string
	deriver   PathDeriver
	timeout   time.Duration
}

func NewHandler(store cloudstorage.Client, cfg Config) (*Handler, error) {
	strategy, err := ParsePathStrategy(cfg.PathStrategy)
	if err != nil {
		return nil, err
	}
	if cfg.Container == "" {
		return nil, fmt.Errorf("thumbnails container is required")
	}
	if strategy == StrategyContainerPrefix && cfg.SourceContainer == "" {
		return nil, fmt.Errorf("source container is required for path strategy %s", strategy)
	}
	return &Handler{
		store:     store,
		container: cfg.Container,
		deriver:   PathDeriver{Strategy: strategy, SourceContainer: cfg.SourceContainer},
		timeout:   cfg.DeleteTimeout,
	}, nil
}

// Handle runs one deletion event to completion. It never returns an error;
// the Result carries the outcome for the caller's redelivery decision.
func (h *Handler) Handle(ctx context.Context, blobURL string) (res Result) {
	ll := logctx.FromContext(ctx).With(slog.String("blobURL", blobURL))
	res = Result{Container: h.container, Stage: StageReceived, LastStage: StageReceived}

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFatalError
			res.Err = fmt.Errorf("panic while deleting thumbnail: %v", r)
		}
		res.LastStage = res.Stage
		res.Stage = StageCompleted
		h.complete(ctx, ll, res)
	}()

	ll.Info("Thumbnail deletion started")

	path, err := h.deriver.Derive(blobURL)
	if err != nil {
		res.Outcome = OutcomeFatalError
		res.Err = err
		return res
	}
	res.Path = path
	res.Stage = StagePathDerived

	if h.store == nil {
		res.Outcome = OutcomeFatalError
		res.Err = ErrStoreUnavailable
		return res
	}

	dctx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res.Stage = StageDeleteAttempted
	err = h.store.DeleteObject(dctx, h.container, path)
	res.Outcome = Classify(err)
	if res.Outcome != OutcomeSuccess {
		res.Err = err
	}
	return res
}

func (h *Handler) complete(ctx context.Context, ll *slog.Logger, res Result) {
	cleanupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", res.Outcome.String()),
	))

	attrs := []any{
		slog.String("container", res.Container),
		slog.String("path", res.Path),
		slog.String("outcome", res.Outcome.String()),
		slog.String("lastStage", res.LastStage.String()),
	}
	switch res.Outcome {
	case OutcomeSuccess:
		ll.Info("Thumbnail deletion completed", attrs...)
	case OutcomeNotFound:
		ll.Warn("Thumbnail deletion completed, thumbnail not found", attrs...)
	case OutcomeTransientError:
		ll.Warn("Thumbnail deletion completed with a transient error", append(attrs, slog.Any("error", res.Err))...)
	default:
		ll.Error("Thumbnail deletion completed with an error", append(attrs, slog.Any("error", res.Err))...)
	}
}
