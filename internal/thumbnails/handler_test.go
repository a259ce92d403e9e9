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
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/thumbsync/internal/cloudstorage"
	"github.com/cardinalhq/thumbsync/internal/logctx"
)

// memoryStore is a thumbnails container held in a map.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string]bool
	err     error
	panics  bool
	calls   []string
}

func newMemoryStore(paths ...string) *memoryStore {
	s := &memoryStore{objects: map[string]bool{}}
	for _, p := range paths {
		s.objects["thumbnails/"+p] = true
	}
	return s
}

func (s *memoryStore) DeleteObject(ctx context.Context, container, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, container+"/"+path)
	if s.panics {
		panic("store exploded")
	}
	if s.err != nil {
		return s.err
	}
	key := container + "/" + path
	if !s.objects[key] {
		return azureErr(404, "BlobNotFound")
	}
	delete(s.objects, key)
	return nil
}

func newTestHandler(t *testing.T, store cloudstorage.Client, mutate ...func(*Config)) *Handler {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h, err := NewHandler(store, cfg)
	require.NoError(t, err)
	return h
}

func capture() (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	ll := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logctx.WithLogger(context.Background(), ll), &buf
}

func TestHandle_DeletesThumbnail(t *testing.T) {
	store := newMemoryStore("11/game.jpg", "12/other.jpg")
	h := newTestHandler(t, store)
	ctx, logs := capture()

	res := h.Handle(ctx, "https://acct.blob.core.windows.net/screenshots/11/game.jpg")

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, StageCompleted, res.Stage)
	assert.Equal(t, StageDeleteAttempted, res.LastStage)
	assert.Equal(t, "thumbnails", res.Container)
	assert.Equal(t, "11/game.jpg", res.Path)
	assert.NoError(t, res.Err)
	assert.False(t, store.objects["thumbnails/11/game.jpg"])
	assert.True(t, store.objects["thumbnails/12/other.jpg"])

	assert.Contains(t, logs.String(), "Thumbnail deletion started")
	assert.Contains(t, logs.String(), "Thumbnail deletion completed")
	assert.Contains(t, logs.String(), "path=11/game.jpg")
}

func TestHandle_MissingThumbnailCompletes(t *testing.T) {
	store := newMemoryStore()
	h := newTestHandler(t, store)
	ctx, logs := capture()

	res := h.Handle(ctx, "https://acct.blob.core.windows.net/screenshots/11/game.jpg")

	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, StageCompleted, res.Stage)
	assert.Equal(t, []string{"thumbnails/11/game.jpg"}, store.calls)
	assert.Contains(t, logs.String(), "outcome=not_found")
	assert.False(t, RedeliveryPolicy{RedeliverTransient: true}.ShouldRedeliver(res))
}

func TestHandle_DeeperPathTargetsTrailingSegments(t *testing.T) {
	store := newMemoryStore("b/c.jpg", "a/b/c.jpg")
	h := newTestHandler(t, store)
	ctx, _ := capture()

	res := h.Handle(ctx, "https://acct.blob.core.windows.net/screenshots/a/b/c.jpg")

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "b/c.jpg", res.Path)
	assert.True(t, store.objects["thumbnails/a/b/c.jpg"])
}

func TestHandle_ContainerPrefixKeepsFullDepth(t *testing.T) {
	store := newMemoryStore("b/c.jpg", "a/b/c.jpg")
	h := newTestHandler(t, store, func(c *Config) { c.PathStrategy = string(StrategyContainerPrefix) })
	ctx, _ := capture()

	res := h.Handle(ctx, "https://acct.blob.core.windows.net/screenshots/a/b/c.jpg")

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "a/b/c.jpg", res.Path)
	assert.True(t, store.objects["thumbnails/b/c.jpg"])
}

func TestHandle_MalformedURLIsFatalAndCompletes(t *testing.T) {
	store := newMemoryStore()
	h := newTestHandler(t, store)
	ctx, logs := capture()

	res := h.Handle(ctx, "https://acct.blob.core.windows.net/only.jpg")

	assert.Equal(t, OutcomeFatalError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrMalformedBlobURL)
	assert.Equal(t, StageCompleted, res.Stage)
	assert.Equal(t, StageReceived, res.LastStage)
	assert.Empty(t, store.calls)
	assert.Contains(t, logs.String(), "level=ERROR")
}

func TestHandle_URLWithoutSlashesCompletes(t *testing.T) {
	store := newMemoryStore("11/escape-from-monkey-island.jpg")
	h := newTestHandler(t, store)
	ctx, logs := capture()

	res := h.Handle(ctx, "escape-from-monkey-island.jpg")

	assert.Equal(t, OutcomeFatalError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrMalformedBlobURL)
	assert.Equal(t, StageCompleted, res.Stage)
	assert.Empty(t, store.calls)
	assert.True(t, store.objects["thumbnails/11/escape-from-monkey-island.jpg"])
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), "Thumbnail deletion completed")
}

func TestHandle_TransientErrorIsRedelivered(t *testing.T) {
	store := newMemoryStore("11/game.jpg")
	store.err = azureErr(503, "ServerBusy")
	h := newTestHandler(t, store)
	ctx, logs := capture()

	res := h.Handle(ctx, "https://acct.blob.core.windows.net/screenshots/11/game.jpg")

	assert.Equal(t, OutcomeTransientError, res.Outcome)
	assert.Error(t, res.Err)
	assert.True(t, RedeliveryPolicy{RedeliverTransient: true}.ShouldRedeliver(res))
	assert.False(t, RedeliveryPolicy{}.ShouldRedeliver(res))
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestHandle_RecoversFromPanic(t *testing.T) {
	store := newMemoryStore()
	store.panics = true
	h := newTestHandler(t, store)
	ctx, logs := capture()

	var res Result
	require.NotPanics(t, func() {
		res = h.Handle(ctx, "https://acct.blob.core.windows.net/screenshots/11/game.jpg")
	})
	assert.Equal(t, OutcomeFatalError, res.Outcome)
	assert.Equal(t, StageCompleted, res.Stage)
	assert.Contains(t, res.Err.Error(), "store exploded")
	assert.Contains(t, logs.String(), "Thumbnail deletion completed")
}

type slowStore struct{}

func (slowStore) DeleteObject(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHandle_DeleteTimeoutIsTransient(t *testing.T) {
	h := newTestHandler(t, slowStore{}, func(c *Config) { c.DeleteTimeout = 10 * time.Millisecond })
	ctx, _ := capture()

	res := h.Handle(ctx, "https://acct.blob.core.windows.net/screenshots/11/game.jpg")

	assert.Equal(t, OutcomeTransientError, res.Outcome)
}

func TestHandle_NilStore(t *testing.T) {
	h := newTestHandler(t, nil)
	ctx, _ := capture()

	res := h.Handle(ctx, "https://acct.blob.core.windows.net/screenshots/11/game.jpg")

	assert.Equal(t, OutcomeFatalError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrStoreUnavailable)
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(nil, Config{PathStrategy: "bogus", Container: "thumbnails"})
	assert.Error(t, err)

	_, err = NewHandler(nil, Config{})
	assert.Error(t, err, "container required")

	_, err = NewHandler(nil, Config{Container: "thumbnails", PathStrategy: string(StrategyContainerPrefix)})
	assert.Error(t, err, "source container required")
}
