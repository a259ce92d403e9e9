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
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBackend behaves like a managed queue platform: creation is
// idempotent and sends are never deduplicated.
type memoryBackend struct {
	mu       sync.Mutex
	queues   map[string][]string
	creates  map[string]int
	limit    int
	ensureFn func(name string) error
	sendErr  error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		queues:  map[string][]string{},
		creates: map[string]int{},
		limit:   64 * 1024,
	}
}

func (m *memoryBackend) Provider() string { return "memory" }

func (m *memoryBackend) ValidateQueueName(name string) error {
	if name == "" || strings.ContainsAny(name, " /") {
		return fmt.Errorf("bad name %q", name)
	}
	return nil
}

func (m *memoryBackend) MaxMessageBytes() int { return m.limit }

func (m *memoryBackend) EnsureQueue(_ context.Context, name string) (QueueRef, error) {
	if m.ensureFn != nil {
		if err := m.ensureFn(name); err != nil {
			return QueueRef{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[name]; ok {
		return QueueRef{Name: name}, nil
	}
	m.queues[name] = nil
	m.creates[name]++
	return QueueRef{Name: name, Created: true}, nil
}

func (m *memoryBackend) Send(_ context.Context, queue QueueRef, content string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[queue.Name] = append(m.queues[queue.Name], content)
	return nil
}

func TestEnsureQueueAndEnqueue_PingScenario(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(backend)

	require.NoError(t, svc.EnsureQueueAndEnqueue(context.Background(), "screenshots-jobs", "ping"))

	assert.Equal(t, 1, backend.creates["screenshots-jobs"])
	require.Len(t, backend.queues["screenshots-jobs"], 1)

	decoded, err := base64.StdEncoding.DecodeString(backend.queues["screenshots-jobs"][0])
	require.NoError(t, err)
	assert.Equal(t, "ping", string(decoded))
}

func TestEnsureQueueAndEnqueue_TwiceCreatesOnceSendsTwice(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(backend)
	ctx := context.Background()

	require.NoError(t, svc.EnsureQueueAndEnqueue(ctx, "screenshots-jobs", "same"))
	require.NoError(t, svc.EnsureQueueAndEnqueue(ctx, "screenshots-jobs", "same"))

	assert.Equal(t, 1, backend.creates["screenshots-jobs"])
	assert.Len(t, backend.queues["screenshots-jobs"], 2)
}

func TestEnsureQueueAndEnqueue_NoEncoding(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(backend, WithEncoding(EncodingNone))

	require.NoError(t, svc.EnsureQueueAndEnqueue(context.Background(), "jobs", `{"id":11}`))
	assert.Equal(t, []string{`{"id":11}`}, backend.queues["jobs"])
}

func TestEnsureQueueAndEnqueue_PreChecks(t *testing.T) {
	tests := []struct {
		name    string
		queue   string
		message string
		limit   int
		wantErr error
	}{
		{"invalid queue name", "bad name", "ping", 1024, ErrInvalidQueueName},
		{"empty message", "jobs", "", 1024, ErrEmptyMessage},
		// base64 grows 3 bytes into 4
		{"too large once encoded", "jobs", strings.Repeat("x", 12), 15, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newMemoryBackend()
			backend.limit = tt.limit
			svc := NewService(backend)

			err := svc.EnsureQueueAndEnqueue(context.Background(), tt.queue, tt.message)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, backend.creates, "no remote call expected")
		})
	}
}

func TestEnsureQueueAndEnqueue_ExactLimitAccepted(t *testing.T) {
	backend := newMemoryBackend()
	backend.limit = 16
	svc := NewService(backend)

	require.NoError(t, svc.EnsureQueueAndEnqueue(context.Background(), "jobs", strings.Repeat("x", 12)))
}

func TestEnsureQueueAndEnqueue_PlatformFaultsPropagate(t *testing.T) {
	authErr := errors.New("AuthenticationFailed")

	t.Run("ensure", func(t *testing.T) {
		backend := newMemoryBackend()
		backend.ensureFn = func(string) error { return authErr }
		err := NewService(backend).EnsureQueueAndEnqueue(context.Background(), "jobs", "ping")
		require.ErrorIs(t, err, authErr)
		assert.Empty(t, backend.queues["jobs"])
	})

	t.Run("send", func(t *testing.T) {
		backend := newMemoryBackend()
		backend.sendErr = authErr
		err := NewService(backend).EnsureQueueAndEnqueue(context.Background(), "jobs", "ping")
		require.ErrorIs(t, err, authErr)
		assert.Equal(t, 1, backend.creates["jobs"])
	})
}
