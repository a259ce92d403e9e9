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

package cmd

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cardinalhq/thumbsync/config"
	"github.com/cardinalhq/thumbsync/internal/healthcheck"
)

func TestHandleSignalsParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := handleSignals(parent)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled with its parent")
	}
}

func TestHandleSignalsSIGTERM(t *testing.T) {
	ctx, cancel := handleSignals(context.Background())
	defer cancel()

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGTERM))
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
}

func TestRunWithHealth(t *testing.T) {
	cfg := &config.Config{Health: healthcheck.Config{Enabled: false}}

	var seen *healthcheck.Server
	err := runWithHealth(context.Background(), cfg, func(_ context.Context, hc *healthcheck.Server) error {
		seen = hc
		hc.SetReady(true)
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.True(t, seen.IsReady())
}

func TestRunWithHealthPropagatesError(t *testing.T) {
	cfg := &config.Config{}
	boom := errors.New("boom")

	var seen *healthcheck.Server
	err := runWithHealth(context.Background(), cfg, func(_ context.Context, hc *healthcheck.Server) error {
		seen = hc
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, healthcheck.StatusUnhealthy, seen.GetStatus())
}

func TestServeHTTPReadiness(t *testing.T) {
	var ready atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- serveHTTP(ctx, "127.0.0.1:0", http.NotFoundHandler(), ready.Store)
	}()

	require.Eventually(t, ready.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.False(t, ready.Load())
}
