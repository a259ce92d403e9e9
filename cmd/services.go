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
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/thumbsync/config"
	"github.com/cardinalhq/thumbsync/internal/awsclient"
	"github.com/cardinalhq/thumbsync/internal/azureclient"
	"github.com/cardinalhq/thumbsync/internal/cloudstorage"
	"github.com/cardinalhq/thumbsync/internal/debugging"
	"github.com/cardinalhq/thumbsync/internal/enqueue"
	"github.com/cardinalhq/thumbsync/internal/healthcheck"
	"github.com/cardinalhq/thumbsync/internal/thumbnails"
)

func newQueueBackend(ctx context.Context, cfg *config.Config) (enqueue.QueueBackend, error) {
	switch cfg.Queue.Provider {
	case enqueue.ProviderSQS:
		mgr, err := awsclient.NewManager(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS manager: %w", err)
		}
		client, err := mgr.GetSQS(ctx, cfg.Queue.SQS)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQS client: %w", err)
		}
		return enqueue.NewSQSBackend(client.Client), nil
	default:
		svc, err := azureclient.NewManager(ctx).QueueService(ctx, cfg.Queue.Azure)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Queue client: %w", err)
		}
		return enqueue.NewAzureBackend(svc), nil
	}
}

func newEnqueueService(ctx context.Context, cfg *config.Config) (*enqueue.Service, error) {
	if err := cfg.ValidateQueue(); err != nil {
		return nil, fmt.Errorf("invalid queue configuration: %w", err)
	}
	encoding, err := enqueue.ParseEncoding(cfg.Queue.Encoding)
	if err != nil {
		return nil, err
	}
	backend, err := newQueueBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return enqueue.NewService(backend, enqueue.WithEncoding(encoding)), nil
}

func newThumbnailStore(ctx context.Context, cfg *config.Config) (cloudstorage.Client, error) {
	return cloudstorage.NewCloudManagers(ctx).NewClient(ctx, cfg.Storage)
}

func newCleanupHandler(ctx context.Context, cfg *config.Config) (*thumbnails.Handler, error) {
	if err := cfg.ValidateCleanup(); err != nil {
		return nil, fmt.Errorf("invalid cleanup configuration: %w", err)
	}
	store, err := newThumbnailStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return thumbnails.NewHandler(store, cfg.Thumbnails())
}

// runWithHealth runs a long-lived service next to the health check and
// pprof servers. The service is handed the health server so it can report readiness.
func runWithHealth(ctx context.Context, cfg *config.Config, run func(ctx context.Context, hc *healthcheck.Server) error) error {
	hcfg := cfg.Health
	hc := healthcheck.NewServer(hcfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if hcfg.Enabled {
		g.Go(func() error {
			return hc.Start(gctx)
		})
	}
	g.Go(func() error {
		return debugging.RunPprof(gctx, cfg.Debug)
	})
	g.Go(func() error {
		defer cancel()
		hc.SetStatus(healthcheck.StatusHealthy)
		err := run(gctx, hc)
		if err != nil {
			hc.SetStatus(healthcheck.StatusUnhealthy)
		}
		return err
	})
	return g.Wait()
}

// serveHTTP serves handler on addr until ctx is done.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, ready func(bool)) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	ready(true)
	defer ready(false)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server", slog.String("addr", addr))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
