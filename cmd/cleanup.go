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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/thumbsync/config"
	"github.com/cardinalhq/thumbsync/internal/awsclient"
	"github.com/cardinalhq/thumbsync/internal/azureclient"
	"github.com/cardinalhq/thumbsync/internal/healthcheck"
	"github.com/cardinalhq/thumbsync/internal/pubsub"
	"github.com/cardinalhq/thumbsync/internal/thumbnails"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete thumbnails when their source blobs are deleted",
	}
	rootCmd.AddCommand(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "http",
		Short: "Receive blob deleted events on an Event Grid webhook",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWithTelemetry("cleanup-http", func(ctx context.Context) error {
				return runCleanup(ctx, "http", func(ctx context.Context, cfg *config.Config, d *pubsub.Dispatcher, hc *healthcheck.Server) (pubsub.Service, error) {
					return pubsub.NewHTTPService(d, cfg.Cleanup.HTTP.ListenAddr, pubsub.WithReadyFunc(hc.SetReady)), nil
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "queue",
		Short: "Poll the Azure storage queue Event Grid delivers blob deleted events to",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWithTelemetry("cleanup-queue", func(ctx context.Context) error {
				return runCleanup(ctx, "azure-queue", func(ctx context.Context, cfg *config.Config, d *pubsub.Dispatcher, hc *healthcheck.Server) (pubsub.Service, error) {
					qc, err := azureclient.NewManager(ctx).GetQueue(ctx,
						azureclient.WithQueueAccount(cfg.Storage.Azure),
						azureclient.WithQueueName(cfg.Cleanup.Queue.Name),
					)
					if err != nil {
						return nil, fmt.Errorf("failed to create Azure Queue client: %w", err)
					}
					return pubsub.NewAzureQueueService(qc.QueueClient, d, cfg.Cleanup.Queue, hc.SetReady), nil
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sqs",
		Short: "Poll an SQS queue receiving S3 ObjectRemoved notifications",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWithTelemetry("cleanup-sqs", func(ctx context.Context) error {
				return runCleanup(ctx, "sqs", func(ctx context.Context, cfg *config.Config, d *pubsub.Dispatcher, hc *healthcheck.Server) (pubsub.Service, error) {
					if cfg.Cleanup.SQS.QueueURL == "" {
						return nil, errors.New("cleanup.sqs.queue_url is required")
					}
					mgr, err := awsclient.NewManager(ctx)
					if err != nil {
						return nil, fmt.Errorf("failed to create AWS manager: %w", err)
					}
					client, err := mgr.GetSQS(ctx, cfg.Cleanup.SQS.AWS)
					if err != nil {
						return nil, fmt.Errorf("failed to create SQS client: %w", err)
					}
					return pubsub.NewSQSService(client.Client, cfg.Cleanup.SQS.QueueURL, d, cfg.Cleanup.Queue, hc.SetReady), nil
				})
			})
		},
	})

	var blobURL string
	once := &cobra.Command{
		Use:   "once",
		Short: "Delete the thumbnail for a single deleted blob URL",
		RunE: func(_ *cobra.Command, _ []string) error {
			if blobURL == "" {
				return errors.New("--url is required")
			}
			return runWithTelemetry("cleanup-once", func(ctx context.Context) error {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				h, err := newCleanupHandler(ctx, cfg)
				if err != nil {
					return err
				}
				res := h.Handle(ctx, blobURL)
				if res.Outcome == thumbnails.OutcomeTransientError || res.Outcome == thumbnails.OutcomeFatalError {
					return fmt.Errorf("thumbnail deletion ended with %s: %w", res.Outcome, res.Err)
				}
				return nil
			})
		},
	}
	once.Flags().StringVar(&blobURL, "url", "", "URL of the deleted source blob")
	cmd.AddCommand(once)
}

type serviceBuilder func(ctx context.Context, cfg *config.Config, d *pubsub.Dispatcher, hc *healthcheck.Server) (pubsub.Service, error)

func runCleanup(ctx context.Context, ingress string, build serviceBuilder) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	handler, err := newCleanupHandler(ctx, cfg)
	if err != nil {
		return err
	}
	dispatcher := pubsub.NewDispatcher(handler, cfg.RedeliveryPolicy(), ingress)

	slog.Info("Starting thumbnail cleanup",
		slog.String("ingress", ingress),
		slog.String("container", cfg.Storage.Container),
		slog.String("pathStrategy", cfg.Cleanup.PathStrategy),
		slog.Bool("redeliverTransient", cfg.Cleanup.RedeliverTransient))

	return runWithHealth(ctx, cfg, func(ctx context.Context, hc *healthcheck.Server) error {
		svc, err := build(ctx, cfg, dispatcher, hc)
		if err != nil {
			return err
		}
		return svc.Run(ctx)
	})
}
