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
)

func init() {
	var message, queueName string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Ensure a queue exists and put one message on it",
		RunE: func(_ *cobra.Command, _ []string) error {
			if message == "" {
				return errors.New("--message is required")
			}
			return runWithTelemetry("enqueue", func(ctx context.Context) error {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if queueName == "" {
					queueName = cfg.Queue.Name
				}

				svc, err := newEnqueueService(ctx, cfg)
				if err != nil {
					return err
				}
				if err := svc.EnsureQueueAndEnqueue(ctx, queueName, message); err != nil {
					return err
				}
				slog.Info("Message enqueued", slog.String("queue", queueName), slog.String("provider", cfg.Queue.Provider))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Message text to enqueue")
	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Queue name (defaults to queue.name)")

	rootCmd.AddCommand(cmd)
}
