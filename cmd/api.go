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
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cardinalhq/thumbsync/config"
	"github.com/cardinalhq/thumbsync/internal/enqueue"
	"github.com/cardinalhq/thumbsync/internal/healthcheck"
)

func init() {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP enqueue API",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWithTelemetry("api", runAPI)
		},
	}
	rootCmd.AddCommand(cmd)
}

func runAPI(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, err := newEnqueueService(ctx, cfg)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/queue/messages", enqueue.NewHTTPHandler(svc, cfg.Queue.Name))

	return runWithHealth(ctx, cfg, func(ctx context.Context, hc *healthcheck.Server) error {
		return serveHTTP(ctx, cfg.API.ListenAddr, otelhttp.NewHandler(mux, "api"), hc.SetReady)
	})
}
