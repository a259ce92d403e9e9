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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/eventgrid/azsystemevents"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/thumbsync/internal/constants"
)

// HTTPService is an Event Grid / CloudEvents webhook.
type HTTPService struct {
	dispatcher *Dispatcher
	addr       string
	tracer     trace.Tracer
	ready      func(bool)
}

var _ Service = (*HTTPService)(nil)

type HTTPOption func(*HTTPService)

// WithReadyFunc is called with true once the listener is bound.
func WithReadyFunc(f func(bool)) HTTPOption {
	return func(s *HTTPService) { s.ready = f }
}

func NewHTTPService(dispatcher *Dispatcher, addr string, opts ...HTTPOption) *HTTPService {
	s := &HTTPService{
		dispatcher: dispatcher,
		addr:       addr,
		tracer:     otel.Tracer("github.com/cardinalhq/thumbsync/internal/pubsub"),
		ready:      func(bool) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (ps *HTTPService) Run(doneCtx context.Context) error {
	ln, err := net.Listen("tcp", ps.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ps.addr, err)
	}
	return ps.Serve(doneCtx, ln)
}

func (ps *HTTPService) Serve(doneCtx context.Context, ln net.Listener) error {
	slog.Info("Starting event webhook", slog.String("addr", ln.Addr().String()))

	srv := &http.Server{
		Handler:           otelhttp.NewHandler(ps, "cleanup.webhook"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	ps.ready(true)

	select {
	case <-doneCtx.Done():
	case err, ok := <-errCh:
		ps.ready(false)
		if ok {
			return fmt.Errorf("event webhook: %w", err)
		}
		return nil
	}

	ps.ready(false)
	slog.Info("Shutting down event webhook")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown event webhook: %w", err)
	}
	return nil
}

func (ps *HTTPService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		ps.handshake(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.HTTPBodyLimitBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error reading request body", http.StatusInternalServerError)
		return
	}

	ctx, span := ps.tracer.Start(r.Context(), "HTTPService.Dispatch")
	defer span.End()

	disp, err := ps.dispatcher.Dispatch(ctx, body)
	if err != nil {
		slog.Warn("Rejecting unparsable event payload", slog.Any("error", err))
		http.Error(w, "Invalid event payload", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.Int("acked", disp.Acked),
		attribute.Int("redeliver", disp.Redeliver),
	)

	if disp.ValidationCode != "" {
		resp := azsystemevents.SubscriptionValidationResponse{
			ValidationResponse: to.Ptr(disp.ValidationCode),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("Failed to write validation response", slog.Any("error", err))
		}
		return
	}

	if disp.NeedsRedelivery() {
		http.Error(w, "Retry later", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handshake answers the CloudEvents webhook abuse-protection request.
func (ps *HTTPService) handshake(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("WebHook-Request-Origin")
	if origin == "" {
		http.Error(w, "Missing WebHook-Request-Origin", http.StatusBadRequest)
		return
	}
	w.Header().Set("WebHook-Allowed-Origin", origin)
	w.Header().Set("Allow", "POST, OPTIONS")
	w.WriteHeader(http.StatusOK)
}
