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
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/cardinalhq/thumbsync/internal/constants"
)

// Enqueuer is satisfied by *Service.
type Enqueuer interface {
	EnsureQueueAndEnqueue(ctx context.Context, queueName, message string) error
}

// HTTPHandler accepts messages over HTTP for the configured queue.
type HTTPHandler struct {
	enqueuer  Enqueuer
	queueName string
}

func NewHTTPHandler(enqueuer Enqueuer, queueName string) *HTTPHandler {
	return &HTTPHandler{enqueuer: enqueuer, queueName: queueName}
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Queue  string `json:"queue"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	message := string(body)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req messageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			h.respond(w, http.StatusBadRequest, messageResponse{Error: "invalid JSON body"})
			return
		}
		message = req.Message
	}

	err = h.enqueuer.EnsureQueueAndEnqueue(r.Context(), h.queueName, message)
	switch {
	case err == nil:
		h.respond(w, http.StatusAccepted, messageResponse{Status: "queued"})
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrInvalidQueueName):
		h.respond(w, http.StatusBadRequest, messageResponse{Error: err.Error()})
	case errors.Is(err, ErrMessageTooLarge):
		h.respond(w, http.StatusRequestEntityTooLarge, messageResponse{Error: err.Error()})
	default:
		slog.Error("Failed to enqueue message", slog.String("queue", h.queueName), slog.Any("error", err))
		h.respond(w, http.StatusBadGateway, messageResponse{Error: "queue platform error"})
	}
}

func (h *HTTPHandler) respond(w http.ResponseWriter, status int, resp messageResponse) {
	resp.Queue = h.queueName
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode enqueue response", slog.Any("error", err))
	}
}
