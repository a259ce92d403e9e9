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
	"time"

	"github.com/cardinalhq/thumbsync/internal/thumbnails"
)

// Service is a long-running event ingress.
type Service interface {
	Run(ctx context.Context) error
}

// Schema names the envelope an event arrived in.
type Schema string

const (
	SchemaEventGrid   Schema = "eventgrid"
	SchemaCloudEvents Schema = "cloudevents"
	SchemaS3          Schema = "s3"
)

// TypeS3ObjectRemoved covers every ObjectRemoved:* S3 notification.
const TypeS3ObjectRemoved = "s3:ObjectRemoved"

// Event is one notification taken out of its envelope.
type Event struct {
	ID        string
	Type      string
	Subject   string
	Source    string
	EventTime time.Time
	Schema    Schema
	Data      json.RawMessage

	// URL is filled in directly for envelopes that carry no data payload.
	URL string
}

// BlobDeletedEvent is a deletion notification for a source blob.
type BlobDeletedEvent struct {
	ID        string
	Type      string
	Subject   string
	Source    string
	URL       string
	EventTime time.Time
	Schema    Schema
}

// Cleaner removes the thumbnail for a deleted blob.
type Cleaner interface {
	Handle(ctx context.Context, blobURL string) thumbnails.Result
}
