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
	"sync"

	"github.com/cardinalhq/thumbsync/internal/thumbnails"
)

const (
	sourceURL = "https://acct.blob.core.windows.net/screenshots/11/escape-from-monkey-island.jpg"

	eventGridDeleted = `[{
  "id": "e1",
  "topic": "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/acct",
  "subject": "/blobServices/default/containers/screenshots/blobs/11/escape-from-monkey-island.jpg",
  "eventType": "Microsoft.Storage.BlobDeleted",
  "eventTime": "2024-05-01T10:00:00Z",
  "data": {
    "api": "DeleteBlob",
    "contentType": "image/jpeg",
    "blobType": "BlockBlob",
    "url": "https://acct.blob.core.windows.net/screenshots/11/escape-from-monkey-island.jpg"
  },
  "dataVersion": "",
  "metadataVersion": "1"
}]`

	eventGridValidation = `[{
  "id": "v1",
  "topic": "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/acct",
  "subject": "",
  "eventType": "Microsoft.EventGrid.SubscriptionValidationEvent",
  "eventTime": "2024-05-01T10:00:00Z",
  "data": {
    "validationCode": "512d38b6-c7b8-40c8-89fe-f46f9e9622b6",
    "validationUrl": "https://rp-eastus2.eventgrid.azure.net/validate"
  },
  "dataVersion": "1",
  "metadataVersion": "1"
}]`

	eventGridCreated = `{
  "id": "e2",
  "topic": "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/acct",
  "subject": "/blobServices/default/containers/screenshots/blobs/11/new.jpg",
  "eventType": "Microsoft.Storage.BlobCreated",
  "eventTime": "2024-05-01T10:00:00Z",
  "data": {"api": "PutBlob", "url": "https://acct.blob.core.windows.net/screenshots/11/new.jpg"},
  "dataVersion": "",
  "metadataVersion": "1"
}`

	cloudEventDeleted = `{
  "specversion": "1.0",
  "type": "Microsoft.Storage.BlobDeleted",
  "source": "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/acct",
  "id": "c1",
  "time": "2024-05-01T10:00:00Z",
  "subject": "/blobServices/default/containers/screenshots/blobs/11/escape-from-monkey-island.jpg",
  "datacontenttype": "application/json",
  "data": {"api": "DeleteBlob", "url": "https://acct.blob.core.windows.net/screenshots/11/escape-from-monkey-island.jpg"}
}`

	s3Removed = `{"Records": [{
  "eventVersion": "2.1",
  "eventSource": "aws:s3",
  "eventTime": "2024-05-01T10:00:00.000Z",
  "eventName": "ObjectRemoved:Delete",
  "s3": {
    "bucket": {"name": "screenshots"},
    "object": {"key": "11/my+game.jpg", "sequencer": "0055AED6DCD90281E5"}
  }
}]}`
)

type fakeCleaner struct {
	mu       sync.Mutex
	urls     []string
	outcomes map[string]thumbnails.Outcome
}

func (f *fakeCleaner) Handle(_ context.Context, blobURL string) thumbnails.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, blobURL)
	return thumbnails.Result{
		Outcome: f.outcomes[blobURL],
		Stage:   thumbnails.StageCompleted,
	}
}

func (f *fakeCleaner) handled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func newTestDispatcher(c *fakeCleaner) *Dispatcher {
	return NewDispatcher(c, thumbnails.RedeliveryPolicy{RedeliverTransient: true}, "test")
}
