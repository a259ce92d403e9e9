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

package azureclient

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.opentelemetry.io/otel/trace"
)

type BlobClient struct {
	Client *azblob.Client
	Tracer trace.Tracer
}

// GetBlob returns the cached blob client for an account.
func (m *Manager) GetBlob(_ context.Context, cfg Config) (*BlobClient, error) {
	key := clientKey{Service: "blob", Config: cfg}
	m.RLock()
	client, ok := m.blobClients[key]
	m.RUnlock()
	if !ok {
		m.Lock()
		if client, ok = m.blobClients[key]; !ok {
			opts := &azblob.ClientOptions{}

			var err error
			if cfg.ConnectionString != "" {
				client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
			} else {
				url, uerr := serviceURL(cfg, "blob")
				if uerr != nil {
					m.Unlock()
					return nil, uerr
				}
				cred, cerr := m.credential()
				if cerr != nil {
					m.Unlock()
					return nil, cerr
				}
				client, err = azblob.NewClient(url, cred, opts)
			}
			if err != nil {
				m.Unlock()
				return nil, fmt.Errorf("failed to create blob client: %w", err)
			}
			m.blobClients[key] = client
		}
		m.Unlock()
	}

	return &BlobClient{Client: client, Tracer: m.tracer}, nil
}
