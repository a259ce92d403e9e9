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
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Config identifies a storage account. A connection string wins over
// the account name; without one the default Azure credential chain is used.
type Config struct {
	Account          string `mapstructure:"account"`
	ConnectionString string `mapstructure:"connection_string"`
	// Endpoint overrides the service URL, eg for Azurite.
	Endpoint string `mapstructure:"endpoint"`
}

// IsZero reports whether no way of reaching an account was configured.
func (c Config) IsZero() bool {
	return c.Account == "" && c.ConnectionString == "" && c.Endpoint == ""
}

type clientKey struct {
	Service string
	Config
}

type Manager struct {
	credFactory func() (azcore.TokenCredential, error)

	sync.RWMutex
	cred          azcore.TokenCredential
	queueServices map[clientKey]*azqueue.ServiceClient
	blobClients   map[clientKey]*azblob.Client
	tracer        trace.Tracer
}

// NewManager prepares Azure client construction. Credentials are resolved
// lazily, so a process that only uses connection strings never touches
// the Azure identity chain.
func NewManager(_ context.Context) *Manager {
	return &Manager{
		credFactory: func() (azcore.TokenCredential, error) {
			return azidentity.NewDefaultAzureCredential(nil)
		},
		queueServices: make(map[clientKey]*azqueue.ServiceClient),
		blobClients:   make(map[clientKey]*azblob.Client),
		tracer:        otel.Tracer("github.com/cardinalhq/thumbsync/internal/azureclient"),
	}
}

// credential must be called with the write lock held.
func (m *Manager) credential() (azcore.TokenCredential, error) {
	if m.cred != nil {
		return m.cred, nil
	}
	cred, err := m.credFactory()
	if err != nil {
		return nil, fmt.Errorf("loading Azure credentials: %w", err)
	}
	m.cred = cred
	return cred, nil
}

func serviceURL(cfg Config, service string) (string, error) {
	if cfg.Endpoint != "" {
		return cfg.Endpoint, nil
	}
	if cfg.Account == "" {
		return "", fmt.Errorf("storage account or connection string is required")
	}
	return fmt.Sprintf("https://%s.%s.core.windows.net/", cfg.Account, service), nil
}
