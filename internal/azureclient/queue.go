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

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"go.opentelemetry.io/otel/trace"
)

type QueueClient struct {
	QueueClient *azqueue.QueueClient
	Name        string
	Tracer      trace.Tracer
}

type queueConfig struct {
	Config
	QueueName string
}

type QueueOption func(*queueConfig)

func WithQueueAccount(cfg Config) QueueOption {
	return func(c *queueConfig) {
		c.Config = cfg
	}
}

func WithQueueName(name string) QueueOption {
	return func(c *queueConfig) {
		c.QueueName = name
	}
}

// GetQueue returns a client for one queue. Service clients are shared per account.
func (m *Manager) GetQueue(ctx context.Context, opts ...QueueOption) (*QueueClient, error) {
	qc := queueConfig{}
	for _, o := range opts {
		o(&qc)
	}

	if qc.QueueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}

	svc, err := m.QueueService(ctx, qc.Config)
	if err != nil {
		return nil, err
	}

	return &QueueClient{
		QueueClient: svc.NewQueueClient(qc.QueueName),
		Name:        qc.QueueName,
		Tracer:      m.tracer,
	}, nil
}

// QueueService returns the cached queue service client for an account.
func (m *Manager) QueueService(_ context.Context, cfg Config) (*azqueue.ServiceClient, error) {
	key := clientKey{Service: "queue", Config: cfg}
	m.RLock()
	svc, ok := m.queueServices[key]
	m.RUnlock()
	if ok {
		return svc, nil
	}

	m.Lock()
	defer m.Unlock()
	if svc, ok = m.queueServices[key]; ok {
		return svc, nil
	}

	opts := &azqueue.ClientOptions{}

	var err error
	if cfg.ConnectionString != "" {
		svc, err = azqueue.NewServiceClientFromConnectionString(cfg.ConnectionString, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create queue service client from connection string: %w", err)
		}
	} else {
		url, uerr := serviceURL(cfg, "queue")
		if uerr != nil {
			return nil, uerr
		}
		cred, cerr := m.credential()
		if cerr != nil {
			return nil, cerr
		}
		svc, err = azqueue.NewServiceClient(url, cred, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create queue service client: %w", err)
		}
	}

	m.queueServices[key] = svc
	return svc, nil
}
