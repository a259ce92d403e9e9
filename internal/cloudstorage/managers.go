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

package cloudstorage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cardinalhq/thumbsync/internal/awsclient"
	"github.com/cardinalhq/thumbsync/internal/azureclient"
)

// CloudManagers holds the cloud provider managers. The AWS manager loads
// the default credential chain, so it is only built when first needed.
type CloudManagers struct {
	Azure *azureclient.Manager

	awsOnce sync.Once
	aws     *awsclient.Manager
	awsErr  error
}

func NewCloudManagers(ctx context.Context) *CloudManagers {
	return &CloudManagers{
		Azure: azureclient.NewManager(ctx),
	}
}

// AWS returns the shared AWS manager.
func (m *CloudManagers) AWS(ctx context.Context) (*awsclient.Manager, error) {
	m.awsOnce.Do(func() {
		m.aws, m.awsErr = awsclient.NewManager(ctx)
	})
	if m.awsErr != nil {
		return nil, fmt.Errorf("failed to create AWS manager: %w", m.awsErr)
	}
	return m.aws, nil
}

func (m *CloudManagers) NewClient(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderS3:
		mgr, err := m.AWS(ctx)
		if err != nil {
			return nil, err
		}
		s3c, err := mgr.GetS3(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return newS3Client(s3c.Client, s3c.Tracer), nil
	case ProviderAzure, "":
		blob, err := m.Azure.GetBlob(ctx, cfg.Azure)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
		return newAzureClient(blob.Client, blob.Tracer), nil
	default:
		return nil, fmt.Errorf("unsupported cloud provider: %s", cfg.Provider)
	}
}
