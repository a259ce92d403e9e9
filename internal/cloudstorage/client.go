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
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/thumbsync/internal/awsclient"
	"github.com/cardinalhq/thumbsync/internal/azureclient"
)

const (
	ProviderAzure = "azure"
	ProviderS3    = "s3"
)

// Client provides a unified interface for object storage across providers.
type Client interface {
	// DeleteObject deletes one object. A missing object is reported as an
	// error that IsNotFound recognizes.
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Config selects a provider and the account or bucket settings for it.
type Config struct {
	Provider  string             `mapstructure:"provider"`
	Container string             `mapstructure:"container"`
	Azure     azureclient.Config `mapstructure:"azure"`
	S3        awsclient.Config   `mapstructure:"s3"`
}

var deleteCounter metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/thumbsync/internal/cloudstorage")

	var err error
	deleteCounter, err = meter.Int64Counter(
		"thumbsync.cloudstorage.deletes",
		metric.WithDescription("Number of object deletes issued, by provider and result"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cloudstorage.deletes counter: %w", err))
	}
}

// IsNotFound reports whether err means the object or its container is missing.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return true
	}

	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return true
		}
	}
	return false
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
