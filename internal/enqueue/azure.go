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
	"fmt"
	"net/http"
	"regexp"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue/queueerror"

	"github.com/cardinalhq/thumbsync/internal/constants"
)

// azureQueueAPI is the part of *azqueue.QueueClient used here.
type azureQueueAPI interface {
	Create(ctx context.Context, options *azqueue.CreateOptions) (azqueue.CreateResponse, error)
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// AzureBackend writes to Azure Queue Storage.
type AzureBackend struct {
	queue func(name string) azureQueueAPI
}

var _ QueueBackend = (*AzureBackend)(nil)

func NewAzureBackend(svc *azqueue.ServiceClient) *AzureBackend {
	return &AzureBackend{
		queue: func(name string) azureQueueAPI {
			return svc.NewQueueClient(name)
		},
	}
}

func (b *AzureBackend) Provider() string {
	return ProviderAzure
}

func (b *AzureBackend) MaxMessageBytes() int {
	return constants.AzureQueueMessageMaxBytes
}

// 3-63 chars, lowercase letters, digits and single dashes, alphanumeric at both ends.
var azureQueueNameRE = regexp.MustCompile(`^[a-z0-9](-?[a-z0-9])+$`)

func (b *AzureBackend) ValidateQueueName(name string) error {
	if len(name) < 3 || len(name) > 63 || !azureQueueNameRE.MatchString(name) {
		return fmt.Errorf("%q is not a valid Azure queue name", name)
	}
	return nil
}

// EnsureQueue creates the queue. The service answers 201 when it created
// the queue and 204 when an identical one was already there; a queue that
// exists with different metadata is reported as QueueAlreadyExists.
func (b *AzureBackend) EnsureQueue(ctx context.Context, name string) (QueueRef, error) {
	var resp *http.Response
	_, err := b.queue(name).Create(policy.WithCaptureResponse(ctx, &resp), nil)
	if err != nil {
		if queueerror.HasCode(err, queueerror.QueueAlreadyExists) {
			return QueueRef{Name: name}, nil
		}
		return QueueRef{}, err
	}
	return QueueRef{Name: name, Created: resp != nil && resp.StatusCode == http.StatusCreated}, nil
}

func (b *AzureBackend) Send(ctx context.Context, queue QueueRef, content string) error {
	_, err := b.queue(queue.Name).EnqueueMessage(ctx, content, nil)
	return err
}
