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
	"errors"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/cardinalhq/thumbsync/internal/constants"
)

// sqsAPI is the part of *sqs.Client used here.
type sqsAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSBackend writes to Amazon SQS.
type SQSBackend struct {
	client sqsAPI
}

var _ QueueBackend = (*SQSBackend)(nil)

func NewSQSBackend(client sqsAPI) *SQSBackend {
	return &SQSBackend{client: client}
}

func (b *SQSBackend) Provider() string {
	return ProviderSQS
}

func (b *SQSBackend) MaxMessageBytes() int {
	return constants.SQSMessageMaxBytes
}

var sqsQueueNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,75}(\.fifo)?$|^[A-Za-z0-9_-]{1,80}$`)

func (b *SQSBackend) ValidateQueueName(name string) error {
	if !sqsQueueNameRE.MatchString(name) {
		return fmt.Errorf("%q is not a valid SQS queue name", name)
	}
	return nil
}

// EnsureQueue looks the queue up first so that creation can be reported;
// CreateQueue itself is idempotent for identical attributes.
func (b *SQSBackend) EnsureQueue(ctx context.Context, name string) (QueueRef, error) {
	out, err := b.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err == nil {
		return QueueRef{Name: name, URL: aws.ToString(out.QueueUrl)}, nil
	}

	var notExist *types.QueueDoesNotExist
	if !errors.As(err, &notExist) {
		return QueueRef{}, err
	}

	created, err := b.client.CreateQueue(ctx, &sqs.CreateQueueInput{QueueName: aws.String(name)})
	if err != nil {
		return QueueRef{}, err
	}
	return QueueRef{Name: name, URL: aws.ToString(created.QueueUrl), Created: true}, nil
}

func (b *SQSBackend) Send(ctx context.Context, queue QueueRef, content string) error {
	_, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queue.URL),
		MessageBody: aws.String(content),
	})
	return err
}
