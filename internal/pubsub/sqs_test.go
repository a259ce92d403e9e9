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
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/thumbsync/internal/thumbnails"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *mockSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sqs.DeleteMessageOutput)
	return out, args.Error(1)
}

const testQueueURL = "https://sqs.us-east-2.amazonaws.com/123456789012/thumbnail-cleanup"

func sqsMessage(id, body, receiveCount string) types.Message {
	return types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(body),
		Attributes:    map[string]string{"ApproximateReceiveCount": receiveCount},
	}
}

func deleteOf(id string) any {
	return mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.ReceiptHandle) == "rh-"+id && aws.ToString(in.QueueUrl) == testQueueURL
	})
}

func TestSQS_HandledMessagesAreDeleted(t *testing.T) {
	s3URL := "https://s3.amazonaws.com/screenshots/11/my%20game.jpg"
	c := &fakeCleaner{outcomes: map[string]thumbnails.Outcome{}}
	m := &mockSQS{}
	m.On("ReceiveMessage", mock.Anything, mock.Anything).Return(&sqs.ReceiveMessageOutput{
		Messages: []types.Message{
			sqsMessage("ok", s3Removed, "1"),
			sqsMessage("poison", s3Removed, "9"),
		},
	}, nil).Once()
	m.On("DeleteMessage", mock.Anything, deleteOf("ok")).Return(&sqs.DeleteMessageOutput{}, nil).Once()
	m.On("DeleteMessage", mock.Anything, deleteOf("poison")).Return(&sqs.DeleteMessageOutput{}, nil).Once()

	svc := newSQSService(m, testQueueURL, newTestDispatcher(c), DefaultQueueConfig(), nil)
	n, err := svc.pollOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{s3URL}, c.handled())
	m.AssertExpectations(t)
}

func TestSQS_TransientLeavesMessage(t *testing.T) {
	s3URL := "https://s3.amazonaws.com/screenshots/11/my%20game.jpg"
	c := &fakeCleaner{outcomes: map[string]thumbnails.Outcome{s3URL: thumbnails.OutcomeTransientError}}
	m := &mockSQS{}
	m.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return aws.ToString(in.QueueUrl) == testQueueURL && in.VisibilityTimeout == 30
	})).Return(&sqs.ReceiveMessageOutput{
		Messages: []types.Message{sqsMessage("retry", s3Removed, "1")},
	}, nil).Once()

	svc := newSQSService(m, testQueueURL, newTestDispatcher(c), DefaultQueueConfig(), nil)
	_, err := svc.pollOnce(context.Background())
	require.NoError(t, err)

	m.AssertExpectations(t)
	m.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything)
}

func TestReceiveCount(t *testing.T) {
	assert.Equal(t, int64(3), receiveCount(sqsMessage("a", "", "3")))
	assert.Equal(t, int64(0), receiveCount(types.Message{}))
	assert.Equal(t, int64(0), receiveCount(sqsMessage("a", "", "x")))
}
