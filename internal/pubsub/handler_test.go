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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/thumbsync/internal/thumbnails"
)

func TestDispatch_BlobDeletedReachesCleaner(t *testing.T) {
	c := &fakeCleaner{}
	disp, err := newTestDispatcher(c).Dispatch(context.Background(), []byte(eventGridDeleted))
	require.NoError(t, err)

	assert.Equal(t, []string{sourceURL}, c.handled())
	assert.Equal(t, 1, disp.Acked)
	assert.False(t, disp.NeedsRedelivery())
	require.Len(t, disp.Results, 1)
	assert.Equal(t, thumbnails.OutcomeSuccess, disp.Results[0].Outcome)
}

func TestDispatch_CloudEventAndS3(t *testing.T) {
	c := &fakeCleaner{}
	d := newTestDispatcher(c)

	_, err := d.Dispatch(context.Background(), []byte(cloudEventDeleted))
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), []byte(s3Removed))
	require.NoError(t, err)

	assert.Equal(t, []string{sourceURL, "https://s3.amazonaws.com/screenshots/11/my%20game.jpg"}, c.handled())
}

func TestDispatch_OtherEventsAreAcknowledged(t *testing.T) {
	c := &fakeCleaner{}
	disp, err := newTestDispatcher(c).Dispatch(context.Background(), []byte(eventGridCreated))
	require.NoError(t, err)

	assert.Empty(t, c.handled())
	assert.Equal(t, 1, disp.Acked)
}

func TestDispatch_Validation(t *testing.T) {
	c := &fakeCleaner{}
	disp, err := newTestDispatcher(c).Dispatch(context.Background(), []byte(eventGridValidation))
	require.NoError(t, err)

	assert.Equal(t, "512d38b6-c7b8-40c8-89fe-f46f9e9622b6", disp.ValidationCode)
	assert.Empty(t, c.handled())
}

func TestDispatch_RedeliveryFollowsPolicy(t *testing.T) {
	c := &fakeCleaner{outcomes: map[string]thumbnails.Outcome{sourceURL: thumbnails.OutcomeTransientError}}

	disp, err := newTestDispatcher(c).Dispatch(context.Background(), []byte(eventGridDeleted))
	require.NoError(t, err)
	assert.True(t, disp.NeedsRedelivery())

	legacy := NewDispatcher(c, thumbnails.RedeliveryPolicy{}, "test")
	disp, err = legacy.Dispatch(context.Background(), []byte(eventGridDeleted))
	require.NoError(t, err)
	assert.False(t, disp.NeedsRedelivery())
	assert.Equal(t, 1, disp.Acked)
}

func TestDispatch_FatalAndNotFoundAreAcknowledged(t *testing.T) {
	for _, o := range []thumbnails.Outcome{thumbnails.OutcomeNotFound, thumbnails.OutcomeFatalError} {
		c := &fakeCleaner{outcomes: map[string]thumbnails.Outcome{sourceURL: o}}
		disp, err := newTestDispatcher(c).Dispatch(context.Background(), []byte(eventGridDeleted))
		require.NoError(t, err)
		assert.False(t, disp.NeedsRedelivery(), o.String())
	}
}

func TestDispatch_MissingURLStillReachesCleaner(t *testing.T) {
	c := &fakeCleaner{}
	raw := `{"id":"e3","eventType":"Microsoft.Storage.BlobDeleted","subject":"x","eventTime":"2024-05-01T10:00:00Z","data":{"api":"DeleteBlob"}}`

	disp, err := newTestDispatcher(c).Dispatch(context.Background(), []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{""}, c.handled())
	assert.Equal(t, 1, disp.Acked)
}

func TestDispatch_ParseError(t *testing.T) {
	_, err := newTestDispatcher(&fakeCleaner{}).Dispatch(context.Background(), []byte("nope"))
	assert.Error(t, err)
}
