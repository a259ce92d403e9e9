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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/messaging"
)

var ErrEmptyPayload = errors.New("empty event payload")

// ParseEvents accepts Event Grid schema events, CloudEvents 1.0 events
// (single or batched) and S3 event notifications.
func ParseEvents(raw []byte) ([]Event, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}

	var objects []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &objects); err != nil {
			return nil, fmt.Errorf("failed to parse event batch: %w", err)
		}
	} else {
		objects = []json.RawMessage{raw}
	}

	var out []Event
	for i, obj := range objects {
		events, err := parseObject(obj)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, events...)
	}
	return out, nil
}

type envelopeProbe struct {
	SpecVersion string            `json:"specversion"`
	EventType   string            `json:"eventType"`
	Records     []json.RawMessage `json:"Records"`
}

func parseObject(raw json.RawMessage) ([]Event, error) {
	var probe envelopeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}

	switch {
	case probe.SpecVersion != "":
		evt, err := parseCloudEvent(raw)
		if err != nil {
			return nil, err
		}
		return []Event{evt}, nil
	case probe.EventType != "":
		evt, err := parseEventGridEvent(raw)
		if err != nil {
			return nil, err
		}
		return []Event{evt}, nil
	case probe.Records != nil:
		return parseS3Notification(raw)
	default:
		return nil, fmt.Errorf("unable to determine event schema")
	}
}

type eventGridEvent struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Subject     string          `json:"subject"`
	EventType   string          `json:"eventType"`
	EventTime   time.Time       `json:"eventTime"`
	Data        json.RawMessage `json:"data"`
	DataVersion string          `json:"dataVersion"`
}

func parseEventGridEvent(raw json.RawMessage) (Event, error) {
	var evt eventGridEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("failed to parse Event Grid event: %w", err)
	}
	return Event{
		ID:        evt.ID,
		Type:      evt.EventType,
		Subject:   evt.Subject,
		Source:    evt.Topic,
		EventTime: evt.EventTime,
		Schema:    SchemaEventGrid,
		Data:      evt.Data,
	}, nil
}

func parseCloudEvent(raw json.RawMessage) (Event, error) {
	var ce messaging.CloudEvent
	if err := ce.UnmarshalJSON(raw); err != nil {
		return Event{}, fmt.Errorf("failed to parse CloudEvent: %w", err)
	}

	evt := Event{
		ID:     ce.ID,
		Type:   ce.Type,
		Source: ce.Source,
		Schema: SchemaCloudEvents,
	}
	if ce.Subject != nil {
		evt.Subject = *ce.Subject
	}
	if ce.Time != nil {
		evt.EventTime = *ce.Time
	}
	switch data := ce.Data.(type) {
	case []byte:
		evt.Data = data
	case nil:
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("failed to re-encode CloudEvent data: %w", err)
		}
		evt.Data = b
	}
	return evt, nil
}

type s3Record struct {
	EventName string    `json:"eventName"`
	EventTime time.Time `json:"eventTime"`
	Source    string    `json:"eventSource"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key       string `json:"key"`
			Sequencer string `json:"sequencer"`
		} `json:"object"`
	} `json:"s3"`
}

func parseS3Notification(raw json.RawMessage) ([]Event, error) {
	var evt struct {
		Records []s3Record `json:"Records"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("failed to parse S3 event: %w", err)
	}

	out := make([]Event, 0, len(evt.Records))
	for _, rec := range evt.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to unescape key %q: %w", rec.S3.Object.Key, err)
		}
		typ := rec.EventName
		if strings.HasPrefix(typ, "ObjectRemoved:") {
			typ = TypeS3ObjectRemoved
		}
		out = append(out, Event{
			ID:        rec.S3.Object.Sequencer,
			Type:      typ,
			Subject:   key,
			Source:    rec.Source,
			EventTime: rec.EventTime,
			Schema:    SchemaS3,
			URL:       s3ObjectURL(rec.S3.Bucket.Name, key),
		})
	}
	return out, nil
}

// s3ObjectURL renders a path-style URL so the bucket sits where an Azure
// container would.
func s3ObjectURL(bucket, key string) string {
	u := url.URL{
		Scheme: "https",
		Host:   "s3.amazonaws.com",
		Path:   "/" + bucket + "/" + key,
	}
	return u.String()
}
