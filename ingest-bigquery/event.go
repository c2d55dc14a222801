package connector

import (
	"errors"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// Event identifies an uploaded object to ingest.
type Event struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func (e Event) Validate() error {
	if e.Bucket == "" {
		return errors.New("event is missing the bucket")
	} else if e.Name == "" {
		return errors.New("event is missing the object name")
	}
	return nil
}

// ErrSkipEvent is returned for notifications of changes other than a newly
// finalized object, which are not ingested.
var ErrSkipEvent = errors.New("not an object finalize notification")

const finalizeEventType = "OBJECT_FINALIZE"

type pushMessage struct {
	Data       []byte            `json:"data"`
	Attributes map[string]string `json:"attributes"`
	MessageID  string            `json:"messageId"`
}

// httpBody covers the request bodies of the HTTP trigger: a storage object
// resource as sent by Eventarc, a Pub/Sub push envelope, or a CloudEvent in
// structured mode.
type httpBody struct {
	Event
	Message *pushMessage `json:"message"`
	Data    *Event       `json:"data"`
}

// DecodeHTTPEvent decodes the body of a trigger request.
func DecodeHTTPEvent(body []byte) (Event, error) {
	var b httpBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Event{}, fmt.Errorf("decoding request body: %w", err)
	}

	var ev = b.Event
	if b.Message != nil {
		return DecodeNotification(b.Message.Data, b.Message.Attributes)
	} else if b.Data != nil && ev == (Event{}) {
		ev = *b.Data
	}

	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// DecodeNotification decodes a Cloud Storage Pub/Sub notification. data is
// the JSON object resource, and may be empty for notifications without a
// payload, in which case the attributes identify the object.
func DecodeNotification(data []byte, attrs map[string]string) (Event, error) {
	if t, ok := attrs["eventType"]; ok && t != finalizeEventType {
		return Event{}, fmt.Errorf("%w: %s", ErrSkipEvent, t)
	}

	var ev Event
	if len(data) != 0 {
		if err := json.Unmarshal(data, &ev); err != nil {
			return Event{}, fmt.Errorf("decoding notification payload: %w", err)
		}
	}
	if ev.Bucket == "" {
		ev.Bucket = attrs["bucketId"]
	}
	if ev.Name == "" {
		ev.Name = attrs["objectId"]
	}

	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}
