package connector

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeHTTPEvent(t *testing.T) {
	var payload = `{"kind":"storage#object","bucket":"uploads","name":"in/sales_20240101_000000.json","size":"12"}`
	var want = Event{Bucket: "uploads", Name: "in/sales_20240101_000000.json"}

	for _, tc := range []struct {
		name string
		body string
		want Event
		err  string
	}{
		{name: "object resource", body: payload, want: want},
		{name: "structured cloud event", body: `{"specversion":"1.0","type":"google.cloud.storage.object.v1.finalized","data":` + payload + `}`, want: want},
		{
			name: "pubsub push",
			body: `{"subscription":"projects/p/subscriptions/s","message":{"messageId":"1","data":"` +
				base64.StdEncoding.EncodeToString([]byte(payload)) +
				`","attributes":{"eventType":"OBJECT_FINALIZE","bucketId":"uploads"}}}`,
			want: want,
		},
		{
			name: "pubsub push without payload",
			body: `{"message":{"attributes":{"eventType":"OBJECT_FINALIZE","bucketId":"uploads","objectId":"in/sales_20240101_000000.json"}}}`,
			want: want,
		},
		{
			name: "pubsub push of a deletion",
			body: `{"message":{"attributes":{"eventType":"OBJECT_DELETE","bucketId":"uploads","objectId":"x"}}}`,
			err:  "not an object finalize notification: OBJECT_DELETE",
		},
		{name: "missing name", body: `{"bucket":"uploads"}`, err: "event is missing the object name"},
		{name: "missing bucket", body: `{}`, err: "event is missing the bucket"},
		{name: "not json", body: `bucket=uploads`, err: "decoding request body"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeHTTPEvent([]byte(tc.body))
			if tc.err != "" {
				require.ErrorContains(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeNotification(t *testing.T) {
	ev, err := DecodeNotification([]byte(`{"bucket":"b","name":"n"}`), map[string]string{"payloadFormat": "JSON_API_V1"})
	require.NoError(t, err)
	require.Equal(t, Event{Bucket: "b", Name: "n"}, ev)

	_, err = DecodeNotification(nil, map[string]string{"eventType": "OBJECT_METADATA_UPDATE"})
	require.ErrorIs(t, err, ErrSkipEvent)

	_, err = DecodeNotification([]byte(`[1]`), nil)
	require.ErrorContains(t, err, "decoding notification payload")
}
