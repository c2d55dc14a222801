package connector

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	var fetcher = fakeFetcher{
		"b/t_1_2.json":     `{"a": 1}`,
		"b/empty_1_2.json": `[]`,
	}

	for _, tc := range []struct {
		name    string
		method  string
		body    string
		status  int
		message string
		appends int
	}{
		{name: "written", method: http.MethodPost, body: `{"bucket":"b","name":"t_1_2.json"}`, status: 200, message: "Appended 1 rows from t_1_2.json to test-project.raw.t.", appends: 1},
		{name: "empty", method: http.MethodPost, body: `{"bucket":"b","name":"empty_1_2.json"}`, status: 200, message: "Empty source file: empty_1_2.json."},
		{name: "failed", method: http.MethodPost, body: `{"bucket":"b","name":"missing_1_2.json"}`, status: 200, message: "Failed to process missing_1_2.json: fetching object: object not found"},
		{name: "skipped", method: http.MethodPost, body: `{"message":{"attributes":{"eventType":"OBJECT_DELETE"}}}`, status: 200, message: "Skipped: not an object finalize notification: OBJECT_DELETE."},
		{name: "invalid", method: http.MethodPost, body: `{"bucket":"b"}`, status: 200, message: "Invalid trigger request: event is missing the object name."},
		{name: "wrong method", method: http.MethodGet, status: 405, message: "method not allowed\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var warehouse = &fakeWarehouse{}
			var handler = newTestPipeline(fetcher, warehouse, "").Handler()

			var rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tc.method, "/", strings.NewReader(tc.body)))

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.message, rec.Body.String())
			require.Len(t, warehouse.appends, tc.appends)
		})
	}
}

func TestHandleMessage(t *testing.T) {
	var warehouse = &fakeWarehouse{}
	var p = newTestPipeline(fakeFetcher{"b/t_1_2.json": `{"a": 1}`}, warehouse, "")
	var ctx = t.Context()

	var out = p.handleMessage(ctx, "1", []byte(`{"bucket":"b","name":"t_1_2.json"}`), map[string]string{"eventType": "OBJECT_FINALIZE"})
	require.Equal(t, StatusWritten, out.Status)

	out = p.handleMessage(ctx, "2", nil, map[string]string{"eventType": "OBJECT_ARCHIVE"})
	require.Equal(t, Outcome{}, out)

	out = p.handleMessage(ctx, "3", []byte(`not json`), nil)
	require.Equal(t, StatusFailed, out.Status)

	require.Len(t, warehouse.appends, 1)
}
