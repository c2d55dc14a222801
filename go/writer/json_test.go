package writer

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJsonWriterInputs(t *testing.T) {
	for _, tt := range []struct {
		name      string
		fields    []string
		input     []any
		opts      []JsonOption
		wantBytes []byte
	}{
		{
			name:      "object keeps field order",
			fields:    []string{"str", "int", "bool", "num"},
			input:     []any{"testing", int64(1), true, 2.3},
			wantBytes: []byte(`{"str":"testing","int":1,"bool":true,"num":2.3}` + "\n"),
		},
		{
			name:      "nulls are written",
			fields:    []string{"a", "b"},
			input:     []any{nil, "x"},
			wantBytes: []byte(`{"a":null,"b":"x"}` + "\n"),
		},
		{
			name:      "nulls are skipped",
			fields:    []string{"a", "b", "c"},
			input:     []any{nil, "x", nil},
			opts:      []JsonOption{WithJsonSkipNulls()},
			wantBytes: []byte(`{"b":"x"}` + "\n"),
		},
		{
			name:      "html is not escaped",
			fields:    []string{"html"},
			input:     []any{"<b>&</b>"},
			wantBytes: []byte(`{"html":"<b>&</b>"}` + "\n"),
		},
		{
			name:      "field names are escaped",
			fields:    []string{`quote"d`},
			input:     []any{"v"},
			wantBytes: []byte(`{"quote\"d":"v"}` + "\n"),
		},
		{
			name:      "empty object",
			fields:    []string{},
			input:     []any{},
			wantBytes: []byte(`{}` + "\n"),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			for _, compress := range []bool{true, false} {
				var buf bytes.Buffer
				tw := &testWriter{w: &buf}

				opts := tt.opts
				if !compress {
					opts = append(append([]JsonOption{}, opts...), WithJsonDisableCompression())
				}
				w := NewJsonWriter(tw, tt.fields, opts...)
				require.NoError(t, w.Write(tt.input))
				require.NoError(t, w.Close())

				// The provided writer is closed when w is closed.
				require.True(t, tw.closed)
				require.Equal(t, buf.Len(), w.Written())

				if compress {
					r, err := gzip.NewReader(&buf)
					require.NoError(t, err)
					gotBytes, err := io.ReadAll(r)
					require.NoError(t, err)
					require.Equal(t, string(tt.wantBytes), string(gotBytes))
				} else {
					require.Equal(t, string(tt.wantBytes), buf.String())
				}
			}
		})
	}
}

func TestJsonWriterMultipleRows(t *testing.T) {
	var buf bytes.Buffer
	w := NewJsonWriter(&testWriter{w: &buf}, []string{"id", "name"}, WithJsonDisableCompression(), WithJsonSkipNulls())

	require.NoError(t, w.Write([]any{int64(1), "one"}))
	require.NoError(t, w.Write([]any{int64(2), nil}))
	require.NoError(t, w.Close())

	require.Equal(t, "{\"id\":1,\"name\":\"one\"}\n{\"id\":2}\n", buf.String())
}

func TestJsonWriterArityMismatch(t *testing.T) {
	w := NewJsonWriter(&testWriter{w: io.Discard}, []string{"a", "b"}, WithJsonDisableCompression())
	require.Error(t, w.Write([]any{1}))
}

type testWriter struct {
	w      io.Writer
	closed bool
}

func (t *testWriter) Write(p []byte) (int, error) {
	return t.w.Write(p)
}

func (t *testWriter) Close() error {
	t.closed = true
	return nil
}
