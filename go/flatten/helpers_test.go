package flatten

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type kv struct {
	Key   string
	Value any
}

func kvs(r Record) []kv {
	var out = []kv{}
	for pair := r.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, kv{pair.Key, pair.Value})
	}
	return out
}

func record(t *testing.T, keysAndValues ...any) Record {
	t.Helper()
	require.Equal(t, 0, len(keysAndValues)%2, "record requires key/value pairs")

	var r = NewRecord()
	for i := 0; i < len(keysAndValues); i += 2 {
		r.Set(keysAndValues[i].(string), keysAndValues[i+1])
	}
	return r
}

func requireRecords(t *testing.T, want []Record, got []Record) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, kvs(want[i]), kvs(got[i]), "record %d", i)
	}
}
