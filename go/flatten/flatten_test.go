package flatten

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestFlatten(t *testing.T) {
	for _, tt := range []struct {
		name string
		doc  string
		want Record
	}{
		{
			name: "nested objects",
			doc:  `{"a": {"b": 1, "c": 2}}`,
			want: record(t, "a_b", int64(1), "a_c", int64(2)),
		},
		{
			name: "array of objects widens the row",
			doc:  `{"a": [{"x": 1}, {"x": 2}]}`,
			want: record(t, "a_0_x", int64(1), "a_1_x", int64(2)),
		},
		{
			name: "array of scalars is joined",
			doc:  `{"tags": ["a", "b", "c"]}`,
			want: record(t, "tags", "a, b, c"),
		},
		{
			name: "mixed array is joined",
			doc:  `{"mixed": [1, "two", 3.5, true, null, {"k":"v"}, [1,2]]}`,
			want: record(t, "mixed", `1, two, 3.5, true, null, {"k":"v"}, [1,2]`),
		},
		{
			name: "empty array contributes nothing",
			doc:  `{"id": 7, "items": []}`,
			want: record(t, "id", int64(7)),
		},
		{
			name: "scalars keep their types",
			doc:  `{"s": "text", "i": 42, "f": 1.5, "e": 1e3, "whole": 2.0, "t": true, "n": null, "big": 123456789012345678901234}`,
			want: record(t,
				"s", "text",
				"i", int64(42),
				"f", 1.5,
				"e", 1000.0,
				"whole", 2.0,
				"t", true,
				"n", nil,
				"big", 1.2345678901234568e+23,
			),
		},
		{
			name: "key order follows the document",
			doc:  `{"z": 1, "a": {"y": 2, "b": 3}, "m": 4}`,
			want: record(t, "z", int64(1), "a_y", int64(2), "a_b", int64(3), "m", int64(4)),
		},
		{
			name: "deep nesting through arrays of objects",
			doc:  `{"order": {"lines": [{"sku": "A", "qty": {"n": 1}}, {"sku": "B"}]}}`,
			want: record(t,
				"order_lines_0_sku", "A",
				"order_lines_0_qty_n", int64(1),
				"order_lines_1_sku", "B",
			),
		},
		{
			name: "unsafe keys are left for the sanitizer",
			doc:  `{"Revenue %": {"per/day": 3}}`,
			want: record(t, "Revenue %_per/day", int64(3)),
		},
		{
			name: "duplicate keys keep the first position and the last value",
			doc:  `{"a": 1, "b": 2, "a": 3}`,
			want: record(t, "a", int64(3), "b", int64(2)),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Flatten(gjson.Parse(tt.doc), "", DefaultSeparator)
			require.NoError(t, err)
			require.Equal(t, kvs(tt.want), kvs(got))
		})
	}
}

func TestFlattenPrefixAndSeparator(t *testing.T) {
	got, err := Flatten(gjson.Parse(`{"a": {"b": [{"c": 1}]}}`), "root", ".")
	require.NoError(t, err)
	require.Equal(t, []kv{{"root.a.b.0.c", int64(1)}}, kvs(got))
}

func TestFlattenNonObject(t *testing.T) {
	for _, doc := range []string{`1`, `"text"`, `[1, 2]`, `null`} {
		got, err := Flatten(gjson.Parse(doc), "", DefaultSeparator)
		require.ErrorIs(t, err, ErrNotAnObject)
		require.NotNil(t, got)
		require.Equal(t, 0, got.Len())
	}
}

func TestRows(t *testing.T) {
	for _, tt := range []struct {
		name    string
		doc     string
		want    []Record
		partial bool
	}{
		{
			name: "top-level array",
			doc:  `[{"a": 1}, {"a": 2}]`,
			want: []Record{record(t, "a", int64(1)), record(t, "a", int64(2))},
		},
		{
			name: "top-level object",
			doc:  `{"a": {"b": 1}, "tags": ["x", "y"]}`,
			want: []Record{record(t, "a_b", int64(1), "tags", "x, y")},
		},
		{
			name: "object with an array of objects becomes its rows",
			doc:  `{"meta": {"v": 1}, "rows": [{"id": 1}, {"id": 2, "extra": true}]}`,
			want: []Record{
				record(t, "id", int64(1)),
				record(t, "id", int64(2), "extra", true),
			},
		},
		{
			name: "last array of objects wins",
			doc:  `{"first": [{"a": 1}], "second": [{"b": 2}, {"b": 3}], "scalar": 4}`,
			want: []Record{record(t, "b", int64(2)), record(t, "b", int64(3))},
		},
		{
			name: "trailing empty array of objects empties the result",
			doc:  `{"rows": [{"a": 1}], "none": []}`,
			want: nil,
		},
		{
			name: "empty array",
			doc:  `[]`,
			want: nil,
		},
		{
			name: "empty object",
			doc:  `{}`,
			want: nil,
		},
		{
			name: "array of empty objects",
			doc:  `[{}, {}]`,
			want: nil,
		},
		{
			name: "non-object elements are partial",
			doc:  `[{"a": 1}, 2, {"a": 3}]`,
			want: []Record{
				record(t, "a", int64(1)),
				record(t),
				record(t, "a", int64(3)),
			},
			partial: true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Rows([]byte(tt.doc), DefaultSeparator)
			require.NoError(t, err)
			requireRecords(t, tt.want, out.Records)
			require.Equal(t, tt.partial, out.Partial())
			require.Equal(t, len(tt.want) == 0, out.Empty())
		})
	}
}

func TestRowsErrors(t *testing.T) {
	_, err := Rows([]byte(`{"a": `), DefaultSeparator)
	require.ErrorIs(t, err, ErrInvalidJSON)

	_, err = Rows([]byte(``), DefaultSeparator)
	require.ErrorIs(t, err, ErrInvalidJSON)

	_, err = Rows([]byte(`"just a string"`), DefaultSeparator)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInvalidJSON))
	require.Contains(t, err.Error(), "String")
}

func TestRowsDiagnosticsNameTheRow(t *testing.T) {
	out, err := Rows([]byte(`[{"a": 1}, "oops"]`), DefaultSeparator)
	require.NoError(t, err)
	require.Len(t, out.Diagnostics, 1)
	require.ErrorIs(t, out.Diagnostics[0], ErrNotAnObject)
	require.Contains(t, out.Diagnostics[0].Error(), "row 1")
}
