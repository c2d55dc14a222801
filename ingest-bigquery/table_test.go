package connector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableName(t *testing.T) {
	for _, tc := range []struct {
		object string
		strict bool
		want   string
		err    string
	}{
		{object: "sales_report_20240115_103000.json", strict: true, want: "sales_report"},
		{object: "exports/2024/sales_report_20240115_103000.json", strict: true, want: "sales_report"},
		{object: "orders_20240115_103000.json.gz", strict: true, want: "orders"},
		// Every underscore separates a segment, so only the last two are removed.
		{object: "sales_report_2024_01_15_103000.json", strict: true, want: "sales_report_2024_01"},
		{object: "Sales-Report_1_2", strict: true, want: "Sales-Report"},
		{object: "sales_report_final_v2.json", strict: false, want: "sales_report"},
		{object: "sales_report_final_v2.json", strict: true, err: `suffix "final_v2" is not a numeric date and time`},
		{object: "sales_2024.json", strict: false, err: "expected a name followed by two '_' separated suffix segments"},
		{object: "sales.json", strict: true, err: "expected a name followed by two '_' separated suffix segments"},
		{object: "_20240115_103000.json", strict: true, err: "the name before the suffix is empty"},
		{object: "", strict: false, err: "expected a name"},
	} {
		t.Run(tc.object, func(t *testing.T) {
			got, err := TableName(tc.object, tc.strict)
			if tc.err != "" {
				require.ErrorIs(t, err, ErrTableName)
				require.ErrorContains(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDeriveTable(t *testing.T) {
	id, err := DeriveTable("my-project", "raw", "uploads/events_20240101_000000.json", true)
	require.NoError(t, err)
	require.Equal(t, TableIdentifier{ProjectID: "my-project", DatasetID: "raw", TableID: "events"}, id)
	require.Equal(t, "my-project.raw.events", id.String())

	_, err = DeriveTable("my-project", "raw", "events.json", true)
	require.ErrorIs(t, err, ErrTableName)
}
