package connector

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/estuary/ingest-json-bigquery/go/flatten"
	"github.com/estuary/ingest-json-bigquery/go/writer"
)

const (
	dateLayout      = "2006-01-02"
	datetimeLayout  = "2006-01-02 15:04:05.999999"
	timestampLayout = "2006-01-02T15:04:05.999999Z07:00"
)

// loadSchema is the schema given to the load job appending batch: every
// existing field in table order, followed by a nullable field for each column
// of batch which the table does not have yet.
func loadSchema(batch *flatten.Batch, existing bigquery.Schema) bigquery.Schema {
	var out = make(bigquery.Schema, 0, len(existing)+len(batch.Columns))
	out = append(out, existing...)

	for _, column := range batch.Columns {
		if _, ok := SchemaField(out, column); ok {
			continue
		}
		out = append(out, &bigquery.FieldSchema{
			Name: column,
			Type: inferFieldType(batch.Values(column)),
		})
	}

	return out
}

// inferFieldType picks the column type of values for a column created by a
// load. Mixed integers and floats are FLOAT, and any other mix is STRING.
func inferFieldType(values []any) bigquery.FieldType {
	var ints, floats, bools, times, others bool

	for _, v := range values {
		switch v.(type) {
		case nil:
		case int64:
			ints = true
		case float64:
			floats = true
		case bool:
			bools = true
		case time.Time:
			times = true
		default:
			others = true
		}
	}

	switch {
	case others:
		return bigquery.StringFieldType
	case (ints || floats) && !bools && !times:
		if floats {
			return bigquery.FloatFieldType
		}
		return bigquery.IntegerFieldType
	case bools && !ints && !floats && !times:
		return bigquery.BooleanFieldType
	case times && !ints && !floats && !bools:
		return bigquery.TimestampFieldType
	default:
		return bigquery.StringFieldType
	}
}

// renderValue shapes v for a JSON load into a field of type ft.
func renderValue(ft bigquery.FieldType, v any) any {
	if v == nil {
		return nil
	}

	switch ft {
	case bigquery.StringFieldType:
		if _, ok := v.(string); !ok {
			if s, err := Coerce(Text{}, v); err == nil {
				return s
			}
			return fmt.Sprint(v)
		}
	case bigquery.DateFieldType:
		if t, ok := v.(time.Time); ok {
			return t.Format(dateLayout)
		}
	case bigquery.DateTimeFieldType:
		if t, ok := v.(time.Time); ok {
			return t.Format(datetimeLayout)
		}
	case bigquery.TimestampFieldType:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(timestampLayout)
		}
	}

	return v
}

// writeRows writes batch as newline-delimited JSON through w, rendering every
// value for its field of schema. It returns the number of rows written.
func writeRows(w io.WriteCloser, batch *flatten.Batch, schema bigquery.Schema, opts ...writer.JsonOption) (int, error) {
	var types = make([]bigquery.FieldType, len(batch.Columns))
	for idx, column := range batch.Columns {
		if field, ok := SchemaField(schema, column); ok {
			types[idx] = field.Type
		}
	}

	var jw = writer.NewJsonWriter(w, batch.Columns, opts...)
	var vals = make([]any, len(batch.Columns))

	for rowIdx, row := range batch.Rows {
		for idx, column := range batch.Columns {
			v, _ := row.Get(column)
			vals[idx] = renderValue(types[idx], v)
		}
		if err := jw.Write(vals); err != nil {
			return rowIdx, fmt.Errorf("writing row %d: %w", rowIdx, err)
		}
	}

	if err := jw.Close(); err != nil {
		return len(batch.Rows), fmt.Errorf("closing row writer: %w", err)
	}
	return len(batch.Rows), nil
}

// fieldNames lists the names of schema, for logging.
func fieldNames(schema bigquery.Schema) string {
	var names = make([]string, len(schema))
	for i, f := range schema {
		names[i] = f.Name
	}
	return strings.Join(names, ",")
}
