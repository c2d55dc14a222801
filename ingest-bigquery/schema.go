package connector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/estuary/ingest-json-bigquery/go/flatten"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// ValueType is the in-memory representation that values of a column are
// coerced to before they are appended. The set of implementations is closed.
type ValueType interface {
	fmt.Stringer

	// coerce converts a non-nil value, or returns an error if it cannot be
	// represented.
	coerce(v any) (any, error)
}

// Text values are strings.
type Text struct{}

// Integer values are int64.
type Integer struct{}

// Float values are finite float64.
type Float struct{}

// Boolean values are bool.
type Boolean struct{}

// Timestamp values are time.Time.
type Timestamp struct{}

var (
	_ ValueType = Text{}
	_ ValueType = Integer{}
	_ ValueType = Float{}
	_ ValueType = Boolean{}
	_ ValueType = Timestamp{}
)

func (Text) String() string      { return "text" }
func (Integer) String() string   { return "integer" }
func (Float) String() string     { return "float" }
func (Boolean) String() string   { return "boolean" }
func (Timestamp) String() string { return "timestamp" }

// ValueTypeFor maps a declared BigQuery column type to its ValueType. The
// second return is false for types which are not coerced.
func ValueTypeFor(ft bigquery.FieldType) (ValueType, bool) {
	switch ft {
	case bigquery.StringFieldType:
		return Text{}, true
	case bigquery.IntegerFieldType:
		return Integer{}, true
	case bigquery.FloatFieldType, bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		return Float{}, true
	case bigquery.BooleanFieldType:
		return Boolean{}, true
	case bigquery.DateFieldType, bigquery.DateTimeFieldType, bigquery.TimestampFieldType:
		return Timestamp{}, true
	default:
		return nil, false
	}
}

func (Text) coerce(v any) (any, error) {
	switch vv := v.(type) {
	case string:
		return vv, nil
	case int64:
		return strconv.FormatInt(vv, 10), nil
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(vv), nil
	case time.Time:
		return vv.Format(time.RFC3339Nano), nil
	default:
		return cast.ToStringE(v)
	}
}

func (Integer) coerce(v any) (any, error) {
	switch vv := v.(type) {
	case int64:
		return vv, nil
	case bool:
		if vv {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		return integralFloat(vv)
	case string:
		var s = strings.TrimSpace(vv)
		// Base 10 only: a leading zero is not an octal prefix.
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", vv)
		}
		return integralFloat(f)
	default:
		return nil, fmt.Errorf("cannot convert %T to an integer", v)
	}
}

func integralFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	} else if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%v overflows a 64-bit integer", f)
	}
	return int64(f), nil
}

func (Float) coerce(v any) (any, error) {
	var f float64
	switch vv := v.(type) {
	case float64:
		f = vv
	case int64:
		f = float64(vv)
	case bool:
		if vv {
			f = 1
		}
	case time.Time:
		return nil, errors.New("cannot convert a timestamp to a float")
	default:
		var err error
		if f, err = cast.ToFloat64E(v); err != nil {
			return nil, err
		}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a finite number", v)
	}
	return f, nil
}

func (Boolean) coerce(v any) (any, error) {
	switch vv := v.(type) {
	case bool:
		return vv, nil
	case int64:
		return vv != 0, nil
	case float64:
		return vv != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(vv))
	case time.Time:
		return nil, errors.New("cannot convert a timestamp to a boolean")
	default:
		return cast.ToBoolE(v)
	}
}

func (Timestamp) coerce(v any) (any, error) {
	switch vv := v.(type) {
	case time.Time:
		return vv, nil
	case bool:
		return nil, errors.New("cannot convert a boolean to a timestamp")
	case float64:
		if math.IsNaN(vv) || math.IsInf(vv, 0) {
			return nil, fmt.Errorf("%v is not a valid epoch", vv)
		}
		var sec, frac = math.Modf(vv)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case int64:
		return time.Unix(vv, 0).UTC(), nil
	case string:
		return cast.ToTimeInDefaultLocationE(strings.TrimSpace(vv), time.UTC)
	default:
		return cast.ToTimeInDefaultLocationE(v, time.UTC)
	}
}

// Coerce converts v to vt. A nil value is always nil.
func Coerce(vt ValueType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return vt.coerce(v)
}

// SchemaField returns the field of schema named column. BigQuery column
// names are case-insensitive.
func SchemaField(schema bigquery.Schema, column string) (*bigquery.FieldSchema, bool) {
	for _, f := range schema {
		if strings.EqualFold(f.Name, column) {
			return f, true
		}
	}
	return nil, false
}

// Enforce coerces the values of every column of batch which also exists in
// schema to the ValueType of its declared type. Columns which are new to the
// schema are left as-is. A column is converted entirely or not at all: if any
// of its values cannot be coerced, the column is left unchanged and the
// failure is returned as a diagnostic. Enforce modifies and returns batch.
func Enforce(batch *flatten.Batch, schema bigquery.Schema) (*flatten.Batch, []error) {
	var diagnostics []error

	for _, column := range batch.Columns {
		field, ok := SchemaField(schema, column)
		if !ok {
			continue
		}

		vt, ok := ValueTypeFor(field.Type)
		if !ok {
			log.WithFields(log.Fields{
				"column": column,
				"type":   field.Type,
			}).Warn("column has a declared type with no conversion, skipping it")
			continue
		}

		if err := coerceColumn(batch, column, vt); err != nil {
			log.WithFields(log.Fields{
				"column": column,
				"type":   field.Type,
				"error":  err,
			}).Warn("could not convert column to its declared type, leaving it unchanged")
			diagnostics = append(diagnostics, fmt.Errorf("column %q (%s): %w", column, field.Type, err))
		}
	}

	return batch, diagnostics
}

func coerceColumn(batch *flatten.Batch, column string, vt ValueType) error {
	var converted = make([]any, len(batch.Rows))

	for idx, row := range batch.Rows {
		v, ok := row.Get(column)
		if !ok {
			continue
		}
		c, err := Coerce(vt, v)
		if err != nil {
			return fmt.Errorf("row %d: converting to %s: %w", idx, vt, err)
		}
		converted[idx] = c
	}

	for idx, row := range batch.Rows {
		if _, ok := row.Get(column); ok {
			row.Set(column, converted[idx])
		}
	}
	return nil
}

// SchemaLookup fetches the schema of an existing table. The bool return is
// false, with a nil error, when the table does not exist.
type SchemaLookup interface {
	TableSchema(ctx context.Context, id TableIdentifier) (bigquery.Schema, bool, error)
}

// Enforcer applies Enforce against the current schema of a table.
type Enforcer struct {
	Lookup SchemaLookup
}

// Enforced describes the table a batch was enforced against.
type Enforced struct {
	// Schema is the existing schema of the table, or nil.
	Schema bigquery.Schema
	// Exists is false when the table will be created by the first append.
	Exists bool
	// Diagnostics lists columns which were left unchanged.
	Diagnostics []error
}

// Enforce looks up the table id and coerces batch to its schema. Nothing is
// done when the table does not exist yet. Lookup failures are returned.
func (e Enforcer) Enforce(ctx context.Context, batch *flatten.Batch, id TableIdentifier) (Enforced, error) {
	schema, exists, err := e.Lookup.TableSchema(ctx, id)
	if err != nil {
		return Enforced{}, fmt.Errorf("looking up schema of %s: %w", id, err)
	} else if !exists {
		log.WithField("table", id.String()).Info("table does not exist yet, skipping schema enforcement")
		return Enforced{}, nil
	}

	_, diagnostics := Enforce(batch, schema)

	return Enforced{
		Schema:      schema,
		Exists:      true,
		Diagnostics: diagnostics,
	}, nil
}
