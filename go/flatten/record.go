// Package flatten turns arbitrarily nested JSON documents into flat,
// uniformly-named records that can be appended to a columnar table.
package flatten

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is a single flat row. Keys are column names and values are scalars:
// string, int64, float64, bool, time.Time or nil. Iteration follows the
// order in which keys were first set.
type Record = *orderedmap.OrderedMap[string, any]

// NewRecord returns an empty Record.
func NewRecord() Record {
	return orderedmap.New[string, any]()
}

// Batch is an ordered set of rows sharing a single column set.
type Batch struct {
	// Columns is the ordered union of the keys of all Rows.
	Columns []string
	// Rows may omit any column, which is equivalent to a null value.
	Rows []Record
}

// NewBatch builds a Batch from rows, deriving Columns in order of first
// appearance.
func NewBatch(rows []Record) *Batch {
	var b = &Batch{Rows: rows}
	var seen = make(map[string]struct{})

	for _, row := range rows {
		for pair := row.Oldest(); pair != nil; pair = pair.Next() {
			if _, ok := seen[pair.Key]; !ok {
				seen[pair.Key] = struct{}{}
				b.Columns = append(b.Columns, pair.Key)
			}
		}
	}

	return b
}

// HasColumn reports whether column is part of the batch.
func (b *Batch) HasColumn(column string) bool {
	for _, c := range b.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// SetAll sets column to value on every row, adding the column if it is not
// already present. An existing column matching case-insensitively keeps its
// position and spelling and is overwritten in place. It returns the name the
// column is stored under.
func (b *Batch) SetAll(column string, value any) string {
	var found = false
	for _, c := range b.Columns {
		if strings.EqualFold(c, column) {
			column, found = c, true
			break
		}
	}
	if !found {
		b.Columns = append(b.Columns, column)
	}
	for _, row := range b.Rows {
		row.Set(column, value)
	}
	return column
}

// Values returns the values of column for every row, in row order. Rows
// lacking the column yield nil.
func (b *Batch) Values(column string) []any {
	var out = make([]any, len(b.Rows))
	for i, row := range b.Rows {
		out[i], _ = row.Get(column)
	}
	return out
}

// Drop removes column from the batch and from every row.
func (b *Batch) Drop(column string) {
	for i, c := range b.Columns {
		if c == column {
			b.Columns = append(b.Columns[:i:i], b.Columns[i+1:]...)
			break
		}
	}
	for _, row := range b.Rows {
		row.Delete(column)
	}
}
