package flatten

import "strings"

// Reconcile merges columns whose names differ only by letter case. The first
// spelling encountered across all records is canonical. For every row the
// canonical column keeps its value when it has one, and otherwise takes the
// first non-null value of its case variants in column order. The variants are
// then dropped, leaving columns in order of first appearance.
func Reconcile(records []Record) *Batch {
	var all = NewBatch(records)

	var canonical = make(map[string]string) // Lower-cased name => canonical name.
	var variants = make(map[string][]string) // Canonical name => all spellings in column order.
	var columns []string

	for _, col := range all.Columns {
		var lower = strings.ToLower(col)
		if name, ok := canonical[lower]; ok {
			variants[name] = append(variants[name], col)
			continue
		}
		canonical[lower] = col
		variants[col] = []string{col}
		columns = append(columns, col)
	}

	if len(columns) == len(all.Columns) {
		return all
	}

	var rows = make([]Record, len(records))
	for i, record := range records {
		var merged = NewRecord()
		for _, col := range columns {
			var value any
			var present bool

			for _, spelling := range variants[col] {
				v, ok := record.Get(spelling)
				if !ok {
					continue
				}
				present = true
				if v != nil {
					value = v
					break
				}
			}
			if present {
				merged.Set(col, value)
			}
		}
		rows[i] = merged
	}

	return &Batch{Columns: columns, Rows: rows}
}
