package flatten

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultSeparator joins the path segments of nested keys.
const DefaultSeparator = "_"

var (
	ErrInvalidJSON = errors.New("document is not valid JSON")
	ErrNotAnObject = errors.New("value is not a JSON object")
)

// Outcome is the result of flattening a whole document.
type Outcome struct {
	// Records holds one flat record per logical row, in document order.
	Records []Record
	// Diagnostics describes the parts of the document which could not be
	// flattened. Records is still usable when Diagnostics is non-empty, but
	// it may be missing data.
	Diagnostics []error
}

// Partial reports whether some of the document could not be flattened.
func (o Outcome) Partial() bool {
	return len(o.Diagnostics) > 0
}

// Empty reports whether the document produced no data at all.
func (o Outcome) Empty() bool {
	for _, r := range o.Records {
		if r.Len() != 0 {
			return false
		}
	}
	return true
}

// Rows flattens a document into its rows:
//   - A top-level array produces one record per element.
//   - A top-level object produces a single record, unless one of its members
//     is an array of objects. In that case the rows are the elements of the
//     last such member, and the remainder of the object is discarded.
//
// Invalid JSON and top-level scalars are errors. Non-object array elements
// yield empty records and are reported in the Outcome's Diagnostics.
func Rows(doc []byte, sep string) (Outcome, error) {
	if !gjson.ValidBytes(doc) {
		return Outcome{}, ErrInvalidJSON
	}
	var root = gjson.ParseBytes(doc)

	switch {
	case root.IsArray():
		return flattenEach(root.Array(), sep), nil
	case root.IsObject():
		var rows []gjson.Result
		var hasRows bool

		root.ForEach(func(_, value gjson.Result) bool {
			if !value.IsArray() {
				return true
			}
			if elems := value.Array(); allObjects(elems) {
				rows, hasRows = elems, true
			}
			return true
		})

		if hasRows {
			return flattenEach(rows, sep), nil
		}
		return flattenEach([]gjson.Result{root}, sep), nil
	default:
		return Outcome{}, fmt.Errorf("unsupported top-level JSON value of type %s", root.Type)
	}
}

func flattenEach(values []gjson.Result, sep string) Outcome {
	var out = Outcome{Records: make([]Record, 0, len(values))}

	for idx, value := range values {
		record, err := Flatten(value, "", sep)
		if err != nil {
			out.Diagnostics = append(out.Diagnostics, fmt.Errorf("row %d: %w", idx, err))
		}
		out.Records = append(out.Records, record)
	}

	if out.Empty() {
		out.Records = nil
	}
	return out
}

// Flatten collapses a JSON object into a single flat record. Nested object
// keys are joined to their parent key with sep. Arrays whose elements are all
// objects are folded into the same record under `key<sep>index` prefixes, so
// they widen the row instead of producing more rows. Any other array is
// stored as the ", " joined text of its elements.
//
// The returned Record is never nil. A non-nil error means the record is
// partial.
func Flatten(value gjson.Result, prefix, sep string) (Record, error) {
	var record = NewRecord()

	if !value.IsObject() {
		return record, fmt.Errorf("flattening %s value: %w", value.Type, ErrNotAnObject)
	}
	flattenInto(record, value, prefix, sep)

	return record, nil
}

func flattenInto(record Record, object gjson.Result, prefix, sep string) {
	object.ForEach(func(key, value gjson.Result) bool {
		var name = key.Str
		if prefix != "" {
			name = prefix + sep + key.Str
		}

		switch {
		case value.IsObject():
			flattenInto(record, value, name, sep)
		case value.IsArray():
			var elems = value.Array()
			if allObjects(elems) {
				for idx, elem := range elems {
					flattenInto(record, elem, name+sep+strconv.Itoa(idx), sep)
				}
			} else {
				record.Set(name, joinElements(elems))
			}
		default:
			record.Set(name, scalar(value))
		}
		return true
	})
}

// allObjects is true for an empty array.
func allObjects(elems []gjson.Result) bool {
	for _, elem := range elems {
		if !elem.IsObject() {
			return false
		}
	}
	return true
}

func joinElements(elems []gjson.Result) string {
	var parts = make([]string, len(elems))
	for i, elem := range elems {
		switch {
		case elem.Type == gjson.String:
			parts[i] = elem.Str
		case elem.IsObject(), elem.IsArray():
			parts[i] = elem.Get("@ugly").Raw
		default:
			parts[i] = elem.Raw
		}
	}
	return strings.Join(parts, ", ")
}

func scalar(value gjson.Result) any {
	switch value.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		return value.Str
	case gjson.Number:
		if !strings.ContainsAny(value.Raw, ".eE") {
			if i, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
				return i
			}
		}
		return value.Num
	default:
		return value.Raw
	}
}
