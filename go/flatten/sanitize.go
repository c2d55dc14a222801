package flatten

import (
	"regexp"
	"strings"
)

var (
	unsafeIdentifierChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	repeatedUnderscores   = regexp.MustCompile(`_{2,}`)
)

// Sanitize maps an arbitrary key to a column identifier made only of ASCII
// letters, digits and single underscores, with no leading or trailing
// underscore. The replacement steps are order dependent: `%` and `/` are
// spelled out before any other character is replaced.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, "%", "percent")
	name = strings.ReplaceAll(name, "/", "_per_")
	name = unsafeIdentifierChars.ReplaceAllString(name, "_")
	name = repeatedUnderscores.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// SanitizeRecords rewrites the keys of every record with Sanitize, keeping
// key order. Keys of a single record which sanitize to the same identifier
// are collapsed, and the first non-null value is kept.
func SanitizeRecords(records []Record) []Record {
	var out = make([]Record, len(records))

	for i, record := range records {
		var sanitized = NewRecord()
		for pair := record.Oldest(); pair != nil; pair = pair.Next() {
			var key = Sanitize(pair.Key)
			if existing, ok := sanitized.Get(key); ok && existing != nil {
				continue
			}
			sanitized.Set(key, pair.Value)
		}
		out[i] = sanitized
	}

	return out
}
