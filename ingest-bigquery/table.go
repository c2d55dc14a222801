package connector

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// TableIdentifier is the fully qualified name of a BigQuery table.
type TableIdentifier struct {
	ProjectID string
	DatasetID string
	TableID   string
}

func (t TableIdentifier) String() string {
	return t.ProjectID + "." + t.DatasetID + "." + t.TableID
}

var ErrTableName = errors.New("cannot derive a table name")

// TableName derives the short table name from an uploaded object name. The
// base name is cut at its first '.', split on '_', and the last two segments
// (a date and time suffix, such as `_20240115_103000`) are removed. When
// strict is set, both removed segments must be made only of digits.
func TableName(objectName string, strict bool) (string, error) {
	var base = path.Base(objectName)
	var stem, _, _ = strings.Cut(base, ".")
	var parts = strings.Split(stem, "_")

	if len(parts) < 3 {
		return "", fmt.Errorf("%w from %q: expected a name followed by two '_' separated suffix segments", ErrTableName, base)
	}

	var suffix = parts[len(parts)-2:]
	if strict && !(isDigits(suffix[0]) && isDigits(suffix[1])) {
		return "", fmt.Errorf("%w from %q: suffix %q is not a numeric date and time", ErrTableName, base, strings.Join(suffix, "_"))
	}

	var name = strings.Join(parts[:len(parts)-2], "_")
	if name == "" {
		return "", fmt.Errorf("%w from %q: the name before the suffix is empty", ErrTableName, base)
	}
	return name, nil
}

// DeriveTable resolves the table receiving the rows of objectName.
func DeriveTable(projectID, datasetID, objectName string, strict bool) (TableIdentifier, error) {
	name, err := TableName(objectName, strict)
	if err != nil {
		return TableIdentifier{}, err
	}

	return TableIdentifier{
		ProjectID: projectID,
		DatasetID: datasetID,
		TableID:   name,
	}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
