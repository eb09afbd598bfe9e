package store

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/witsync/internal/wit"
)

// storedFields are carried in dedicated columns, not in the fields blob.
var storedFields = []string{wit.FieldID, wit.FieldWorkItemType, wit.FieldTeamProject}

// marshalFields encodes field values for the fields column.
// Keys are sorted by encoding/json, so equal maps store identical text.
func marshalFields(fields map[string]any) (string, error) {
	blob := maps.Clone(fields)
	for _, name := range storedFields {
		delete(blob, name)
	}
	if blob == nil {
		blob = map[string]any{}
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func bytesReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

// normalizeNumbers converts json.Number values to int64 when integral and
// float64 otherwise, so callers compare against plain Go numbers.
func normalizeNumbers(fields map[string]any) {
	for k, v := range fields {
		fields[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		normalizeNumbers(x)
		return x
	case []any:
		for i := range x {
			x[i] = normalizeValue(x[i])
		}
		return x
	default:
		return v
	}
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
