// Package fields inspects, flattens and filters record fields
package fields

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ListSeparator joins the values of lists and of sibling list-of-object keys
const ListSeparator = " | "

// Flatten pulls nested objects up to the root using dot joined keys. Objects inside a list
// share their keys, so values under the same key are concatenated with ListSeparator:
//
//	{"a": {"b": 4, "c": 6}}        -> {"a.b": 4, "a.c": 6}
//	{"a": [{"b": 5}, {"b": 19}]}   -> {"a.b": "5 | 19"}
func Flatten(data map[string]any) map[string]any {
	flat := make(map[string]any, len(data))
	flatten(flat, "", data)
	return flat
}

func flatten(flat map[string]any, path string, data map[string]any) {
	for key, value := range data {
		if path != "" {
			key = path + "." + key
		}

		switch v := value.(type) {
		case map[string]any:
			flatten(flat, key, v)
		case []any:
			if !allObjects(v) {
				parts := make([]string, len(v))
				for i, element := range v {
					parts[i] = Text(element)
				}
				flat[key] = strings.Join(parts, ListSeparator)
				continue
			}
			for _, element := range v {
				nested := make(map[string]any)
				flatten(nested, key, element.(map[string]any))
				for subkey, subvalue := range nested {
					if existing, ok := flat[subkey]; ok {
						flat[subkey] = Text(existing) + ListSeparator + Text(subvalue)
					} else {
						flat[subkey] = subvalue
					}
				}
			}
		default:
			flat[key] = value
		}
	}
}

func allObjects(values []any) bool {
	for _, v := range values {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

// Text renders a scalar value as cell text. Nil renders as the empty string and
// composite values render as JSON.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}

// FilterDataFields drops every field whose path has no occurrences in counts. Objects
// left empty are dropped too, so filtering is idempotent.
func FilterDataFields(data map[string]any, counts map[string]int) map[string]any {
	return filterData(data, counts, "")
}

func filterData(data map[string]any, counts map[string]int, prefix string) map[string]any {
	filtered := make(map[string]any, len(data))
	for key, value := range data {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		switch v := value.(type) {
		case map[string]any:
			if nested := filterData(v, counts, path); len(nested) > 0 {
				filtered[key] = nested
			}
		case []any:
			if len(v) > 0 && allObjects(v) {
				elements := make([]any, 0, len(v))
				for _, element := range v {
					if nested := filterData(element.(map[string]any), counts, path); len(nested) > 0 {
						elements = append(elements, nested)
					}
				}
				if len(elements) > 0 {
					filtered[key] = elements
				}
				continue
			}
			if counts[path] > 0 {
				filtered[key] = value
			}
		default:
			if counts[path] > 0 {
				filtered[key] = value
			}
		}
	}
	return filtered
}

// GetFields returns the field names of the given resources (every resource when
// resourceIDs is nil) sorted case-insensitively. Fields with a zero count are left out
// when ignoreEmpty is set.
func GetFields(fieldCounts map[string]map[string]int, ignoreEmpty bool, resourceIDs []string) []string {
	wanted := func(string) bool { return true }
	if resourceIDs != nil {
		set := make(map[string]bool, len(resourceIDs))
		for _, id := range resourceIDs {
			set[id] = true
		}
		wanted = func(id string) bool { return set[id] }
	}

	names := make(map[string]bool)
	for resourceID, counts := range fieldCounts {
		if !wanted(resourceID) {
			continue
		}
		for field, count := range counts {
			if count == 0 && ignoreEmpty {
				continue
			}
			names[field] = true
		}
	}

	fields := make([]string, 0, len(names))
	for name := range names {
		fields = append(fields, name)
	}
	sort.Slice(fields, func(i, j int) bool {
		a, b := strings.ToLower(fields[i]), strings.ToLower(fields[j])
		if a != b {
			return a < b
		}
		return fields[i] < fields[j]
	})
	return fields
}
