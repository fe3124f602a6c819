package query

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// HashExpression returns a stable hash of a current dialect expression. Group members
// and term fields are sorted so construction order never changes the result.
func HashExpression(expression map[string]any) (string, error) {
	h := sha1.New()
	if search, ok := expression["search"]; ok {
		h.Write([]byte("search:" + textOf(search)))
	}
	if filters, ok := expression["filters"]; ok {
		node, ok := filters.(map[string]any)
		if !ok {
			return "", Invalidf("filters must be an object")
		}
		rendered, err := renderGroupOrTerm(node)
		if err != nil {
			return "", err
		}
		h.Write([]byte("filters:" + rendered))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func singleEntry(node map[string]any) (string, any, error) {
	if len(node) != 1 {
		return "", nil, Invalidf("a group or term must have exactly one key, got %d", len(node))
	}
	for k, v := range node {
		return k, v, nil
	}
	return "", nil, nil
}

func renderGroupOrTerm(node map[string]any) (string, error) {
	kind, options, err := singleEntry(node)
	if err != nil {
		return "", err
	}

	switch kind {
	case "and", "or", "not":
		members, ok := options.([]any)
		if !ok {
			return "", Invalidf("%s group must be a list", kind)
		}
		rendered := make([]string, 0, len(members))
		for _, member := range members {
			m, ok := member.(map[string]any)
			if !ok {
				return "", Invalidf("%s group members must be objects", kind)
			}
			r, err := renderGroupOrTerm(m)
			if err != nil {
				return "", err
			}
			rendered = append(rendered, r)
		}
		sort.Strings(rendered)
		return kind + ":[" + strings.Join(rendered, "|") + "]", nil
	case "geo_custom_area":
		return renderCustomArea(options)
	}

	opts, ok := options.(map[string]any)
	if !ok {
		return "", Invalidf("%s options must be an object", kind)
	}

	switch kind {
	case "string_equals", "string_contains", "number_equals":
		return fmt.Sprintf("%s:%s;%s", kind, sortedFields(opts), textOf(opts["value"])), nil
	case "number_range":
		out := "number_range:" + sortedFields(opts) + ";"
		if lt, ok := opts["less_than"]; ok && lt != nil {
			out += "<"
			if inclusive(opts, "less_than_inclusive") {
				out += "="
			}
			out += textOf(lt)
		}
		if gt, ok := opts["greater_than"]; ok && gt != nil {
			out += ">"
			if inclusive(opts, "greater_than_inclusive") {
				out += "="
			}
			out += textOf(gt)
		}
		return out, nil
	case "exists":
		if geo, _ := opts["geo_field"].(bool); geo {
			return "geo_exists", nil
		}
		return "exists:" + sortedFields(opts), nil
	case "geo_point":
		radius := "0"
		if r, ok := opts["radius"]; ok {
			radius = textOf(r)
		}
		unit := "m"
		if u, ok := opts["radius_unit"]; ok {
			unit = textOf(u)
		}
		return fmt.Sprintf("geo_point:%s%s;%s;%s", radius, unit, textOf(opts["latitude"]), textOf(opts["longitude"])), nil
	case "geo_named_area":
		area, name, err := singleEntry(opts)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("geo_named_area:%s;%s", area, textOf(name)), nil
	}

	return "", Invalidf("unknown group or term type %q", kind)
}

func inclusive(opts map[string]any, key string) bool {
	v, ok := opts[key].(bool)
	if !ok {
		return true
	}
	return v
}

func sortedFields(opts map[string]any) string {
	raw, _ := opts["fields"].([]any)
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		fields = append(fields, textOf(f))
	}
	sort.Strings(fields)
	return strings.Join(fields, ",")
}

// renderCustomArea renders a MultiPolygon coordinate list. Points are written latitude
// first and are never sorted; holes are sorted.
func renderCustomArea(options any) (string, error) {
	polygons, ok := options.([]any)
	if !ok {
		return "", Invalidf("geo_custom_area must be a list of polygons")
	}

	parts := make([]string, 0, len(polygons))
	for _, p := range polygons {
		rings, ok := p.([]any)
		if !ok || len(rings) == 0 {
			return "", Invalidf("geo_custom_area polygons must be non-empty lists")
		}
		outer, err := renderRing(rings[0])
		if err != nil {
			return "", err
		}
		if len(rings) == 1 {
			parts = append(parts, outer)
			continue
		}

		holes := make([]string, 0, len(rings)-1)
		for _, ring := range rings[1:] {
			hole, err := renderRing(ring)
			if err != nil {
				return "", err
			}
			holes = append(holes, "'"+hole+"'")
		}
		sort.Strings(holes)
		parts = append(parts, outer+"/["+strings.Join(holes, ", ")+"]")
	}

	return "geo_custom_area:" + strings.Join(parts, ";"), nil
}

func renderRing(ring any) (string, error) {
	points, ok := ring.([]any)
	if !ok {
		return "", Invalidf("geo_custom_area rings must be lists of points")
	}
	rendered := make([]string, 0, len(points))
	for _, point := range points {
		pair, ok := point.([]any)
		if !ok || len(pair) != 2 {
			return "", Invalidf("geo_custom_area points must be [longitude, latitude] pairs")
		}
		rendered = append(rendered, fmt.Sprintf("[%s,%s]", textOf(pair[1]), textOf(pair[0])))
	}
	return strings.Join(rendered, ","), nil
}

// textOf renders a scalar the same way whether it came straight from a request or back
// out of the database.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
