package query

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
)

const geoFilterKey = "__geo__"

var distancePattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*(mi|yd|ft|in|km|m|cm|mm|nmi)?\s*$`)

// TranslateBasic converts a legacy field map query into the current dialect. A string q
// becomes the free text search, a map q becomes per field contains terms with the ""
// key acting as free text, filters become equality terms and the __geo__ filter becomes
// a geographic term. All terms are combined in a single and group.
func TranslateBasic(basic map[string]any) (map[string]any, error) {
	out := map[string]any{}
	var terms []any

	switch q := basic["q"].(type) {
	case nil:
	case string:
		if q != "" {
			out["search"] = q
		}
	case json.Number, float64, int, int64:
		out["search"] = textOf(q)
	case map[string]any:
		for _, field := range sortedKeys(q) {
			value := textOf(q[field])
			if value == "" {
				continue
			}
			if field == "" {
				out["search"] = value
				continue
			}
			terms = append(terms, map[string]any{
				"string_contains": map[string]any{"fields": []any{field}, "value": value},
			})
		}
	default:
		return nil, Invalidf("q must be a string or an object")
	}

	if raw, ok := basic["filters"]; ok && raw != nil {
		filters, ok := raw.(map[string]any)
		if !ok {
			return nil, Invalidf("filters must be an object")
		}

		for _, field := range sortedKeys(filters) {
			values, ok := filters[field].([]any)
			if !ok {
				values = []any{filters[field]}
			}

			if field == geoFilterKey {
				if len(values) == 0 {
					continue
				}
				// only the first geo filter is used
				term, err := translateGeo(values[0])
				if err != nil {
					return nil, err
				}
				terms = append(terms, term)
				continue
			}

			var group []any
			for _, value := range values {
				text := textOf(value)
				if field == "" || text == "" {
					continue
				}
				group = append(group, map[string]any{
					"string_equals": map[string]any{"fields": []any{field}, "value": text},
				})
			}
			switch {
			case len(group) > 1:
				terms = append(terms, map[string]any{"or": group})
			case len(group) == 1:
				terms = append(terms, group[0])
			}
		}
	}

	if len(terms) > 0 {
		out["filters"] = map[string]any{"and": terms}
	}
	return out, nil
}

func translateGeo(raw any) (map[string]any, error) {
	var geo map[string]any
	switch v := raw.(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &geo); err != nil {
			return nil, Invalidf("invalid geo filter information, must be JSON")
		}
	case map[string]any:
		geo = v
	default:
		return nil, Invalidf("invalid geo filter information, must be JSON")
	}

	switch geo["type"] {
	case "Point":
		distance, hasDistance := geo["distance"]
		coordinates, hasCoordinates := geo["coordinates"].([]any)
		if !hasDistance || !hasCoordinates {
			return nil, Invalidf("missing parameters, must include distance, coordinates")
		}
		if len(coordinates) != 2 {
			return nil, Invalidf("point coordinates must be a [longitude, latitude] pair")
		}
		lon, err := toFloat(coordinates[0])
		if err != nil {
			return nil, err
		}
		lat, err := toFloat(coordinates[1])
		if err != nil {
			return nil, err
		}
		radius, unit, err := parseDistance(distance)
		if err != nil {
			return nil, err
		}
		return map[string]any{"geo_point": map[string]any{
			"latitude":    lat,
			"longitude":   lon,
			"radius":      radius,
			"radius_unit": unit,
		}}, nil
	case "Polygon":
		coordinates, ok := geo["coordinates"].([]any)
		if !ok {
			return nil, Invalidf("missing parameters, must include coordinates")
		}
		if err := checkPolygon(coordinates); err != nil {
			return nil, err
		}
		return map[string]any{"geo_custom_area": []any{coordinates}}, nil
	case "MultiPolygon":
		coordinates, ok := geo["coordinates"].([]any)
		if !ok {
			return nil, Invalidf("missing parameters, must include coordinates")
		}
		for _, polygon := range coordinates {
			rings, ok := polygon.([]any)
			if !ok {
				return nil, Invalidf("multipolygon coordinates must be a list of polygons")
			}
			if err := checkPolygon(rings); err != nil {
				return nil, err
			}
		}
		return map[string]any{"geo_custom_area": coordinates}, nil
	}

	return nil, Invalidf("invalid query type, must be Point, Polygon or MultiPolygon")
}

func checkPolygon(rings []any) error {
	if len(rings) == 0 {
		return Invalidf("not enough points in the polygon, must be 3 or more")
	}
	points, ok := rings[0].([]any)
	if !ok || len(points) < 3 {
		return Invalidf("not enough points in the polygon, must be 3 or more")
	}
	return nil
}

func parseDistance(raw any) (float64, string, error) {
	text := textOf(raw)
	match := distancePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, "", Invalidf("invalid distance %q", text)
	}
	radius, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, "", Invalidf("invalid distance %q", text)
	}
	unit := match[2]
	if unit == "" {
		unit = "m"
	}
	return radius, unit, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, Invalidf("invalid coordinate %q", t)
		}
		return f, nil
	}
	return 0, Invalidf("invalid coordinate %v", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

