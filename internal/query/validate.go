package query

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed terms.yaml
var termsDocument []byte

var termTypes = []string{
	"string_equals",
	"string_contains",
	"number_equals",
	"number_range",
	"exists",
	"geo_point",
	"geo_named_area",
	"geo_custom_area",
}

var (
	termSchemasOnce sync.Once
	termSchemas     map[string]*openapi3.Schema
	termSchemasErr  error
)

func loadTermSchemas() (map[string]*openapi3.Schema, error) {
	termSchemasOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(termsDocument)
		if err != nil {
			termSchemasErr = fmt.Errorf("failed to load term schemas: %w", err)
			return
		}
		if err := doc.Validate(loader.Context); err != nil {
			termSchemasErr = fmt.Errorf("failed to validate term schemas: %w", err)
			return
		}

		schemas := make(map[string]*openapi3.Schema, len(termTypes))
		for _, name := range termTypes {
			ref, ok := doc.Components.Schemas[name]
			if !ok || ref.Value == nil {
				termSchemasErr = fmt.Errorf("missing term schema %q", name)
				return
			}
			schemas[name] = ref.Value
		}
		termSchemas = schemas
	})
	return termSchemas, termSchemasErr
}

// Validate checks a current dialect expression. The expression may only hold a string
// search and a filters group or term; every term's options are checked against its schema.
func Validate(expression map[string]any) error {
	schemas, err := loadTermSchemas()
	if err != nil {
		return err
	}

	// openapi3 validates plain JSON values, so numbers must be float64 here
	plain, err := plainCopy(expression)
	if err != nil {
		return Invalidf("query is not valid JSON: %v", err)
	}

	for key, value := range plain {
		switch key {
		case "search":
			if _, ok := value.(string); !ok {
				return Invalidf("search must be a string")
			}
		case "filters":
			node, ok := value.(map[string]any)
			if !ok {
				return Invalidf("filters must be an object")
			}
			if err := validateGroupOrTerm(schemas, node, "filters"); err != nil {
				return err
			}
		default:
			return Invalidf("unexpected query property %q", key)
		}
	}

	return nil
}

func validateGroupOrTerm(schemas map[string]*openapi3.Schema, node map[string]any, path string) error {
	kind, options, err := singleEntry(node)
	if err != nil {
		return Invalidf("%s: %v", path, err)
	}
	path = path + "." + kind

	switch kind {
	case "and", "or", "not":
		members, ok := options.([]any)
		if !ok {
			return Invalidf("%s: group members must be a list", path)
		}
		for i, member := range members {
			m, ok := member.(map[string]any)
			if !ok {
				return Invalidf("%s[%d]: group members must be objects", path, i)
			}
			if err := validateGroupOrTerm(schemas, m, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	schema, ok := schemas[kind]
	if !ok {
		return Invalidf("%s: unknown group or term type", path)
	}
	if err := schema.VisitJSON(options, openapi3.MultiErrors()); err != nil {
		return Invalidf("%s: %v", path, err)
	}
	return nil
}

func plainCopy(expression map[string]any) (map[string]any, error) {
	data, err := json.Marshal(expression)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Normalise removes groups left without members. A filters value that empties entirely
// is dropped.
func Normalise(expression map[string]any) map[string]any {
	filters, ok := expression["filters"].(map[string]any)
	if !ok {
		return expression
	}
	if pruned, keep := pruneEmptyGroups(filters); keep {
		expression["filters"] = pruned
	} else {
		delete(expression, "filters")
	}
	return expression
}

func pruneEmptyGroups(node map[string]any) (map[string]any, bool) {
	if len(node) != 1 {
		return node, true
	}
	for kind, options := range node {
		switch kind {
		case "and", "or", "not":
			members, ok := options.([]any)
			if !ok {
				return node, true
			}
			kept := make([]any, 0, len(members))
			for _, member := range members {
				m, ok := member.(map[string]any)
				if !ok {
					kept = append(kept, member)
					continue
				}
				if pruned, keep := pruneEmptyGroups(m); keep {
					kept = append(kept, pruned)
				}
			}
			if len(kept) == 0 {
				return nil, false
			}
			return map[string]any{kind: kept}, true
		}
	}
	return node, true
}
