// Package query builds canonical, hashable queries bound to concrete resource versions
package query

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// VersionCurrent is the structured filter dialect every query is stored in
	VersionCurrent = "v1.0.0"
	// VersionBasic is the legacy field map dialect, translated on construction
	VersionBasic = "v0.0.0"
)

// ValidationError reports a malformed query or request argument supplied by the user
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalidf creates a ValidationError with a formatted message
func Invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err was caused by bad user input
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Query is an immutable filter expression bound to a set of resource versions
type Query struct {
	Expression map[string]any
	Version    string
	Resources  map[string]int64
}

// New validates the expression and returns a canonical Query. Legacy expressions are
// translated to the current dialect first.
func New(expression map[string]any, version string, resources map[string]int64) (*Query, error) {
	if expression == nil {
		expression = map[string]any{}
	}
	if version == "" {
		version = VersionCurrent
	}

	if strings.HasPrefix(strings.ToLower(version), "v0") {
		translated, err := TranslateBasic(expression)
		if err != nil {
			return nil, err
		}
		expression = translated
		version = VersionCurrent
	}

	if version != VersionCurrent {
		return nil, Invalidf("invalid query version: %s", version)
	}

	canonical, err := canonicalise(expression)
	if err != nil {
		return nil, Invalidf("query is not valid JSON: %v", err)
	}
	canonical = Normalise(canonical)

	if err := Validate(canonical); err != nil {
		return nil, err
	}

	copied := make(map[string]int64, len(resources))
	for id, v := range resources {
		copied[id] = v
	}

	return &Query{
		Expression: canonical,
		Version:    version,
		Resources:  copied,
	}, nil
}

// canonicalise round trips the expression through JSON so every number is a json.Number
// carrying the text json.Marshal produces for it. Hashes then survive persistence.
func canonicalise(expression map[string]any) (map[string]any, error) {
	data, err := json.Marshal(expression)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Hash returns the hash of the filter expression and its dialect
func (q *Query) Hash() string {
	// New has already validated the expression
	h, _ := HashExpression(q.Expression)
	return h
}

// ResourceHash returns the hash of the sorted resource id and version pairs
func (q *Query) ResourceHash() string {
	return ResourceHash(q.Resources)
}

// RecordHash returns the hash identifying this exact query over this exact data
func (q *Query) RecordHash() string {
	return RecordHash(q.Hash(), q.ResourceHash())
}

func (q *Query) String() string {
	return fmt.Sprintf("query %s over %d resources", q.Hash(), len(q.Resources))
}

// ResourceIDs returns the resource ids in sorted order
func (q *Query) ResourceIDs() []string {
	ids := make([]string, 0, len(q.Resources))
	for id := range q.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResourceHash hashes a resource id to version mapping independently of map ordering
func ResourceHash(resources map[string]int64) string {
	ids := make([]string, 0, len(resources))
	for id := range resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs := make([]string, 0, len(ids))
	for _, id := range ids {
		pairs = append(pairs, fmt.Sprintf("('%s', %d)", id, resources[id]))
	}
	return sha1Hex(strings.Join(pairs, "|"))
}

// RecordHash combines a query hash and a resource hash
func RecordHash(queryHash, resourceHash string) string {
	return sha1Hex(queryHash + "|" + resourceHash)
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
