// Package datastoretest provides an in-memory record store and catalog for tests
package datastoretest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"datastore-downloader/internal/datastore"
)

// DefaultPackageID is the package resources added through AddVersion belong to
const DefaultPackageID = "test-package"

type version struct {
	at      int64
	records []datastore.Record
}

// Store is an in-memory datastore.Store and datastore.Catalog. Each resource version holds
// a complete snapshot of the records at that version.
type Store struct {
	mu        sync.Mutex
	versions  map[string][]version
	resources map[string]datastore.Resource
	packages  map[string]datastore.Package
	scans     map[string]int

	// ScanErr, when set, is returned by every Scan
	ScanErr error
}

// New creates an empty store
func New() *Store {
	return &Store{
		versions:  make(map[string][]version),
		resources: make(map[string]datastore.Resource),
		packages: map[string]datastore.Package{
			DefaultPackageID: {ID: DefaultPackageID, Title: "Test package"},
		},
		scans: make(map[string]int),
	}
}

// AddVersion stores the records of a resource at a version
func (s *Store) AddVersion(resourceID string, at int64, records ...datastore.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := append(s.versions[resourceID], version{at: at, records: records})
	sort.Slice(vs, func(i, j int) bool { return vs[i].at < vs[j].at })
	s.versions[resourceID] = vs

	if _, ok := s.resources[resourceID]; !ok {
		s.resources[resourceID] = datastore.Resource{ID: resourceID, PackageID: DefaultPackageID, Name: resourceID, DatastoreActive: true}
	}
}

// AddResource adds or replaces a catalog resource
func (s *Store) AddResource(resource datastore.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[resource.ID] = resource
}

// AddPackage adds or replaces a catalog package
func (s *Store) AddPackage(pkg datastore.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[pkg.ID] = pkg
}

// ScanCount returns how many times a resource has been scanned
func (s *Store) ScanCount(resourceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans[resourceID]
}

func (s *Store) snapshot(resourceID string, at int64) ([]datastore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions[resourceID] {
		if v.at == at {
			return v.records, nil
		}
	}
	return nil, fmt.Errorf("resource %s has no version %d: %w", resourceID, at, datastore.ErrNotFound)
}

// Scan implements datastore.Store
func (s *Store) Scan(ctx context.Context, resourceID string, at int64, filter map[string]any, fn func(datastore.Record) error) error {
	s.mu.Lock()
	s.scans[resourceID]++
	scanErr := s.ScanErr
	s.mu.Unlock()
	if scanErr != nil {
		return scanErr
	}

	records, err := s.snapshot(resourceID, at)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := Match(filter, record)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

// FieldSchema implements datastore.Store
func (s *Store) FieldSchema(_ context.Context, resourceID string, at int64, filter map[string]any) ([]datastore.FieldInfo, error) {
	records, err := s.snapshot(resourceID, at)
	if err != nil {
		return nil, err
	}

	infos := make(map[string]*datastore.FieldInfo)
	for _, record := range records {
		ok, err := Match(filter, record)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for key, value := range record {
			observe(infos, key, value, true)
		}
	}

	paths := make([]string, 0, len(infos))
	for path := range infos {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	out := make([]datastore.FieldInfo, 0, len(paths))
	for _, path := range paths {
		out = append(out, *infos[path])
	}
	return out, nil
}

func observe(infos map[string]*datastore.FieldInfo, path string, value any, root bool) {
	info, ok := infos[path]
	if !ok {
		info = &datastore.FieldInfo{Path: path, IsRoot: root}
		infos[path] = info
	}

	switch v := value.(type) {
	case nil:
	case map[string]any:
		info.Types.Dict = true
		info.Count++
		for key, child := range v {
			observe(infos, path+"."+key, child, false)
		}
	case datastore.Record:
		observe(infos, path, map[string]any(v), root)
	case []any:
		info.Types.List = true
		for _, element := range v {
			switch e := element.(type) {
			case nil:
			case map[string]any:
				info.Types.Dict = true
				info.Count++
				for key, child := range e {
					observe(infos, path+"."+key, child, false)
				}
			default:
				flagScalar(&info.Types, e)
				info.Count++
			}
		}
	default:
		flagScalar(&info.Types, v)
		info.Count++
	}
}

func flagScalar(types *datastore.FieldTypes, value any) {
	switch v := value.(type) {
	case string:
		types.String = true
	case bool:
		types.Bool = true
	case int, int32, int64:
		types.Int = true
	case float32, float64:
		types.Float = true
	case json.Number:
		if strings.ContainsAny(v.String(), ".eE") {
			types.Float = true
		} else {
			types.Int = true
		}
	default:
		types.String = true
	}
}

// RoundedVersion implements datastore.Store
func (s *Store) RoundedVersion(_ context.Context, resourceID string, target int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best, found := int64(0), false
	for _, v := range s.versions[resourceID] {
		if v.at <= target {
			best, found = v.at, true
		}
	}
	return best, found, nil
}

// Resource implements datastore.Catalog
func (s *Store) Resource(_ context.Context, id string) (*datastore.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", id, datastore.ErrNotFound)
	}
	return &r, nil
}

// Package implements datastore.Catalog
func (s *Store) Package(_ context.Context, id string) (*datastore.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return nil, fmt.Errorf("package %s: %w", id, datastore.ErrNotFound)
	}
	return &p, nil
}

// Match evaluates a filter expression against one record. Geographic terms are not
// supported.
func Match(expression map[string]any, record datastore.Record) (bool, error) {
	if search, ok := expression["search"].(string); ok && search != "" {
		if !containsText(map[string]any(record), strings.ToLower(search)) {
			return false, nil
		}
	}
	filters, ok := expression["filters"].(map[string]any)
	if !ok {
		return true, nil
	}
	return matchNode(filters, record)
}

func matchNode(node map[string]any, record datastore.Record) (bool, error) {
	for kind, options := range node {
		switch kind {
		case "and", "or", "not":
			members, _ := options.([]any)
			matched := 0
			for _, member := range members {
				m, _ := member.(map[string]any)
				ok, err := matchNode(m, record)
				if err != nil {
					return false, err
				}
				if ok {
					matched++
				}
			}
			switch kind {
			case "and":
				return matched == len(members), nil
			case "or":
				return matched > 0, nil
			default:
				return matched == 0, nil
			}
		}

		opts, _ := options.(map[string]any)
		fields := stringList(opts["fields"])
		switch kind {
		case "string_equals":
			want := fmt.Sprint(opts["value"])
			return anyField(record, fields, func(v any) bool { return fmt.Sprint(v) == want }), nil
		case "string_contains":
			want := strings.ToLower(fmt.Sprint(opts["value"]))
			if len(fields) == 0 {
				return containsText(map[string]any(record), want), nil
			}
			return anyField(record, fields, func(v any) bool { return containsText(v, want) }), nil
		case "number_equals":
			want, _ := number(opts["value"])
			return anyField(record, fields, func(v any) bool {
				n, ok := number(v)
				return ok && n == want
			}), nil
		case "number_range":
			return anyField(record, fields, func(v any) bool { return inRange(v, opts) }), nil
		case "exists":
			return anyField(record, fields, func(v any) bool { return v != nil }), nil
		}
		return false, fmt.Errorf("unsupported term %q", kind)
	}
	return true, nil
}

func inRange(v any, opts map[string]any) bool {
	n, ok := number(v)
	if !ok {
		return false
	}
	if lt, ok := number(opts["less_than"]); ok {
		inclusive, set := opts["less_than_inclusive"].(bool)
		if (!set || inclusive) && n > lt || (set && !inclusive) && n >= lt {
			return false
		}
	}
	if gt, ok := number(opts["greater_than"]); ok {
		inclusive, set := opts["greater_than_inclusive"].(bool)
		if (!set || inclusive) && n < gt || (set && !inclusive) && n <= gt {
			return false
		}
	}
	return true
}

func anyField(record datastore.Record, fields []string, pred func(any) bool) bool {
	for _, field := range fields {
		if v := lookup(map[string]any(record), field); v != nil && pred(v) {
			return true
		}
	}
	return false
}

func lookup(data map[string]any, path string) any {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := data[head]
	if !ok {
		return nil
	}
	if !nested {
		return v
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return lookup(child, rest)
}

func containsText(v any, needle string) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if containsText(child, needle) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if containsText(child, needle) {
				return true
			}
		}
	case nil:
	default:
		return strings.Contains(strings.ToLower(fmt.Sprint(t)), needle)
	}
	return false
}

func stringList(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, fmt.Sprint(r))
	}
	return out
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

var (
	_ datastore.Store   = (*Store)(nil)
	_ datastore.Catalog = (*Store)(nil)
)
