package fields

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/linkedin/goavro/v2"

	"datastore-downloader/internal/datastore"
)

const (
	fieldPrefix      = "f_"
	recordPrefix     = "r_"
	rootRecordName   = "core_record"
	avroArrayName    = "array"
	avroStringName   = "string"
	avroLongName     = "long"
	avroDoubleName   = "double"
	avroBooleanName  = "boolean"
	escapedHexDigits = 2
)

type kind int

const (
	kindString kind = iota
	kindLong
	kindDouble
	kindBoolean
	kindRecord
)

func (k kind) avroName() string {
	switch k {
	case kindLong:
		return avroLongName
	case kindDouble:
		return avroDoubleName
	case kindBoolean:
		return avroBooleanName
	default:
		return avroStringName
	}
}

type node struct {
	name     string
	path     string
	kind     kind
	list     bool
	children []*node
}

// recordName is the unique Avro name of a nested record type
func (n *node) recordName() string {
	return recordPrefix + EscapeName(n.path)
}

// itemName is the union branch name of one value of the node
func (n *node) itemName() string {
	if n.kind == kindRecord {
		return n.recordName()
	}
	return n.kind.avroName()
}

// AvroSchema is the row schema of a core file. Every field is nullable and field names
// are escaped into legal Avro names.
type AvroSchema struct {
	root *node
	text string
}

// Schema builds the row schema for records described by infos
func Schema(infos []datastore.FieldInfo) (*AvroSchema, error) {
	root := &node{kind: kindRecord}
	byPath := map[string]*node{"": root}

	sorted := make([]datastore.FieldInfo, len(infos))
	copy(sorted, infos)
	// parents sort before their children
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	parents := make(map[string]bool)
	for _, info := range sorted {
		for idx := strings.LastIndex(info.Path, "."); idx >= 0; idx = strings.LastIndex(info.Path[:idx], ".") {
			parents[info.Path[:idx]] = true
		}
	}

	for _, info := range sorted {
		parentPath, name := "", info.Path
		if idx := strings.LastIndex(info.Path, "."); idx >= 0 {
			parentPath, name = info.Path[:idx], info.Path[idx+1:]
		}
		parent := ensurePath(byPath, parentPath)

		n := &node{name: name, path: info.Path}
		n.kind, n.list = resolveKind(info.Types, parents[info.Path])
		parent.children = append(parent.children, n)
		byPath[info.Path] = n
	}

	schema := schemaOf(root, rootRecordName)
	text, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode avro schema: %w", err)
	}
	if _, err := goavro.NewCodec(string(text)); err != nil {
		return nil, fmt.Errorf("failed to build avro schema: %w", err)
	}
	return &AvroSchema{root: root, text: string(text)}, nil
}

// ensurePath creates record nodes for a path whose parents were never described
func ensurePath(byPath map[string]*node, path string) *node {
	if n, ok := byPath[path]; ok {
		return n
	}
	parentPath, name := "", path
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		parentPath, name = path[:idx], path[idx+1:]
	}
	parent := ensurePath(byPath, parentPath)
	n := &node{name: name, path: path, kind: kindRecord}
	parent.children = append(parent.children, n)
	byPath[path] = n
	return n
}

// resolveKind collapses the observed type flags into one Avro type. Objects win over
// scalars, int and float together become double, and any other mix becomes string.
func resolveKind(t datastore.FieldTypes, children bool) (kind, bool) {
	if t.Dict || children {
		return kindRecord, t.List
	}

	switch {
	case t.Int && !t.Float && !t.Bool && !t.String:
		return kindLong, t.List
	case t.Float && !t.Bool && !t.String:
		return kindDouble, t.List
	case t.Bool && !t.Int && !t.Float && !t.String:
		return kindBoolean, t.List
	default:
		return kindString, t.List
	}
}

func schemaOf(n *node, name string) map[string]any {
	fields := make([]map[string]any, 0, len(n.children))
	for _, child := range n.children {
		fields = append(fields, map[string]any{
			"name":    EscapeName(child.name),
			"type":    []any{"null", typeOf(child)},
			"default": nil,
		})
	}
	return map[string]any{
		"type":   "record",
		"name":   name,
		"fields": fields,
	}
}

func typeOf(n *node) any {
	var item any = n.kind.avroName()
	if n.kind == kindRecord {
		item = schemaOf(n, n.recordName())
	}
	if n.list {
		return map[string]any{
			"type":  "array",
			"items": []any{"null", item},
		}
	}
	return item
}

// JSON returns the schema text
func (s *AvroSchema) JSON() string {
	return s.text
}

// Native converts a record into the value goavro expects for this schema. Values that
// cannot be represented by the field's type are written as null.
func (s *AvroSchema) Native(record datastore.Record) map[string]any {
	return nativeRecord(s.root, map[string]any(record))
}

func nativeRecord(n *node, data map[string]any) map[string]any {
	out := make(map[string]any, len(n.children))
	for _, child := range n.children {
		out[EscapeName(child.name)] = nativeField(child, data[child.name])
	}
	return out
}

func nativeField(n *node, value any) any {
	if value == nil {
		return nil
	}
	if !n.list {
		v := nativeItem(n, value)
		if v == nil {
			return nil
		}
		return goavro.Union(n.itemName(), v)
	}

	values, ok := value.([]any)
	if !ok {
		values = []any{value}
	}
	items := make([]any, 0, len(values))
	for _, element := range values {
		v := nativeItem(n, element)
		if v == nil {
			items = append(items, nil)
			continue
		}
		items = append(items, goavro.Union(n.itemName(), v))
	}
	return goavro.Union(avroArrayName, items)
}

func nativeItem(n *node, value any) any {
	switch n.kind {
	case kindRecord:
		data, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		return nativeRecord(n, data)
	case kindLong:
		if i, ok := toInt64(value); ok {
			return i
		}
		return nil
	case kindDouble:
		if f, ok := toFloat64(value); ok {
			return f
		}
		return nil
	case kindBoolean:
		if b, ok := value.(bool); ok {
			return b
		}
		return nil
	default:
		switch value.(type) {
		case map[string]any, []any:
			return nil
		}
		return Text(value)
	}
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		f, err := t.Float64()
		return int64(f), err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// FromNative turns a value read back from a core file into a record. Unions are
// unwrapped, names unescaped and null fields dropped.
func FromNative(native any) datastore.Record {
	data, ok := unwrap(native).(map[string]any)
	if !ok {
		return datastore.Record{}
	}
	return datastore.Record(data)
}

func unwrap(native any) any {
	switch v := native.(type) {
	case map[string]any:
		// a union branch is the only single key map whose key is not a field name
		if len(v) == 1 {
			for key, inner := range v {
				if !strings.HasPrefix(key, fieldPrefix) {
					return unwrap(inner)
				}
			}
		}
		out := make(map[string]any, len(v))
		for key, inner := range v {
			value := unwrap(inner)
			if value == nil {
				continue
			}
			out[UnescapeName(key)] = value
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, inner := range v {
			out = append(out, unwrap(inner))
		}
		return out
	default:
		return v
	}
}

// EscapeName maps a field name onto a legal Avro name. Letters and digits are kept and
// every other byte becomes an underscore followed by its hex value.
func EscapeName(name string) string {
	var b strings.Builder
	b.WriteString(fieldPrefix)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02x", c)
	}
	return b.String()
}

// UnescapeName reverses EscapeName
func UnescapeName(escaped string) string {
	name := strings.TrimPrefix(escaped, fieldPrefix)
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '_' && i+escapedHexDigits < len(name) {
			if c, err := strconv.ParseUint(name[i+1:i+1+escapedHexDigits], 16, 8); err == nil {
				b.WriteByte(byte(c))
				i += escapedHexDigits
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}
