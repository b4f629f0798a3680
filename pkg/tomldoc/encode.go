package tomldoc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iancoleman/orderedmap"
)

// Encode serializes the document back to TOML-shaped bytes. Scalar keys
// at the root (and in any table) are written before nested tables and
// arrays of tables, matching how hand-written manifests group simple
// fields above their `[section]` blocks; within each group, insertion
// order from the OrderedMap is preserved.
func (d *Document) Encode() []byte {
	var b strings.Builder
	encodeTable(&b, d.Root, nil)
	return []byte(strings.TrimRight(b.String(), "\n") + "\n")
}

func encodeTable(b *strings.Builder, tbl *orderedmap.OrderedMap, path []string) {
	keys := tbl.Keys()

	var scalarKeys, subTableKeys, arrayTableKeys []string
	for _, k := range keys {
		raw, _ := tbl.Get(k)
		switch raw.(type) {
		case *orderedmap.OrderedMap:
			subTableKeys = append(subTableKeys, k)
		case []*orderedmap.OrderedMap:
			arrayTableKeys = append(arrayTableKeys, k)
		default:
			scalarKeys = append(scalarKeys, k)
		}
	}

	for _, k := range scalarKeys {
		raw, _ := tbl.Get(k)
		fmt.Fprintf(b, "%s = %s\n", encodeKey(k), encodeValue(raw))
	}

	for _, k := range subTableKeys {
		raw, _ := tbl.Get(k)
		sub := raw.(*orderedmap.OrderedMap)
		childPath := append(append([]string{}, path...), k)
		fmt.Fprintf(b, "\n[%s]\n", encodePath(childPath))
		encodeTable(b, sub, childPath)
	}

	for _, k := range arrayTableKeys {
		raw, _ := tbl.Get(k)
		arr := raw.([]*orderedmap.OrderedMap)
		childPath := append(append([]string{}, path...), k)
		for _, entry := range arr {
			fmt.Fprintf(b, "\n[[%s]]\n", encodePath(childPath))
			encodeTable(b, entry, childPath)
		}
	}
}

func encodePath(path []string) string {
	segs := make([]string, len(path))
	for i, s := range path {
		segs[i] = encodeKey(s)
	}
	return strings.Join(segs, ".")
}

func isBareKey(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			return false
		}
	}
	return true
}

func encodeKey(s string) string {
	if isBareKey(s) {
		return s
	}
	return strconv.Quote(s)
}

func encodeValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = encodeValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *orderedmap.OrderedMap:
		keys := val.Keys()
		sort.Strings(keys) // inline tables are small and order-insensitive here
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			raw, _ := val.Get(k)
			parts = append(parts, fmt.Sprintf("%s = %s", encodeKey(k), encodeValue(raw)))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	default:
		return fmt.Sprintf("%v", val)
	}
}
