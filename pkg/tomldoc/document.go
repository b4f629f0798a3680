// Package tomldoc implements an order-preserving codec for the
// TOML-shaped manifest and lockfile documents the kernel reads and
// writes. No third-party TOML library exists anywhere in the retrieved
// reference corpus, so this package hand-rolls a parser and encoder for
// the subset of TOML the manifest and lockfile formats actually use:
// tables, array-of-tables, basic/literal strings, integers, floats,
// booleans, and arrays (including arrays of inline tables).
//
// Every table is an *orderedmap.OrderedMap, so keys round-trip in the order
// they were written or inserted instead of being resorted.
package tomldoc

import (
	"github.com/iancoleman/orderedmap"
)

// Document is a parsed TOML-shaped document: an ordered root table whose
// values are scalars, arrays ([]interface{}), nested tables
// (*orderedmap.OrderedMap), or arrays of tables ([]*orderedmap.OrderedMap).
type Document struct {
	Root *orderedmap.OrderedMap
}

// NewDocument returns an empty Document ready for population.
func NewDocument() *Document {
	return &Document{Root: orderedmap.New()}
}

// Table returns the nested table at the given dotted path, creating
// intermediate tables as needed. It fails only if an existing non-table
// value occupies one of the path segments.
func (d *Document) Table(path ...string) (*orderedmap.OrderedMap, error) {
	cur := d.Root
	for i, seg := range path {
		raw, ok := cur.Get(seg)
		if !ok {
			next := orderedmap.New()
			cur.Set(seg, next)
			cur = next
			continue
		}
		tbl, ok := raw.(*orderedmap.OrderedMap)
		if !ok {
			return nil, errInvalidf("key %q is not a table (segment %d of %v)", seg, i, path)
		}
		cur = tbl
	}
	return cur, nil
}

// GetTable returns the table at path if present, without creating it.
func (d *Document) GetTable(path ...string) (*orderedmap.OrderedMap, bool) {
	cur := d.Root
	for _, seg := range path {
		raw, ok := cur.Get(seg)
		if !ok {
			return nil, false
		}
		tbl, ok := raw.(*orderedmap.OrderedMap)
		if !ok {
			return nil, false
		}
		cur = tbl
	}
	return cur, true
}

// GetString returns the string value at path, if present and a string.
func GetString(tbl *orderedmap.OrderedMap, key string) (string, bool) {
	if tbl == nil {
		return "", false
	}
	raw, ok := tbl.Get(key)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// GetBool returns the bool value at key, if present and a bool.
func GetBool(tbl *orderedmap.OrderedMap, key string) (bool, bool) {
	if tbl == nil {
		return false, false
	}
	raw, ok := tbl.Get(key)
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}

// GetStringSlice returns the array at key as a []string. Non-string
// elements are skipped.
func GetStringSlice(tbl *orderedmap.OrderedMap, key string) ([]string, bool) {
	if tbl == nil {
		return nil, false
	}
	raw, ok := tbl.Get(key)
	if !ok {
		return nil, false
	}
	arr, ok := raw.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// GetStringMap returns every key of tbl whose value is a string, in
// insertion order.
func GetStringMap(tbl *orderedmap.OrderedMap) []KV {
	if tbl == nil {
		return nil
	}
	keys := tbl.Keys()
	out := make([]KV, 0, len(keys))
	for _, k := range keys {
		raw, _ := tbl.Get(k)
		if s, ok := raw.(string); ok {
			out = append(out, KV{Key: k, Value: s})
		}
	}
	return out
}

// KV is an ordered string key/value pair, used where callers need a
// deterministic list instead of a Go map (which has randomized range order).
type KV struct {
	Key   string
	Value string
}

// SetString sets a string value on tbl at key, preserving insertion order.
func SetString(tbl *orderedmap.OrderedMap, key, value string) {
	tbl.Set(key, value)
}

// SetStringSlice sets a []string as an array value on tbl at key.
func SetStringSlice(tbl *orderedmap.OrderedMap, key string, values []string) {
	arr := make([]interface{}, len(values))
	for i, v := range values {
		arr[i] = v
	}
	tbl.Set(key, arr)
}

// ArrayOfTables returns the array-of-tables value at key, if present.
func ArrayOfTables(tbl *orderedmap.OrderedMap, key string) ([]*orderedmap.OrderedMap, bool) {
	if tbl == nil {
		return nil, false
	}
	raw, ok := tbl.Get(key)
	if !ok {
		return nil, false
	}
	arr, ok := raw.([]*orderedmap.OrderedMap)
	return arr, ok
}
