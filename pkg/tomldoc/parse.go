package tomldoc

import (
	"strconv"
	"strings"

	"github.com/iancoleman/orderedmap"
)

// Parse decodes a TOML-shaped document. It supports bare and quoted
// keys, dotted table headers ([a.b]), array-of-tables headers ([[a]]),
// basic and literal strings, integers, floats, booleans, arrays
// (including nested arrays and arrays of inline tables split across
// lines), and inline tables. Duplicate keys within the same table fail
// closed rather than silently overwriting.
func Parse(data []byte) (*Document, error) {
	statements, err := splitStatements(string(data))
	if err != nil {
		return nil, err
	}

	doc := NewDocument()
	cur := doc.Root

	for _, st := range statements {
		line, text := st.line, strings.TrimSpace(st.text)
		if text == "" {
			continue
		}

		switch {
		case strings.HasPrefix(text, "[[") && strings.HasSuffix(text, "]]"):
			path := strings.TrimSpace(text[2 : len(text)-2])
			segs, err := splitDottedPath(path)
			if err != nil {
				return nil, errLinef(line, "%v", err)
			}
			tbl, err := appendArrayTable(doc.Root, segs)
			if err != nil {
				return nil, errLinef(line, "%v", err)
			}
			cur = tbl

		case strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
			path := strings.TrimSpace(text[1 : len(text)-1])
			segs, err := splitDottedPath(path)
			if err != nil {
				return nil, errLinef(line, "%v", err)
			}
			tbl, err := doc.Table(segs...)
			if err != nil {
				return nil, errLinef(line, "%v", err)
			}
			cur = tbl

		default:
			key, val, err := parseKeyValue(text)
			if err != nil {
				return nil, errLinef(line, "%v", err)
			}
			if _, exists := cur.Get(key); exists {
				return nil, errLinef(line, "duplicate key %q", key)
			}
			cur.Set(key, val)
		}
	}
	return doc, nil
}

// appendArrayTable creates (or appends to) the array-of-tables named by
// the last path segment, nested under any leading table segments, and
// returns the newly appended table.
func appendArrayTable(root *orderedmap.OrderedMap, segs []string) (*orderedmap.OrderedMap, error) {
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		raw, ok := cur.Get(seg)
		if !ok {
			next := orderedmap.New()
			cur.Set(seg, next)
			cur = next
			continue
		}
		tbl, ok := raw.(*orderedmap.OrderedMap)
		if !ok {
			return nil, errInvalidf("key %q is not a table", seg)
		}
		cur = tbl
	}

	key := segs[len(segs)-1]
	newTbl := orderedmap.New()
	raw, ok := cur.Get(key)
	if !ok {
		cur.Set(key, []*orderedmap.OrderedMap{newTbl})
		return newTbl, nil
	}
	arr, ok := raw.([]*orderedmap.OrderedMap)
	if !ok {
		return nil, errInvalidf("key %q is not an array of tables", key)
	}
	arr = append(arr, newTbl)
	cur.Set(key, arr)
	return newTbl, nil
}

func splitDottedPath(s string) ([]string, error) {
	parts, err := splitRespectingQuotes(s, '.')
	if err != nil {
		return nil, err
	}
	segs := make([]string, len(parts))
	for i, p := range parts {
		segs[i] = unquoteKey(strings.TrimSpace(p))
	}
	return segs, nil
}

func unquoteKey(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unq, err := strconv.Unquote(s)
		if err == nil {
			return unq
		}
	}
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}

func parseKeyValue(text string) (string, interface{}, error) {
	idx, err := findTopLevelEquals(text)
	if err != nil {
		return "", nil, err
	}
	key := unquoteKey(strings.TrimSpace(text[:idx]))
	if key == "" {
		return "", nil, errInvalidf("empty key in %q", text)
	}
	valText := strings.TrimSpace(text[idx+1:])
	val, _, err := parseValue(valText)
	if err != nil {
		return "", nil, err
	}
	return key, val, nil
}

// findTopLevelEquals returns the index of the first '=' not inside a
// quoted key.
func findTopLevelEquals(text string) (int, error) {
	inQuote := byte(0)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inQuote != 0 {
			if c == '\\' && inQuote == '"' {
				i++
				continue
			}
			if c == inQuote {
				inQuote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			inQuote = c
		case '=':
			return i, nil
		}
	}
	return 0, errInvalidf("missing '=' in %q", text)
}
