package tomldoc

import (
	"strconv"
	"strings"

	"github.com/iancoleman/orderedmap"
)

// parseValue parses a single TOML value starting at the front of text
// and returns it along with the unconsumed remainder (used by array and
// inline-table parsing, which need to know where one element ends).
func parseValue(text string) (interface{}, string, error) {
	text = strings.TrimLeft(text, " \t")
	if text == "" {
		return nil, "", errInvalidf("expected value, got empty string")
	}

	switch text[0] {
	case '"':
		return parseBasicString(text)
	case '\'':
		return parseLiteralString(text)
	case '[':
		return parseArray(text)
	case '{':
		return parseInlineTable(text)
	}

	if strings.HasPrefix(text, "true") {
		return true, text[4:], nil
	}
	if strings.HasPrefix(text, "false") {
		return false, text[5:], nil
	}

	return parseNumber(text)
}

func parseBasicString(text string) (string, string, error) {
	var b strings.Builder
	i := 1
	for i < len(text) {
		c := text[i]
		if c == '\\' && i+1 < len(text) {
			esc := text[i+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(esc)
			}
			i += 2
			continue
		}
		if c == '"' {
			return b.String(), text[i+1:], nil
		}
		b.WriteByte(c)
		i++
	}
	return "", "", errInvalidf("unterminated string: %q", text)
}

func parseLiteralString(text string) (string, string, error) {
	end := strings.IndexByte(text[1:], '\'')
	if end < 0 {
		return "", "", errInvalidf("unterminated literal string: %q", text)
	}
	return text[1 : end+1], text[end+2:], nil
}

func parseNumber(text string) (interface{}, string, error) {
	i := 0
	if i < len(text) && (text[i] == '-' || text[i] == '+') {
		i++
	}
	start := i
	isFloat := false
	for i < len(text) {
		c := text[i]
		if c >= '0' && c <= '9' || c == '_' {
			i++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
			i++
			continue
		}
		break
	}
	if i == start {
		return nil, "", errInvalidf("invalid value near %q", text)
	}
	numText := strings.ReplaceAll(text[:i], "_", "")
	rest := text[i:]

	if isFloat {
		f, err := strconv.ParseFloat(numText, 64)
		if err != nil {
			return nil, "", errInvalidf("invalid float %q: %v", numText, err)
		}
		return f, rest, nil
	}
	n, err := strconv.ParseInt(numText, 10, 64)
	if err != nil {
		return nil, "", errInvalidf("invalid integer %q: %v", numText, err)
	}
	return n, rest, nil
}

func parseArray(text string) (interface{}, string, error) {
	rest := text[1:] // consume '['
	var out []interface{}

	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return nil, "", errInvalidf("unterminated array")
		}
		if rest[0] == ']' {
			return out, rest[1:], nil
		}
		val, tail, err := parseValue(rest)
		if err != nil {
			return nil, "", err
		}
		out = append(out, val)
		rest = strings.TrimSpace(tail)
		if strings.HasPrefix(rest, ",") {
			rest = rest[1:]
			continue
		}
		if strings.HasPrefix(rest, "]") {
			return out, rest[1:], nil
		}
		return nil, "", errInvalidf("expected ',' or ']' in array, got %q", rest)
	}
}

func parseInlineTable(text string) (interface{}, string, error) {
	rest := text[1:] // consume '{'
	tbl := orderedmap.New()

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "}") {
		return tbl, rest[1:], nil
	}

	for {
		rest = strings.TrimSpace(rest)
		eqIdx, err := findTopLevelEquals(rest)
		if err != nil {
			return nil, "", err
		}
		key := unquoteKey(strings.TrimSpace(rest[:eqIdx]))
		val, tail, err := parseValue(strings.TrimSpace(rest[eqIdx+1:]))
		if err != nil {
			return nil, "", err
		}
		tbl.Set(key, val)

		rest = strings.TrimSpace(tail)
		if strings.HasPrefix(rest, ",") {
			rest = rest[1:]
			continue
		}
		if strings.HasPrefix(rest, "}") {
			return tbl, rest[1:], nil
		}
		return nil, "", errInvalidf("expected ',' or '}' in inline table, got %q", rest)
	}
}
