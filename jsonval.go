package costar

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Value is a decoded JSON value. Numbers are kept as json.Number so that
// integers survive the round trip to text without picking up decimals.
type Value struct {
	raw any
}

// ParseJSON decodes a JSON payload into a Value tree.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	return Value{raw: raw}, nil
}

// IsNull reports whether the value is JSON null (or absent).
func (v Value) IsNull() bool {
	return v.raw == nil
}

// Object returns the value as a map, or nil when it is not an object.
func (v Value) Object() map[string]any {
	m, _ := v.raw.(map[string]any)
	return m
}

// Array returns the value as a slice, or nil when it is not an array.
func (v Value) Array() []any {
	a, _ := v.raw.([]any)
	return a
}

// Field returns the named member of an object value.
func (v Value) Field(name string) (Value, bool) {
	m, ok := v.raw.(map[string]any)
	if !ok {
		return Value{}, false
	}
	child, ok := m[name]
	if !ok {
		return Value{}, false
	}
	return Value{raw: child}, true
}

// Index returns the i-th element of an array value.
func (v Value) Index(i int) (Value, bool) {
	a, ok := v.raw.([]any)
	if !ok || i < 0 || i >= len(a) {
		return Value{}, false
	}
	return Value{raw: a[i]}, true
}

// IsNumber reports whether the value is a JSON number.
func (v Value) IsNumber() bool {
	_, ok := v.raw.(json.Number)
	return ok
}

// IsString reports whether the value is a JSON string.
func (v Value) IsString() bool {
	_, ok := v.raw.(string)
	return ok
}

// IsArray reports whether the value is a JSON array.
func (v Value) IsArray() bool {
	_, ok := v.raw.([]any)
	return ok
}

// IsObject reports whether the value is a JSON object.
func (v Value) IsObject() bool {
	_, ok := v.raw.(map[string]any)
	return ok
}

// Float returns the numeric value. The second result is false for
// non-numbers and unparseable numbers.
func (v Value) Float() (float64, bool) {
	n, ok := v.raw.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// Bool returns the boolean value.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok
}

// Text renders the value as display text: strings verbatim, booleans as
// true/false, null as empty, numbers with trailing zeros trimmed. Runes
// outside printable ASCII are replaced so the 8-bit glyph fonts always
// have something to draw.
func (v Value) Text() string {
	switch t := v.raw.(type) {
	case nil:
		return ""
	case string:
		return sanitizeASCII(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		return formatNumberText(t)
	default:
		return ""
	}
}

func formatNumberText(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil {
		return n.String()
	}
	return trimFloatText(f)
}

// trimFloatText formats to two decimals then drops trailing zeros, so
// 21.50 renders as "21.5" and 21.00 as "21".
func trimFloatText(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	s := strconv.FormatFloat(f, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s
}

func sanitizeASCII(s string) string {
	clean := true
	for _, r := range s {
		if r > 0x7E || (r < 0x20 && r != '\n' && r != '\t') {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > 0x7E || (r < 0x20 && r != '\n' && r != '\t') {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Resolve walks a dot-separated path through the value tree. Each segment
// is a member name followed by zero or more [idx] suffixes; a segment that
// is only [idx] indexes the current value. Any miss, type mismatch or
// out-of-range index returns false rather than an error.
func (v Value) Resolve(path string) (Value, bool) {
	current := v
	rest := path
	for len(rest) > 0 {
		seg := rest
		if dot := strings.IndexByte(rest, '.'); dot >= 0 {
			seg = rest[:dot]
			rest = rest[dot+1:]
		} else {
			rest = ""
		}
		if seg == "" {
			return Value{}, false
		}

		bracket := strings.IndexByte(seg, '[')
		name := seg
		if bracket >= 0 {
			name = seg[:bracket]
		}

		if name != "" {
			child, ok := current.Field(name)
			if !ok || child.IsNull() {
				return Value{}, false
			}
			current = child
		}

		if bracket >= 0 {
			idxPart := seg[bracket:]
			for len(idxPart) > 0 {
				if idxPart[0] != '[' {
					return Value{}, false
				}
				close := strings.IndexByte(idxPart, ']')
				if close < 0 {
					return Value{}, false
				}
				idxStr := idxPart[1:close]
				if idxStr == "" {
					return Value{}, false
				}
				idx, err := strconv.Atoi(idxStr)
				if err != nil {
					return Value{}, false
				}
				child, ok := current.Index(idx)
				if !ok || child.IsNull() {
					return Value{}, false
				}
				current = child
				idxPart = idxPart[close+1:]
			}
		}
	}
	if current.IsNull() {
		return Value{}, false
	}
	return current, true
}

// FloatSeries extracts the numeric elements of an array value, skipping
// anything non-numeric. Returns nil when the value is not an array.
func (v Value) FloatSeries() []float64 {
	arr := v.Array()
	if arr == nil {
		return nil
	}
	series := make([]float64, 0, len(arr))
	for _, el := range arr {
		if n, ok := el.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				series = append(series, f)
			}
		}
	}
	return series
}

// ExtractLikelyJSON trims a response payload down to the JSON body: strips
// a UTF-8 BOM and slices from the first {/[ to the matching last }/].
// Upstream APIs occasionally wrap JSON in whitespace or stray framing.
func ExtractLikelyJSON(payload []byte) []byte {
	payload = bytes.TrimPrefix(payload, []byte{0xEF, 0xBB, 0xBF})
	start := -1
	var close byte
	for i, c := range payload {
		if c == '{' || c == '[' {
			start = i
			close = '}'
			if c == '[' {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return payload
	}
	end := bytes.LastIndexByte(payload, close)
	if end <= start {
		return payload[start:]
	}
	return payload[start : end+1]
}
