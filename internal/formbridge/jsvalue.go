package formbridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// jsValue is a parsed JSON document that keeps the property order a browser
// would observe after JSON.parse.
type jsValue struct {
	kind   jsKind
	b      bool
	n      float64
	s      string
	items  []jsValue
	keys   []string
	fields map[string]jsValue
}

type jsKind int

const (
	jsUndefined jsKind = iota
	jsNull
	jsBool
	jsNumber
	jsString
	jsArray
	jsObject
)

var undefined = jsValue{kind: jsUndefined}

func parseJSON(data []byte) (jsValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return undefined, io.ErrUnexpectedEOF
		}
		return undefined, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return undefined, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (jsValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return undefined, err
	}
	switch t := tok.(type) {
	case nil:
		return jsValue{kind: jsNull}, nil
	case bool:
		return jsValue{kind: jsBool, b: t}, nil
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return undefined, err
		}
		return jsValue{kind: jsNumber, n: f}, nil
	case string:
		return jsValue{kind: jsString, s: t}, nil
	case json.Delim:
		switch t {
		case '[':
			arr := jsValue{kind: jsArray}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return undefined, err
				}
				arr.items = append(arr.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return undefined, err
			}
			return arr, nil
		case '{':
			obj := jsValue{kind: jsObject, fields: map[string]jsValue{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return undefined, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return undefined, fmt.Errorf("unexpected object key %v", keyTok)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return undefined, err
				}
				obj.set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return undefined, err
			}
			return obj, nil
		}
	}
	return undefined, fmt.Errorf("unexpected token %v", tok)
}

// set keeps the first position of a repeated key and the last value.
func (v *jsValue) set(key string, item jsValue) {
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = item
}

// get returns the named property, or undefined when the value is not an
// object or has no such key.
func (v jsValue) get(key string) jsValue {
	if v.kind != jsObject {
		return undefined
	}
	item, ok := v.fields[key]
	if !ok {
		return undefined
	}
	return item
}

// ownKeys orders array-index keys numerically ahead of the remaining keys,
// which keep insertion order.
func (v jsValue) ownKeys() []string {
	return orderPropertyKeys(v.keys)
}

func orderPropertyKeys(keys []string) []string {
	var indexes, names []string
	for _, k := range keys {
		if isArrayIndex(k) {
			indexes = append(indexes, k)
			continue
		}
		names = append(names, k)
	}
	if len(indexes) == 0 {
		return names
	}
	sort.Slice(indexes, func(i, j int) bool {
		a, _ := strconv.ParseUint(indexes[i], 10, 32)
		b, _ := strconv.ParseUint(indexes[j], 10, 32)
		return a < b
	})
	return append(indexes, names...)
}

func isArrayIndex(key string) bool {
	if key == "" || (len(key) > 1 && key[0] == '0') {
		return false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	return err == nil && n < math.MaxUint32
}

// stringify renders v the way JSON.stringify(v, null, indent) does. The
// boolean is false when the result would be undefined.
func (v jsValue) stringify(indent string) (string, bool) {
	if v.kind == jsUndefined {
		return "", false
	}
	var b strings.Builder
	writeJSValue(&b, v, indent, "")
	return b.String(), true
}

func writeJSValue(b *strings.Builder, v jsValue, indent, prefix string) {
	switch v.kind {
	case jsNull, jsUndefined:
		b.WriteString("null")
	case jsBool:
		b.WriteString(strconv.FormatBool(v.b))
	case jsNumber:
		if math.IsInf(v.n, 0) || math.IsNaN(v.n) {
			b.WriteString("null")
			return
		}
		b.WriteString(formatJSNumber(v.n))
	case jsString:
		writeJSONString(b, v.s)
	case jsArray:
		if len(v.items) == 0 {
			b.WriteString("[]")
			return
		}
		inner := prefix + indent
		b.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				b.WriteByte(',')
			}
			if indent != "" {
				b.WriteByte('\n')
				b.WriteString(inner)
			}
			writeJSValue(b, item, indent, inner)
		}
		if indent != "" {
			b.WriteByte('\n')
			b.WriteString(prefix)
		}
		b.WriteByte(']')
	case jsObject:
		keys := v.ownKeys()
		if len(keys) == 0 {
			b.WriteString("{}")
			return
		}
		inner := prefix + indent
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			if indent != "" {
				b.WriteByte('\n')
				b.WriteString(inner)
			}
			writeJSONString(b, k)
			b.WriteByte(':')
			if indent != "" {
				b.WriteByte(' ')
			}
			writeJSValue(b, v.fields[k], indent, inner)
		}
		if indent != "" {
			b.WriteByte('\n')
			b.WriteString(prefix)
		}
		b.WriteByte('}')
	}
}

func writeJSONString(b *strings.Builder, s string) {
	const hex = "0123456789abcdef"
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hex[r>>4])
				b.WriteByte(hex[r&0xf])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

// formatJSNumber follows Number.prototype.toString for finite values.
func formatJSNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + sign + digits
}

// String converts v the way String(v) does in a browser.
func (v jsValue) String() string {
	switch v.kind {
	case jsUndefined:
		return "undefined"
	case jsNull:
		return "null"
	case jsBool:
		return strconv.FormatBool(v.b)
	case jsNumber:
		switch {
		case math.IsNaN(v.n):
			return "NaN"
		case math.IsInf(v.n, 1):
			return "Infinity"
		case math.IsInf(v.n, -1):
			return "-Infinity"
		}
		return formatJSNumber(v.n)
	case jsString:
		return v.s
	case jsArray:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			if item.kind == jsNull || item.kind == jsUndefined {
				continue
			}
			parts[i] = item.String()
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

// textValue is what an element shows after its text is assigned v. Null
// clears the element.
func (v jsValue) textValue() string {
	if v.kind == jsNull {
		return ""
	}
	return v.String()
}
