package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrTrailingData is returned by Decode when input continues past the first
// JSON document.
var ErrTrailingData = errors.New("trailing data after JSON document")

// Decode parses a single JSON document into a Value.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, ErrTrailingData
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindSequence, items: items}, nil
		case '{':
			m := Value{kind: KindMapping, index: make(map[string]int)}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return m, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalJSON implements json.Marshaler. Mapping keys are written in document
// order and HTML characters are not escaped.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeValue(&buf, v, ",", ":", false)
	return buf.Bytes(), nil
}

// Text returns the canonical textual flattening used when a non-string value
// takes part in a substring comparison: JSON with ", " and ": " separators,
// non-ASCII characters written literally and numbers in canonical form (see
// CanonicalNumber).
func (v Value) Text() string {
	var buf bytes.Buffer
	writeValue(&buf, v, ", ", ": ", true)
	return buf.String()
}

// CanonicalNumber normalizes a JSON number literal. Literals with a fraction
// or exponent become the shortest round-tripping float, written with a
// decimal point below 1e16 and in exponent form otherwise ("1e5" is
// "100000.0", "1.50" is "1.5", "1e16" is "1e+16"). Integers keep their digits.
func CanonicalNumber(n json.Number) string {
	lit := string(n)
	if lit == "" {
		return "0"
	}
	if !strings.ContainsAny(lit, ".eE") {
		if lit == "-0" {
			return "0"
		}
		return lit
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil && !math.IsInf(f, 0) {
		return lit
	}
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.LastIndexByte(sci, 'e')+1:])
	if err != nil {
		return lit
	}
	if exp < -4 || exp >= 16 {
		return sci
	}
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

func writeValue(buf *bytes.Buffer, v Value, itemSep, keySep string, canonical bool) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		switch {
		case canonical:
			buf.WriteString(CanonicalNumber(v.number))
		case v.number == "":
			buf.WriteString("0")
		default:
			buf.WriteString(string(v.number))
		}
	case KindString:
		writeString(buf, v.text)
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteString(itemSep)
			}
			writeValue(buf, item, itemSep, keySep, canonical)
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteString(itemSep)
			}
			writeString(buf, m.Key)
			buf.WriteString(keySep)
			writeValue(buf, m.Value, itemSep, keySep, canonical)
		}
		buf.WriteByte('}')
	}
}

const hexDigits = "0123456789abcdef"

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				buf.WriteString(`\"`)
			case '\\':
				buf.WriteString(`\\`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			default:
				if c < 0x20 {
					buf.WriteString(`\u00`)
					buf.WriteByte(hexDigits[c>>4])
					buf.WriteByte(hexDigits[c&0xf])
				} else {
					buf.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteString("\ufffd")
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
