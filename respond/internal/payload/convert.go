package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// FromAny converts a native Go value into a Value.
//
// Types without a JSON-native form degrade to their textual representation
// instead of failing: times become RFC 3339 strings, byte slices are read as
// UTF-8, and anything else is formatted with fmt. Map keys are sorted so the
// result does not depend on Go's map iteration order.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Value:
		if t == nil {
			return Null()
		}
		return *t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case *string:
		if t == nil {
			return Null()
		}
		return String(*t)
	case json.Number:
		return Number(t)
	case int:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case *int32:
		if t == nil {
			return Null()
		}
		return Int(int64(*t))
	case uint:
		return Number(json.Number(strconv.FormatUint(uint64(t), 10)))
	case uint32:
		return Number(json.Number(strconv.FormatUint(uint64(t), 10)))
	case uint64:
		return Number(json.Number(strconv.FormatUint(t, 10)))
	case float32:
		return fromFloat(float64(t))
	case float64:
		return fromFloat(t)
	case time.Time:
		return String(t.Format(time.RFC3339Nano))
	case *time.Time:
		if t == nil {
			return Null()
		}
		return String(t.Format(time.RFC3339Nano))
	case []byte:
		if utf8.Valid(t) {
			return String(string(t))
		}
		return String(string([]rune(string(t))))
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Value{kind: KindSequence, items: items}
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Value{kind: KindSequence, items: items}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, k := range keys {
			members[i] = Field(k, FromAny(t[k]))
		}
		return Mapping(members...)
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, len(keys))
		for i, k := range keys {
			members[i] = Field(k, String(t[k]))
		}
		return Mapping(members...)
	case json.RawMessage:
		if v, err := Decode(t); err == nil {
			return v
		}
		return String(string(t))
	case error:
		return String(t.Error())
	case fmt.Stringer:
		return String(t.String())
	}

	// Last resort: let encoding/json describe the value, else format it.
	if data, err := json.Marshal(x); err == nil {
		if v, err := Decode(data); err == nil {
			return v
		}
	}
	return String(fmt.Sprint(x))
}

func fromFloat(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return String(strconv.FormatFloat(f, 'g', -1, 64))
	}
	lit := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(lit, ".e") {
		lit += ".0"
	}
	return Number(json.Number(lit))
}
