package value

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"
)

// FromAny converts a native Go value into a Value. Supported inputs are nil,
// bool, the integer and float types, string, time.Time, *regexp.Regexp,
// json.Number, Value itself, and slices and string-keyed maps of those.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case int32:
		return Int(int64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case time.Time:
		return Time(t), nil
	case *regexp.Regexp:
		return Regex(t.String(), ""), nil
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = ev
		}
		return Value{kind: KindArray, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, f := range t {
			fv, err := FromAny(f)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			obj[validText(k)] = fv
		}
		return Value{kind: KindObject, obj: obj}, nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		arr := make([]Value, rv.Len())
		for i := range arr {
			ev, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = ev
		}
		return Value{kind: KindArray, arr: arr}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		obj := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fv, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", iter.Key().String(), err)
			}
			obj[validText(iter.Key().String())] = fv
		}
		return Value{kind: KindObject, obj: obj}, nil
	case reflect.Int8, reflect.Int16:
		return Int(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16:
		return Int(int64(rv.Uint())), nil
	case reflect.Func:
		return Opaque(fmt.Sprintf("%T", x)), nil
	}
	return Value{}, fmt.Errorf("unsupported type %T", x)
}

// ToAny converts v into plain Go values: nil, bool, float64, string,
// time.Time (dates), RegexValue, []any and map[string]any. Opaque values
// become their text.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString, KindOpaque:
		return v.s
	case KindDate:
		return v.Time()
	case KindRegex:
		return RegexValue{Source: v.s, Flags: v.flags}
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			out[k] = f.ToAny()
		}
		return out
	default:
		return nil
	}
}

// RegexValue is the native form of a regex Value.
type RegexValue struct {
	Source string
	Flags  string
}

func (r RegexValue) String() string { return "/" + r.Source + "/" + r.Flags }

// Parse interprets text typed by a user: JSON literals (including the
// revival forms) become their values, anything else becomes a string.
func Parse(text string) Value {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return String(text)
	}
	var v Value
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	return String(text)
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
