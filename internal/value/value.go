// Package value implements the variable-state data model recorded by the
// history: a closed set of JSON-like kinds extended with dates, regular
// expressions and opaque blobs.
//
// A Value is immutable once constructed. Constructors copy the slices and maps
// they are given, and accessors hand out copies, so two holders of the same
// Value can never observe each other's changes.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind identifies which member of the union a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindDate
	KindRegex
	KindArray
	KindObject
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindRegex:
		return "regex"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// IsContainer reports whether values of this kind hold keyed children.
func (k Kind) IsContainer() bool {
	return k == KindArray || k == KindObject
}

// Value is one node of a variable snapshot. The zero Value is null.
type Value struct {
	kind  Kind
	b     bool
	n     float64 // number
	ms    int64   // date, epoch milliseconds
	s     string  // string, regex source, opaque text
	flags string  // regex flags
	arr   []Value
	obj   map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a numeric value from an integer.
func Int(i int64) Value { return Value{kind: KindNumber, n: float64(i)} }

// String returns a string value. Like all text held by a Value, s is made
// valid UTF-8, each invalid byte sequence becoming U+FFFD.
func String(s string) Value { return Value{kind: KindString, s: validText(s)} }

func validText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}

// Date returns a date value from epoch milliseconds.
func Date(ms int64) Value { return Value{kind: KindDate, ms: ms} }

// Time returns a date value from a time.Time, truncated to milliseconds.
func Time(t time.Time) Value { return Date(t.UnixMilli()) }

// Regex returns a regular expression value from its source and flags.
func Regex(source, flags string) Value {
	return Value{kind: KindRegex, s: validText(source), flags: validText(flags)}
}

// Opaque wraps a value the history cannot look inside (a function body, a
// host handle rendered to text). Opaque values compare by text and are always
// copied whole.
func Opaque(text string) Value { return Value{kind: KindOpaque, s: validText(text)} }

// Array returns an array value holding a copy of elems.
func Array(elems ...Value) Value {
	arr := make([]Value, len(elems))
	copy(arr, elems)
	return Value{kind: KindArray, arr: arr}
}

// Object returns an object value holding a copy of fields.
func Object(fields map[string]Value) Value {
	obj := make(map[string]Value, len(fields))
	for k, v := range fields {
		obj[validText(k)] = v
	}
	return Value{kind: KindObject, obj: obj}
}

// EmptyObject returns an object with no fields.
func EmptyObject() Value { return Value{kind: KindObject, obj: map[string]Value{}} }

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean held by v, or false.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Number returns the number held by v, or 0.
func (v Value) Number() float64 {
	if v.kind != KindNumber {
		return 0
	}
	return v.n
}

// Text returns the string held by a string, regex (source) or opaque value.
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindRegex, KindOpaque:
		return v.s
	default:
		return ""
	}
}

// Flags returns the flags of a regex value.
func (v Value) Flags() string {
	if v.kind != KindRegex {
		return ""
	}
	return v.flags
}

// Millis returns the epoch milliseconds of a date value.
func (v Value) Millis() int64 {
	if v.kind != KindDate {
		return 0
	}
	return v.ms
}

// Time returns the instant of a date value.
func (v Value) Time() time.Time {
	return time.UnixMilli(v.Millis()).UTC()
}

// Len returns the number of elements of an array, or fields of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Index returns element i of an array value.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Elements returns a copy of the elements of an array value.
func (v Value) Elements() []Value {
	if v.kind != KindArray {
		return nil
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out
}

// Field returns the named field of an object value.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Fields returns a copy of the fields of an object value.
func (v Value) Fields() map[string]Value {
	if v.kind != KindObject {
		return nil
	}
	out := make(map[string]Value, len(v.obj))
	for k, f := range v.obj {
		out[k] = f
	}
	return out
}

// Keys returns the sorted field names of an object.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of the object v with key set to f. A non-object v is
// treated as an empty object.
func (v Value) With(key string, f Value) Value {
	fields := v.Fields()
	if fields == nil {
		fields = make(map[string]Value, 1)
	}
	fields[validText(key)] = f
	return Value{kind: KindObject, obj: fields}
}

// Without returns a copy of the object v with key removed.
func (v Value) Without(key string) Value {
	if v.kind != KindObject {
		return v
	}
	fields := v.Fields()
	delete(fields, key)
	return Value{kind: KindObject, obj: fields}
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		arr := make([]Value, len(v.arr))
		for i, e := range v.arr {
			arr[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: arr}
	case KindObject:
		obj := make(map[string]Value, len(v.obj))
		for k, f := range v.obj {
			obj[k] = f.Clone()
		}
		return Value{kind: KindObject, obj: obj}
	default:
		return v
	}
}

// Equal reports whether a and b are structurally equal. Object field order
// is not significant, array order is. NaN equals NaN.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n || (math.IsNaN(a.n) && math.IsNaN(b.n))
	case KindString, KindOpaque:
		return a.s == b.s
	case KindDate:
		return a.ms == b.ms
	case KindRegex:
		return a.s == b.s && a.flags == b.flags
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, af := range a.obj {
			bf, ok := b.obj[k]
			if !ok || !Equal(af, bf) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SameShape reports whether a and b are containers of the same kind, i.e.
// whether they can be compared key by key.
func SameShape(a, b Value) bool {
	return a.kind == b.kind && a.kind.IsContainer()
}

// String renders v for diagnostics. It is not a serialization format.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		b.WriteString(strconv.FormatFloat(v.n, 'g', -1, 64))
	case KindString:
		b.WriteString(strconv.Quote(v.s))
	case KindDate:
		b.WriteString("Date(")
		b.WriteString(v.Time().Format(time.RFC3339Nano))
		b.WriteString(")")
	case KindRegex:
		fmt.Fprintf(b, "/%s/%s", v.s, v.flags)
	case KindOpaque:
		fmt.Fprintf(b, "Opaque(%q)", v.s)
	case KindArray:
		b.WriteString("[")
		for i, e := range v.arr {
			if i > 0 {
				b.WriteString(", ")
			}
			e.format(b)
		}
		b.WriteString("]")
	case KindObject:
		b.WriteString("{")
		for i, k := range v.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			v.obj[k].format(b)
		}
		b.WriteString("}")
	}
}
