package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Tags of the revival arrays used to carry non-JSON kinds through JSON.
const (
	revivePrefix = "(revive:"
	tagDate      = "(revive:date)"
	tagRegex     = "(revive:regexp)"
	tagOpaque    = "(revive:opaque)"
	tagNumber    = "(revive:number)"
	tagArray     = "(revive:array)"
)

// MarshalJSON implements json.Marshaler. Every Value round-trips through
// MarshalJSON and UnmarshalJSON without loss; its text is always valid
// UTF-8, which JSON can carry unchanged.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.jsonTree())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := fromJSONTree(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (v Value) jsonTree() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		switch {
		case math.IsNaN(v.n):
			return []any{tagNumber, "NaN"}
		case math.IsInf(v.n, 1):
			return []any{tagNumber, "Infinity"}
		case math.IsInf(v.n, -1):
			return []any{tagNumber, "-Infinity"}
		}
		return v.n
	case KindString:
		return v.s
	case KindDate:
		return []any{tagDate, v.ms}
	case KindRegex:
		return []any{tagRegex, v.s, v.flags}
	case KindOpaque:
		return []any{tagOpaque, v.s}
	case KindArray:
		out := make([]any, 0, len(v.arr)+1)
		if len(v.arr) > 0 && v.arr[0].kind == KindString && strings.HasPrefix(v.arr[0].s, revivePrefix) {
			out = append(out, tagArray)
		}
		for _, e := range v.arr {
			out = append(out, e.jsonTree())
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, f := range v.obj {
			out[k] = f.jsonTree()
		}
		return out
	default:
		return nil
	}
}

func fromJSONTree(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case float64:
		return Number(t), nil
	case string:
		return String(t), nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, f := range t {
			fv, err := fromJSONTree(f)
			if err != nil {
				return Value{}, err
			}
			obj[k] = fv
		}
		return Value{kind: KindObject, obj: obj}, nil
	case []any:
		return fromJSONArray(t)
	default:
		return Value{}, fmt.Errorf("unsupported JSON node %T", raw)
	}
}

func fromJSONArray(t []any) (Value, error) {
	if len(t) > 0 {
		if tag, ok := t[0].(string); ok && strings.HasPrefix(tag, revivePrefix) {
			return reviveTagged(tag, t)
		}
	}
	return decodeElements(t)
}

func decodeElements(t []any) (Value, error) {
	arr := make([]Value, len(t))
	for i, e := range t {
		ev, err := fromJSONTree(e)
		if err != nil {
			return Value{}, err
		}
		arr[i] = ev
	}
	return Value{kind: KindArray, arr: arr}, nil
}

func reviveTagged(tag string, t []any) (Value, error) {
	switch tag {
	case tagArray:
		return decodeElements(t[1:])
	case tagDate:
		if len(t) == 2 {
			if n, ok := t[1].(json.Number); ok {
				ms, err := n.Int64()
				if err != nil {
					f, ferr := n.Float64()
					if ferr != nil {
						return Value{}, fmt.Errorf("invalid date millis %q", n.String())
					}
					ms = int64(f)
				}
				return Date(ms), nil
			}
			if f, ok := t[1].(float64); ok {
				return Date(int64(f)), nil
			}
		}
	case tagRegex:
		if len(t) == 3 {
			src, ok1 := t[1].(string)
			flags, ok2 := t[2].(string)
			if ok1 && ok2 {
				return Regex(src, flags), nil
			}
		}
	case tagOpaque:
		if len(t) == 2 {
			if s, ok := t[1].(string); ok {
				return Opaque(s), nil
			}
		}
	case tagNumber:
		if len(t) == 2 {
			switch t[1] {
			case "NaN":
				return Number(math.NaN()), nil
			case "Infinity":
				return Number(math.Inf(1)), nil
			case "-Infinity":
				return Number(math.Inf(-1)), nil
			}
		}
	default:
		// an unknown tag is just a string that happens to look like one
		return decodeElements(t)
	}
	return Value{}, fmt.Errorf("malformed %s value", tag)
}
