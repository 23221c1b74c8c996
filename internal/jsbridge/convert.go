package jsbridge

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// ErrCycle is returned when a script value refers to itself.
var ErrCycle = errors.New("cyclic value")

// ToValue converts a script value. Functions and symbols become opaque text;
// a Date that holds no time becomes null.
func ToValue(v goja.Value) (value.Value, error) {
	return toValue(v, nil)
}

func toValue(v goja.Value, stack []*goja.Object) (value.Value, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return value.Null(), nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		switch x := v.Export().(type) {
		case bool:
			return value.Bool(x), nil
		case int64:
			return value.Int(x), nil
		case float64:
			return value.Number(x), nil
		case string:
			return value.String(x), nil
		default:
			return value.Opaque(v.String()), nil
		}
	}

	for _, seen := range stack {
		if seen == obj {
			return value.Value{}, ErrCycle
		}
	}
	stack = append(stack, obj)

	if _, ok := goja.AssertFunction(obj); ok {
		return value.Opaque(obj.String()), nil
	}
	switch obj.ClassName() {
	case "Date":
		if t, ok := obj.Export().(time.Time); ok {
			return value.Time(t), nil
		}
		return value.Null(), nil
	case "RegExp":
		return value.Regex(obj.Get("source").String(), obj.Get("flags").String()), nil
	case "Array":
		n := obj.Get("length").ToInteger()
		elems := make([]value.Value, n)
		for i := range elems {
			e, err := toValue(obj.Get(strconv.Itoa(i)), stack)
			if err != nil {
				return value.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = e
		}
		return value.Array(elems...), nil
	}

	keys := obj.Keys()
	fields := make(map[string]value.Value, len(keys))
	for _, k := range keys {
		f, err := toValue(obj.Get(k), stack)
		if err != nil {
			return value.Value{}, fmt.Errorf(".%s: %w", k, err)
		}
		fields[k] = f
	}
	return value.Object(fields), nil
}

// FromValue converts v into a fresh script value owned by vm. Opaque values
// become strings.
func FromValue(vm *goja.Runtime, v value.Value) (goja.Value, error) {
	switch v.Kind() {
	case value.KindNull:
		return goja.Null(), nil
	case value.KindBool:
		return vm.ToValue(v.Bool()), nil
	case value.KindNumber:
		return vm.ToValue(v.Number()), nil
	case value.KindString, value.KindOpaque:
		return vm.ToValue(v.Text()), nil
	case value.KindDate:
		return vm.New(vm.Get("Date"), vm.ToValue(v.Millis()))
	case value.KindRegex:
		return vm.New(vm.Get("RegExp"), vm.ToValue(v.Text()), vm.ToValue(v.Flags()))
	case value.KindArray:
		elems := v.Elements()
		items := make([]any, len(elems))
		for i, e := range elems {
			item, err := FromValue(vm, e)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return vm.NewArray(items...), nil
	case value.KindObject:
		obj := vm.NewObject()
		for _, k := range v.Keys() {
			f, _ := v.Field(k)
			fv, err := FromValue(vm, f)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, fv); err != nil {
				return nil, err
			}
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %s", v.Kind())
	}
}
