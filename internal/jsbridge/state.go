package jsbridge

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/turnkeeper/internal/history"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// StateModule is the name scripts require the history under.
const StateModule = ModulePrefix + "state"

// Register adds the native modules backed by h to registry.
func Register(registry *require.Registry, h *history.Manager) {
	registry.RegisterNativeModule(StateModule, RequireState(h))
}

// RequireState returns the loader of the state module:
//
//	const state = require("turnkeeper:state");
//	state.set("gold", state.get("gold") + 5);
//	if (state.visited("Vault")) { ... }
//
// Reads return copies; writes change the working variables of the active
// moment.
func RequireState(h *history.Manager) require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)

		toJS := func(name string, v value.Value) goja.Value {
			gv, err := FromValue(runtime, v)
			if err != nil {
				panic(runtime.NewGoError(fmt.Errorf("%s: %w", name, err)))
			}
			return gv
		}

		_ = exports.Set("get", func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			v, ok := h.Variable(name)
			if !ok {
				return goja.Undefined()
			}
			return toJS("get", v)
		})
		_ = exports.Set("has", func(name string) bool {
			_, ok := h.Variable(name)
			return ok
		})
		_ = exports.Set("set", func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) < 2 {
				panic(runtime.NewTypeError("set: expected a name and a value"))
			}
			v, err := ToValue(call.Argument(1))
			if err != nil {
				panic(runtime.NewGoError(fmt.Errorf("set: %w", err)))
			}
			h.SetVariable(call.Argument(0).String(), v)
			return goja.Undefined()
		})
		_ = exports.Set("delete", func(name string) {
			h.DeleteVariable(name)
		})
		_ = exports.Set("vars", func() goja.Value {
			return toJS("vars", h.Variables())
		})
		_ = exports.Set("title", func() string { return h.Title() })
		_ = exports.Set("turns", func() int { return h.Turns() })
		_ = exports.Set("index", func() int { return h.Index() })
		_ = exports.Set("passages", func() []string { return h.Passages() })
		_ = exports.Set("expired", func() []string { return h.Expired() })
		_ = exports.Set("visited", func(title string) bool { return h.HasPlayed(title) })
		_ = exports.Set("random", func() float64 { return h.Random() })
		_ = exports.Set("randomInt", func(call goja.FunctionCall) goja.Value {
			n := call.Argument(0).ToInteger()
			if n <= 0 {
				panic(runtime.NewTypeError("randomInt: bound must be positive"))
			}
			return runtime.ToValue(int64(h.Random() * float64(n)))
		})
	}
}
