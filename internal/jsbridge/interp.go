package jsbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
	"github.com/joeycumines/turnkeeper/internal/delta"
	"github.com/joeycumines/turnkeeper/internal/history"
	"github.com/joeycumines/turnkeeper/internal/value"
)

// VarsGlobal is the global through which a script edits the working
// variables directly.
const VarsGlobal = "v"

// Interpreter runs scripts that mutate the working variables of a history.
//
// Each Run exposes a fresh copy of the variables as the global v. When the
// script completes, the changes it made to v are applied to the variables;
// if it throws or is given up on they are discarded. Writes made through the
// state module are immediate.
type Interpreter struct {
	rt      *Runtime
	history *history.Manager
	logger  *slog.Logger
}

// NewInterpreter starts a runtime with the state module for h registered.
// Close releases it.
func NewInterpreter(ctx context.Context, h *history.Manager, logger *slog.Logger) (*Interpreter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt, err := NewRuntime(ctx, nil)
	if err != nil {
		return nil, err
	}
	Register(rt.Registry(), h)
	return &Interpreter{rt: rt, history: h, logger: logger}, nil
}

// Runtime returns the underlying runtime.
func (in *Interpreter) Runtime() *Runtime { return in.rt }

// Close stops the runtime.
func (in *Interpreter) Close() error { return in.rt.Close() }

// Run executes code, named name in stack traces, and returns the value of its
// last expression statement.
func (in *Interpreter) Run(ctx context.Context, name, code string) (value.Value, error) {
	prg, err := goja.Compile(name, code, false)
	if err != nil {
		return value.Value{}, fmt.Errorf("failed to compile %s: %w", name, err)
	}

	var result value.Value
	err = in.rt.Do(ctx, func(j *Job, vm *goja.Runtime) error {
		before := in.history.Variables()
		vars, err := FromValue(vm, before)
		if err != nil {
			return err
		}
		if err := vm.Set(VarsGlobal, vars); err != nil {
			return err
		}
		defer func() { _ = vm.GlobalObject().Delete(VarsGlobal) }()

		out, err := vm.RunProgram(prg)
		if err != nil {
			return scriptError(name, err)
		}
		updated, err := ToValue(vm.Get(VarsGlobal))
		if err != nil {
			return fmt.Errorf("%s: variables: %w", name, err)
		}
		if updated.Kind() != value.KindObject {
			return fmt.Errorf("%s: variables: %w: got %s", name, history.ErrNotObject, updated.Kind())
		}
		res, err := ToValue(out)
		if err != nil {
			return fmt.Errorf("%s: result: %w", name, err)
		}
		return j.Commit(func() error {
			// merge with writes made through the state module meanwhile
			if d := delta.Diff(before, updated); d != nil {
				if err := in.history.SetVariables(delta.Patch(in.history.Variables(), d)); err != nil {
					return fmt.Errorf("%s: variables: %w", name, err)
				}
			}
			result = res
			return nil
		})
	})
	if err != nil {
		in.logger.Debug("jsbridge: script failed", "script", name, "error", err)
		return value.Value{}, err
	}
	return result, nil
}

// ScriptError is a JavaScript exception thrown by a script.
type ScriptError struct {
	Script string
	// Value is the thrown value.
	Value value.Value
	// Stack is the script's stack trace.
	Stack string
}

func (e *ScriptError) Error() string {
	if msg, ok := e.Value.Field("message"); ok && msg.Kind() == value.KindString {
		return fmt.Sprintf("%s: %s", e.Script, msg.Text())
	}
	return fmt.Sprintf("%s: uncaught %s", e.Script, e.Value)
}

func scriptError(name string, err error) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		thrown, convErr := ToValue(ex.Value())
		if convErr != nil {
			thrown = value.String(ex.Value().String())
		}
		if obj, ok := ex.Value().(*goja.Object); ok && thrown.Kind() == value.KindObject {
			// Error properties are not enumerable
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				thrown = thrown.With("message", value.String(msg.String()))
			}
		}
		return &ScriptError{Script: name, Value: thrown, Stack: ex.String()}
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("%s: interrupted: %w", name, cause)
		}
		return fmt.Errorf("%s: interrupted: %v", name, interrupted.Value())
	}
	return fmt.Errorf("%s: %w", name, err)
}
