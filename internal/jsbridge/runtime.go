// Package jsbridge runs author scripts against the history's working
// variables. Scripts are JavaScript executed by goja on a single event loop
// goroutine; values cross the boundary as value.Value.
package jsbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

// ModulePrefix prefixes the names of the native modules scripts can require.
const ModulePrefix = "turnkeeper:"

// DefaultTimeout bounds a single RunSync call.
const DefaultTimeout = 5 * time.Second

// ErrNotRunning is returned once the runtime has been closed.
var ErrNotRunning = errors.New("script runtime not running")

// Runtime owns a goja runtime and the event loop that serializes every
// access to it. goja.Runtime is not goroutine-safe: all access goes through
// RunSync.
type Runtime struct {
	loop     *eventloop.EventLoop
	registry *require.Registry

	mu      sync.RWMutex
	timeout time.Duration
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuntime starts a runtime whose scripts can require the modules in
// registry. A nil registry selects an empty one. The runtime closes itself
// when ctx is done.
func NewRuntime(ctx context.Context, registry *require.Registry) (*Runtime, error) {
	if registry == nil {
		registry = require.NewRegistry()
	}
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(false),
	)
	lifecycle, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		loop:     loop,
		registry: registry,
		timeout:  DefaultTimeout,
		ctx:      lifecycle,
		cancel:   cancel,
	}
	loop.Start()

	// the loop is usable once it has run one job
	ready := make(chan struct{})
	if !loop.RunOnLoop(func(*goja.Runtime) { close(ready) }) {
		cancel()
		return nil, errors.New("failed to initialize: event loop not running")
	}
	<-ready

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() { _ = rt.Close() })
	}
	return rt, nil
}

// Registry returns the require registry scripts resolve modules from.
func (rt *Runtime) Registry() *require.Registry { return rt.registry }

// SetTimeout changes the RunSync timeout. Zero disables it.
func (rt *Runtime) SetTimeout(d time.Duration) {
	rt.mu.Lock()
	rt.timeout = d
	rt.mu.Unlock()
}

// Close stops the event loop. It is safe to call more than once.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	rt.mu.Unlock()

	rt.cancel()
	rt.loop.Stop()
	return nil
}

// Done is closed once the runtime stops.
func (rt *Runtime) Done() <-chan struct{} { return rt.ctx.Done() }

// RunSync runs fn on the event loop and waits for it. A job still running
// when the timeout expires is interrupted.
func (rt *Runtime) RunSync(fn func(vm *goja.Runtime) error) error {
	return rt.Do(context.Background(), func(_ *Job, vm *goja.Runtime) error { return fn(vm) })
}

// Job is one call to Do, as seen by the function it runs.
type Job struct {
	mu        sync.Mutex
	vm        *goja.Runtime
	abandoned bool
	committed bool
	cause     error
}

// Commit runs f unless the caller has already given up on the job, in
// which case it returns why. Once f has run the caller waits for the job's
// own result, so effects applied in f are never reported as timed out.
func (j *Job) Commit(f func() error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.abandoned {
		return j.cause
	}
	j.committed = true
	return f()
}

// abandon marks the job given up with cause and interrupts it if running.
// It reports false if the job has committed.
func (j *Job) abandon(cause error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.committed {
		return false
	}
	j.abandoned = true
	j.cause = cause
	if j.vm != nil {
		j.vm.Interrupt(cause)
	}
	return true
}

// Do runs fn on the event loop and waits for it, or until ctx is done or
// the timeout expires. A job abandoned before it starts never runs, and one
// abandoned while running is interrupted.
func (rt *Runtime) Do(ctx context.Context, fn func(j *Job, vm *goja.Runtime) error) error {
	rt.mu.RLock()
	if rt.stopped {
		rt.mu.RUnlock()
		return ErrNotRunning
	}
	timeout := rt.timeout
	rt.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("script interrupted: %w", err)
	}

	j := new(Job)
	errCh := make(chan error, 1)
	ok := rt.loop.RunOnLoop(func(vm *goja.Runtime) {
		j.mu.Lock()
		if j.abandoned {
			j.mu.Unlock()
			errCh <- j.cause
			return
		}
		vm.ClearInterrupt()
		j.vm = vm
		j.mu.Unlock()

		err := fn(j, vm)

		j.mu.Lock()
		j.vm = nil
		j.mu.Unlock()
		errCh <- err
	})
	if !ok {
		return ErrNotRunning
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	cancelled := ctx.Done()
	for {
		select {
		case err := <-errCh:
			return err
		case <-rt.Done():
			return errors.New("runtime stopped before completion")
		case <-timer:
			err := fmt.Errorf("script timed out after %v", timeout)
			if j.abandon(err) {
				return err
			}
			timer = nil
		case <-cancelled:
			err := fmt.Errorf("script interrupted: %w", ctx.Err())
			if j.abandon(err) {
				return err
			}
			cancelled = nil
		}
	}
}
