// Package nativert executes handlers implemented as in-process Go functions.
// It backs the host's own builtins and gives tests a runtime with no
// compilation step. Units and modules are registered by name; the manifest's
// source field names the registered unit instead of a file.
//
// A registered unit is either a handler function or a factory:
//
//	func(event any) any
//	func(event any) (any, error)
//	func(ctx context.Context, event any) (any, error)
//	func(deps map[string]any) (any, error)   // factory, runs at load time
//
// A factory receives the function's loaded dependency modules keyed by name
// and returns one of the handler forms above.
package nativert

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
)

const Name = "native"

type Runtime struct {
	mu      sync.RWMutex
	units   map[string]any
	modules map[string]any
}

func New() *Runtime {
	return &Runtime{
		units:   make(map[string]any),
		modules: make(map[string]any),
	}
}

// RegisterUnit registers a handler unit under the name manifests refer to.
func (r *Runtime) RegisterUnit(name string, unit any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[name] = unit
}

// RegisterModule registers a dependency module value. Modules are shared
// read-only; callers must not mutate them after registration.
func (r *Runtime) RegisterModule(name string, mod any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = mod
}

func (r *Runtime) Name() string { return Name }

func (r *Runtime) NeedsSource() bool { return false }

func (r *Runtime) CompileModule(name string, _ []byte) (runtime.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[name]
	if !ok {
		return nil, fault.New(fault.KindDependencyResolution,
			"module %q is not registered with the native runtime", name)
	}
	return mod, nil
}

func (r *Runtime) LoadHandler(m *manifest.Manifest, _ []byte, deps []runtime.NamedModule) (runtime.Handler, error) {
	r.mu.RLock()
	unit, ok := r.units[m.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: unit %q is not registered with the native runtime", m.Name, m.Source)
	}

	if factory, ok := unit.(func(map[string]any) (any, error)); ok {
		depMap := make(map[string]any, len(deps))
		for _, d := range deps {
			depMap[d.Name] = d.Module
		}
		built, err := factory(depMap)
		if err != nil {
			return nil, fault.Wrap(fault.KindContractViolation,
				fmt.Errorf("function %q: load-time error: %w", m.Name, err))
		}
		unit = built
	}

	h, err := newHandler(m.Name, unit)
	if err != nil {
		return nil, err
	}
	return h, nil
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType   = reflect.TypeOf((*error)(nil)).Elem()
	eventType = reflect.TypeOf((*any)(nil)).Elem()
)

type handler struct {
	fn       string
	call     reflect.Value
	wantsCtx bool
	hasErr   bool
}

// newHandler inspects the unit and validates the entry-point contract: a
// callable taking exactly one event argument (an optional leading context is
// host plumbing, not a positional input).
func newHandler(fn string, unit any) (*handler, error) {
	v := reflect.ValueOf(unit)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: registered unit is %T, not a callable", fn, unit)
	}

	t := v.Type()
	if t.IsVariadic() {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: entry point must not be variadic", fn)
	}

	wantsCtx := t.NumIn() > 0 && t.In(0) == ctxType
	eventArgs := t.NumIn()
	if wantsCtx {
		eventArgs--
	}
	if eventArgs != 1 {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: entry point must accept exactly 1 argument, declares %d", fn, eventArgs)
	}
	if t.In(t.NumIn()-1) != eventType {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: event argument must be untyped (interface{})", fn)
	}

	switch t.NumOut() {
	case 1:
		if t.Out(0) == errType {
			return nil, fault.New(fault.KindContractViolation,
				"function %q: entry point must return a value", fn)
		}
	case 2:
		if t.Out(1) != errType {
			return nil, fault.New(fault.KindContractViolation,
				"function %q: second return must be error", fn)
		}
	default:
		return nil, fault.New(fault.KindContractViolation,
			"function %q: entry point must return (value) or (value, error)", fn)
	}

	return &handler{
		fn:       fn,
		call:     v,
		wantsCtx: wantsCtx,
		hasErr:   t.NumOut() == 2,
	}, nil
}

func (h *handler) Invoke(ctx context.Context, event any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault.New(fault.KindHandlerExecution,
				"function %q: panic: %v", h.fn, r)
		}
	}()

	args := make([]reflect.Value, 0, 2)
	if h.wantsCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	ev := reflect.New(eventType).Elem()
	if event != nil {
		ev.Set(reflect.ValueOf(event))
	}
	args = append(args, ev)

	rets := h.call.Call(args)
	if h.hasErr {
		if e, _ := rets[1].Interface().(error); e != nil {
			return nil, fault.Wrap(fault.KindHandlerExecution,
				fmt.Errorf("function %q: %w", h.fn, e))
		}
	}
	return rets[0].Interface(), nil
}
