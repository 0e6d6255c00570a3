// Package jsruntime executes JavaScript handler units on embedded goja VMs.
//
// Source units are compiled once into immutable programs; each concurrent
// invocation runs on a pooled VM instance built from those programs. A unit
// must define a global function
//
//	function handler(event) { ... }
//
// and may require manifest-declared dependency modules by name. Modules are
// CommonJS-shaped: they receive (require, module, exports) and export via
// exports or module.exports.
package jsruntime

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
)

const Name = "js"

const entryPoint = "handler"

type Runtime struct {
	*Options
}

func New(opts ...Option) *Runtime {
	return &Runtime{Options: NewOptions(opts...)}
}

func (r *Runtime) Name() string { return Name }

func (r *Runtime) NeedsSource() bool { return true }

// CompileModule compiles a dependency unit. The compiled program carries no
// mutable state and is shared across all VMs that load it.
func (r *Runtime) CompileModule(name string, src []byte) (runtime.Module, error) {
	if len(src) == 0 {
		return nil, fault.New(fault.KindDependencyResolution,
			"module %q has no resolvable source", name)
	}
	prog, err := goja.Compile(name, wrapModule(src), false)
	if err != nil {
		return nil, fault.Wrap(fault.KindDependencyResolution,
			fmt.Errorf("module %q: %w", name, err))
	}
	return &module{name: name, prog: prog}, nil
}

// LoadHandler compiles the function's source unit, builds one VM to run its
// top-level code, and validates the entry point contract. The returned
// artifact is warm: it retains the validated VM and builds more on demand.
func (r *Runtime) LoadHandler(m *manifest.Manifest, src []byte, deps []runtime.NamedModule) (runtime.Handler, error) {
	if len(src) == 0 {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: empty source unit", m.Name)
	}

	prog, err := goja.Compile(m.Source, string(src), false)
	if err != nil {
		return nil, fault.Wrap(fault.KindContractViolation,
			fmt.Errorf("function %q: %w", m.Name, err))
	}

	mods := make(map[string]*module, len(deps))
	for _, d := range deps {
		jm, ok := d.Module.(*module)
		if !ok {
			return nil, fault.New(fault.KindDependencyResolution,
				"function %q: module %q was not loaded by the js runtime", m.Name, d.Name)
		}
		mods[d.Name] = jm
	}

	h := &handler{
		fn:     m.Name,
		prog:   prog,
		mods:   mods,
		logger: r.Logger,
	}
	h.pool = newVMPool(r.PoolSize, h.newVM)

	vm, err := h.newVM()
	if err != nil {
		return nil, err
	}
	h.pool.put(vm)

	r.Logger.Debug().Str("function", m.Name).Int("modules", len(mods)).
		Msg("handler unit loaded")
	return h, nil
}

// newVM builds a fresh VM: installs require, runs the unit's top-level code,
// and checks the entry point exists, is callable, and takes one argument.
func (h *handler) newVM() (*vmInstance, error) {
	vm := goja.New()
	ms := newModuleSystem(vm, h.mods)
	if err := vm.Set("require", ms.require); err != nil {
		return nil, fault.Wrap(fault.KindContractViolation, err)
	}

	if _, err := vm.RunProgram(h.prog); err != nil {
		if ms.depErr != nil {
			return nil, ms.depErr
		}
		return nil, fault.Wrap(fault.KindContractViolation,
			fmt.Errorf("function %q: load-time error: %w", h.fn, err))
	}

	v := vm.Get(entryPoint)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: source unit does not define %q", h.fn, entryPoint)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: %q is not callable", h.fn, entryPoint)
	}
	if arity := v.ToObject(vm).Get("length").ToInteger(); arity != 1 {
		return nil, fault.New(fault.KindContractViolation,
			"function %q: %q must accept exactly 1 argument, declares %d", h.fn, entryPoint, arity)
	}

	return &vmInstance{vm: vm, call: fn}, nil
}
