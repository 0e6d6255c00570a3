package jsruntime

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/fnhost/fnhost/fault"
)

// module is a compiled dependency unit; the program is immutable and shared,
// instantiation happens once per VM on first require.
type module struct {
	name string
	prog *goja.Program
}

// wrapModule embeds the unit's source in a CommonJS-style wrapper so that
// compiling it yields a function value instead of polluting globals.
func wrapModule(src []byte) string {
	return "(function(require, module, exports) {\n" + string(src) + "\n})"
}

// moduleSystem implements require() for one VM over the preloaded module set.
type moduleSystem struct {
	vm      *goja.Runtime
	mods    map[string]*module
	exports map[string]goja.Value
	loading map[string]bool

	// depErr records the first module failure so the loader can classify a
	// failed top-level run as a dependency fault rather than a handler one.
	// Only consulted when the run itself reports an error; a handler that
	// catches and swallows a require error keeps loading.
	depErr *fault.Error
}

func newModuleSystem(vm *goja.Runtime, deps map[string]*module) *moduleSystem {
	return &moduleSystem{
		vm:      vm,
		mods:    deps,
		exports: make(map[string]goja.Value),
		loading: make(map[string]bool),
	}
}

func (ms *moduleSystem) fail(err *fault.Error) {
	if ms.depErr == nil {
		ms.depErr = err
	}
	panic(ms.vm.NewGoError(err))
}

func (ms *moduleSystem) require(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()

	if v, ok := ms.exports[name]; ok {
		return v
	}

	m, ok := ms.mods[name]
	if !ok {
		ms.fail(fault.New(fault.KindDependencyResolution,
			"module %q is not declared in the function manifest", name))
	}
	if ms.loading[name] {
		ms.fail(fault.New(fault.KindDependencyResolution,
			"circular require of module %q", name))
	}

	ms.loading[name] = true
	defer delete(ms.loading, name)

	wrapperVal, err := ms.vm.RunProgram(m.prog)
	if err != nil {
		ms.fail(fault.Wrap(fault.KindDependencyResolution,
			fmt.Errorf("module %q: %w", name, err)))
	}
	wrapper, ok := goja.AssertFunction(wrapperVal)
	if !ok {
		ms.fail(fault.New(fault.KindDependencyResolution,
			"module %q did not compile to a callable unit", name))
	}

	moduleObj := ms.vm.NewObject()
	exportsObj := ms.vm.NewObject()
	_ = moduleObj.Set("exports", exportsObj)

	_, err = wrapper(goja.Undefined(), ms.vm.ToValue(ms.require), moduleObj, exportsObj)
	if err != nil {
		ms.fail(fault.Wrap(fault.KindDependencyResolution,
			fmt.Errorf("module %q failed to load: %w", name, err)))
	}

	// module.exports may have been reassigned by the unit.
	final := moduleObj.Get("exports")
	ms.exports[name] = final
	return final
}
