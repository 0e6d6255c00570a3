package jsruntime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/runtime"
)

// handler is the warm execution artifact for one function: its compiled
// program, its module set, and a pool of initialized VM instances. The
// programs are immutable; each invocation claims a VM exclusively.
type handler struct {
	fn     string
	prog   *goja.Program
	mods   map[string]*module
	pool   *vmPool
	logger zerolog.Logger
}

var _ runtime.Handler = (*handler)(nil)

type vmInstance struct {
	vm   *goja.Runtime
	call goja.Callable
}

// Invoke runs one call of the entry point with event as its sole argument.
// A ctx cancellation interrupts the running program; the interrupted VM is
// discarded so warm state is never poisoned by an abort.
func (h *handler) Invoke(ctx context.Context, event any) (any, error) {
	vm, err := h.pool.get()
	if err != nil {
		// Warm refill failed; the unit's top-level code is nondeterministic.
		return nil, fault.Wrap(fault.KindHandlerExecution, err)
	}

	stop := context.AfterFunc(ctx, func() {
		vm.vm.Interrupt(ctx.Err())
	})

	res, err := vm.call(goja.Undefined(), vm.vm.ToValue(event))

	// A false stop means the interrupt fired, possibly after the call
	// already returned. Such a VM may carry the stale interrupt into its
	// next call, so it never goes back to the pool.
	reusable := stop()
	if !reusable {
		vm.vm.ClearInterrupt()
	}

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("jsruntime: function %q interrupted: %w", h.fn, ctx.Err())
			}
			return nil, fmt.Errorf("jsruntime: function %q interrupted", h.fn)
		}

		// A thrown exception leaves the VM consistent; reuse it.
		if reusable {
			h.pool.put(vm)
		}

		var ex *goja.Exception
		if errors.As(err, &ex) {
			return nil, fault.Wrap(fault.KindHandlerExecution,
				fmt.Errorf("function %q: uncaught exception: %s", h.fn, ex.Value().String()))
		}
		return nil, fault.Wrap(fault.KindHandlerExecution,
			fmt.Errorf("function %q: %w", h.fn, err))
	}

	out := res.Export()
	if reusable {
		h.pool.put(vm)
	}
	return out, nil
}

// vmPool retains up to max idle VM instances. Building an instance runs the
// unit's top-level code and can fail, which rules out sync.Pool.
type vmPool struct {
	mu    sync.Mutex
	free  []*vmInstance
	max   int
	build func() (*vmInstance, error)
}

func newVMPool(max int, build func() (*vmInstance, error)) *vmPool {
	if max < 1 {
		max = 1
	}
	return &vmPool{max: max, build: build}
}

func (p *vmPool) get() (*vmInstance, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		vm := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return vm, nil
	}
	p.mu.Unlock()
	return p.build()
}

func (p *vmPool) put(vm *vmInstance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.max {
		p.free = append(p.free, vm)
	}
}
