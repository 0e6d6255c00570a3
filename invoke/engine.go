// Package invoke executes single calls of loaded handlers inside a failure
// and time boundary, turning every per-invocation error into a structured
// result instead of a host fault.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fnhost/fnhost/depmod"
	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/loader"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/payload"
	"github.com/fnhost/fnhost/runtime"
	"github.com/fnhost/fnhost/serialize"
)

// Host-level conditions escalated to the admission layer as plain errors;
// they are not invocation results.
var (
	ErrStopped          = errors.New("invoke: engine is stopped")
	ErrOverCapacity     = errors.New("invoke: concurrency ceiling reached")
	ErrFunctionNotFound = errors.New("invoke: function not found")
)

// Engine is the invocation engine. It owns cold-start orchestration through
// the embedded Loader and serves warm invocations concurrently.
type Engine struct {
	*Options
	*loader.Loader

	store   *manifest.Store
	running atomic.Int32
	sem     chan struct{}
}

// NewEngine creates an engine over a manifest store and a runtime registry.
// Dependency preloading options ride in their own group, mirroring the two
// configuration surfaces (engine behavior vs. dependency resolution).
func NewEngine(store *manifest.Store, reg *runtime.Registry, invokeOpts []Option, depOpts []depmod.Option) *Engine {
	options := NewOptions(invokeOpts...)
	pre := depmod.NewPreloader(append(depOpts, depmod.WithLogger(options.Logger))...)

	e := &Engine{
		Options: options,
		Loader:  loader.NewLoader(reg, pre, loader.WithLogger(options.Logger)),
		store:   store,
	}
	if options.MaxConcurrency > 0 {
		e.sem = make(chan struct{}, options.MaxConcurrency)
	}
	e.running.Store(1)
	return e
}

func (e *Engine) Start() { e.running.Store(1) }

func (e *Engine) Stop() { e.running.Store(0) }

func (e *Engine) IsRunning() bool { return e.running.Load() == 1 }

// Store returns the engine's manifest store.
func (e *Engine) Store() *manifest.Store { return e.store }

// Invoke runs one invocation of the named function against raw wire bytes.
//
// The returned error is non-nil only for host-level conditions (stopped
// engine, unknown function, admission rejection); every per-invocation
// failure is carried inside the Result.
func (e *Engine) Invoke(ctx context.Context, function string, raw []byte) (*Result, error) {
	if !e.IsRunning() {
		return nil, ErrStopped
	}

	m, ok := e.store.Get(function)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFunctionNotFound, function)
	}

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		default:
			return nil, ErrOverCapacity
		}
	}

	res := &Result{ID: uuid.NewString(), Function: function}
	if e.DebugMode {
		e.Logger.Debug().Str("id", res.ID).Str("function", function).
			Str("payload", string(raw)).Msg("invocation request")
	}

	event, err := payload.Decode(raw)
	if err != nil {
		res.Err = fault.Wrap(fault.KindMalformedPayload, err)
		return res, nil
	}

	art, err := e.Load(ctx, m)
	if err != nil {
		res.Err = classify(err, fault.KindContractViolation)
		return res, nil
	}

	out, err := e.run(ctx, art, event)
	if err != nil {
		res.Err = classify(err, fault.KindHandlerExecution)
		if e.DebugMode {
			e.Logger.Debug().Str("id", res.ID).Err(res.Err).Msg("invocation failed")
		}
		return res, nil
	}

	wire, err := serialize.Marshal(out)
	if err != nil {
		res.Err = classify(err, fault.KindSerialization)
		return res, nil
	}
	res.Payload = wire

	if e.DebugMode {
		e.Logger.Debug().Str("id", res.ID).RawJSON("response", wire).Msg("invocation complete")
	}
	return res, nil
}

// run executes the handler call under the function's time budget, with a
// panic boundary. A timed-out call is abandoned: the runtime interrupts it
// via ctx and its eventual return value is discarded.
func (e *Engine) run(ctx context.Context, art *loader.Artifact, event any) (any, error) {
	budget := art.Manifest.Timeout
	if budget == 0 {
		budget = e.DefaultTimeout
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fault.New(fault.KindHandlerExecution, "panic: %v", r)}
			}
		}()
		v, err := art.Handler.Invoke(ctx, event)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) {
			return nil, timeoutError(art.Manifest.Name, budget)
		}
		return o.value, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(art.Manifest.Name, budget)
		}
		return nil, fault.Wrap(fault.KindHandlerExecution, ctx.Err())
	}
}

func timeoutError(fn string, budget time.Duration) *fault.Error {
	return fault.New(fault.KindTimeout, "function %q did not complete within %s", fn, budget)
}

// classify keeps an existing fault classification and assigns the fallback
// kind to anything unclassified.
func classify(err error, fallback fault.Kind) *fault.Error {
	if fe, ok := fault.As(err); ok {
		return fe
	}
	return fault.Wrap(fallback, err)
}
