// Package loader turns a function manifest into a warm, validated execution
// artifact, preloading its dependencies first.
//
// Loading is single-flight per function: under concurrent first-time
// invocation only one attempt proceeds; followers await and share its result.
// A cached failure is surfaced to every later caller unchanged. The host does
// not retry by itself; the external deployment trigger calls Evict to
// schedule a reload.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/fnhost/fnhost/depmod"
	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
)

// Artifact is the loaded, validated representation of a function's entry
// point, bound to its already-loaded dependencies. Immutable; reused across
// warm invocations.
type Artifact struct {
	Manifest *manifest.Manifest
	Handler  runtime.Handler
}

type cacheEntry struct {
	art *Artifact
	err error
}

type Loader struct {
	*Options

	registry  *runtime.Registry
	preloader *depmod.Preloader

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*cacheEntry

	loads sync.Map // function name -> *atomic.Int64
}

func NewLoader(reg *runtime.Registry, pre *depmod.Preloader, opts ...Option) *Loader {
	return &Loader{
		Options:   NewOptions(opts...),
		registry:  reg,
		preloader: pre,
		cache:     make(map[string]*cacheEntry),
	}
}

// Load returns the function's artifact, performing the cold start on first
// use. The artifact's dependencies are fully loaded before this returns.
func (l *Loader) Load(ctx context.Context, m *manifest.Manifest) (*Artifact, error) {
	l.mu.RLock()
	e, ok := l.cache[m.Name]
	l.mu.RUnlock()
	if ok {
		return e.art, e.err
	}

	// The cold start outlives any single caller: a canceled request must not
	// cache a spurious failure for the followers awaiting this flight.
	loadCtx := context.WithoutCancel(ctx)

	v, err, _ := l.group.Do(m.Name, func() (any, error) {
		l.mu.RLock()
		e, ok := l.cache[m.Name]
		l.mu.RUnlock()
		if ok {
			return e.art, e.err
		}

		c, _ := l.loads.LoadOrStore(m.Name, &atomic.Int64{})
		c.(*atomic.Int64).Add(1)

		art, err := l.loadOnce(loadCtx, m)

		l.mu.Lock()
		l.cache[m.Name] = &cacheEntry{art: art, err: err}
		l.mu.Unlock()

		if err != nil {
			l.Logger.Error().Err(err).Str("function", m.Name).Msg("cold start failed")
		} else {
			l.Logger.Info().Str("function", m.Name).Msg("cold start complete")
		}
		return art, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

func (l *Loader) loadOnce(ctx context.Context, m *manifest.Manifest) (*Artifact, error) {
	rt, err := l.registry.Get(m.Runtime)
	if err != nil {
		return nil, fault.Wrap(fault.KindContractViolation,
			fmt.Errorf("function %q: %w", m.Name, err))
	}

	deps, err := l.preloader.Preload(ctx, rt, m)
	if err != nil {
		return nil, err
	}

	var src []byte
	if rt.NeedsSource() {
		src, err = os.ReadFile(filepath.Join(m.BundleDir, m.Source))
		if err != nil {
			return nil, fault.Wrap(fault.KindContractViolation,
				fmt.Errorf("function %q: %w", m.Name, err))
		}
	}

	h, err := rt.LoadHandler(m, src, deps)
	if err != nil {
		if _, classified := fault.As(err); classified {
			return nil, err
		}
		return nil, fault.Wrap(fault.KindContractViolation,
			fmt.Errorf("function %q: %w", m.Name, err))
	}

	return &Artifact{Manifest: m, Handler: h}, nil
}

// Preloader returns the dependency preloader this loader resolves through.
func (l *Loader) Preloader() *depmod.Preloader { return l.preloader }

// Evict drops the cached artifact (or cached failure) for a function. This is
// the explicit reload trigger driven by the external deployment layer; the
// next Load performs a fresh cold start.
func (l *Loader) Evict(name string) {
	l.mu.Lock()
	delete(l.cache, name)
	l.mu.Unlock()
	l.Logger.Info().Str("function", name).Msg("artifact evicted")
}

// LoadCount reports how many cold-start attempts were performed for a
// function.
func (l *Loader) LoadCount(name string) int64 {
	if c, ok := l.loads.Load(name); ok {
		return c.(*atomic.Int64).Load()
	}
	return 0
}
