// Package depmod preloads a function's declared dependencies into loaded,
// reusable modules before any invocation.
//
// Resolution is ordered: descriptors load in declaration order, so a later
// dependency may build on an earlier one. Results (successes and failures)
// are cached process-wide per descriptor and never invalidated; process
// restart is the only eviction path, because dependency code deploys
// immutably alongside the manifest.
package depmod

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/fnhost/fnhost/fault"
	"github.com/fnhost/fnhost/manifest"
	"github.com/fnhost/fnhost/runtime"
)

// Module is a resolved, loaded dependency unit. Exactly one instance exists
// per descriptor key per host process; it is shared read-only by every
// function that declares the descriptor.
type Module struct {
	Key  string
	Name string
	Unit runtime.Module
}

type cacheEntry struct {
	mod *Module
	err error
}

type Preloader struct {
	*Options

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*cacheEntry

	loads sync.Map // cache key -> *atomic.Int64
}

func NewPreloader(opts ...Option) *Preloader {
	return &Preloader{
		Options: NewOptions(opts...),
		cache:   make(map[string]*cacheEntry),
	}
}

// Preload resolves all of m's dependency descriptors, in order, into loaded
// modules. The first failure aborts the walk with a DependencyResolutionError
// naming the offending descriptor; that failure is cached and not retried.
func (p *Preloader) Preload(ctx context.Context, rt runtime.Runtime, m *manifest.Manifest) ([]runtime.NamedModule, error) {
	if len(m.Dependencies) == 0 {
		return nil, nil
	}

	out := make([]runtime.NamedModule, 0, len(m.Dependencies))
	for _, desc := range m.Dependencies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mod, err := p.load(rt, m.BundleDir, desc)
		if err != nil {
			return nil, err
		}
		out = append(out, runtime.NamedModule{Name: desc.Name, Module: mod.Unit})
	}

	p.Logger.Debug().Str("function", m.Name).Int("modules", len(out)).
		Msg("dependencies preloaded")
	return out, nil
}

// Lookup returns the cached module for a descriptor, if it was ever loaded.
// Exposed so tests can observe instance sharing.
func (p *Preloader) Lookup(rt runtime.Runtime, desc manifest.Dependency) (*Module, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.cache[cacheKey(rt, desc)]
	if !ok || e.err != nil {
		return nil, false
	}
	return e.mod, true
}

// LoadCount reports how many load attempts were performed for a descriptor.
func (p *Preloader) LoadCount(rt runtime.Runtime, desc manifest.Dependency) int64 {
	if c, ok := p.loads.Load(cacheKey(rt, desc)); ok {
		return c.(*atomic.Int64).Load()
	}
	return 0
}

func cacheKey(rt runtime.Runtime, desc manifest.Dependency) string {
	return rt.Name() + ":" + desc.Key()
}

func (p *Preloader) load(rt runtime.Runtime, bundleDir string, desc manifest.Dependency) (*Module, error) {
	key := cacheKey(rt, desc)

	p.mu.RLock()
	e, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return e.mod, e.err
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		// A caller that lost an earlier flight may arrive here after the
		// result was already cached.
		p.mu.RLock()
		e, ok := p.cache[key]
		p.mu.RUnlock()
		if ok {
			return e.mod, e.err
		}

		c, _ := p.loads.LoadOrStore(key, &atomic.Int64{})
		c.(*atomic.Int64).Add(1)

		mod, err := p.loadOnce(rt, bundleDir, desc, key)

		p.mu.Lock()
		p.cache[key] = &cacheEntry{mod: mod, err: err}
		p.mu.Unlock()

		if err != nil {
			p.Logger.Error().Err(err).Str("descriptor", desc.Key()).Msg("dependency load failed")
		} else {
			p.Logger.Debug().Str("descriptor", desc.Key()).Msg("dependency loaded")
		}
		return mod, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

func (p *Preloader) loadOnce(rt runtime.Runtime, bundleDir string, desc manifest.Dependency, key string) (*Module, error) {
	src, err := p.resolveSource(rt, bundleDir, desc)
	if err != nil {
		return nil, err
	}
	unit, err := rt.CompileModule(desc.Name, src)
	if err != nil {
		return nil, fault.Wrap(fault.KindDependencyResolution, err)
	}
	return &Module{Key: key, Name: desc.Name, Unit: unit}, nil
}

func (p *Preloader) resolveSource(rt runtime.Runtime, bundleDir string, desc manifest.Dependency) ([]byte, error) {
	if desc.Source != "" {
		if !rt.NeedsSource() {
			return nil, nil
		}
		b, err := os.ReadFile(filepath.Join(bundleDir, desc.Source))
		if err != nil {
			return nil, fault.Wrap(fault.KindDependencyResolution,
				fmt.Errorf("dependency %q: %w", desc.Name, err))
		}
		return b, nil
	}

	if src, ok := p.Builtins[desc.Name]; ok {
		return src, nil
	}
	if !rt.NeedsSource() {
		// Registry-backed runtimes resolve bare names themselves.
		return nil, nil
	}
	return nil, fault.New(fault.KindDependencyResolution,
		"dependency %q is not in the host's built-in set and declares no source", desc.Name)
}
