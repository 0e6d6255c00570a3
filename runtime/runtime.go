// Package runtime defines the interface between the host and the language
// runtimes that execute handler code. The host treats handler bodies and
// dependency units as opaque executable units; everything it needs from a
// runtime is expressed here.
package runtime

import (
	"context"

	"github.com/fnhost/fnhost/manifest"
)

// Module is a loaded dependency unit. Opaque to the host, immutable after
// construction, and safe to share read-only across concurrent invocations.
type Module any

// NamedModule pairs a loaded module with the import name handlers use.
type NamedModule struct {
	Name   string
	Module Module
}

// Handler is a warm execution artifact. Invoke is safe for concurrent use;
// each call is logically independent. Implementations should honor ctx
// cancellation so aborted invocations release their execution unit.
type Handler interface {
	Invoke(ctx context.Context, event any) (any, error)
}

// Runtime loads dependency modules and handler units for one language.
type Runtime interface {
	Name() string

	// NeedsSource reports whether units are loaded from source text read out
	// of the function bundle. Registry-backed runtimes resolve units by name
	// and receive nil source.
	NeedsSource() bool

	// CompileModule loads one dependency unit. The result must be immutable.
	CompileModule(name string, src []byte) (Module, error)

	// LoadHandler loads a function's source unit with the given modules
	// importable by their declared names, and validates that the unit exposes
	// an entry point named "handler" taking exactly one argument.
	LoadHandler(m *manifest.Manifest, src []byte, deps []NamedModule) (Handler, error)
}
