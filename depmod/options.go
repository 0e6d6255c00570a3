package depmod

import (
	"fmt"
	"os"

	"github.com/mohae/deepcopy"
	"github.com/rs/zerolog"
)

type Option interface {
	Apply(o *Options)
}

type OptionFunc func(*Options)

func (f OptionFunc) Apply(o *Options) { f(o) }

type Options struct {
	// Builtins is the host-provided set of dependency sources resolvable by
	// bare name, without a bundle-local source reference.
	Builtins map[string][]byte
	Logger   zerolog.Logger
}

var defaultOptions = &Options{
	Builtins: map[string][]byte{},
}

func NewOptions(opts ...Option) *Options {
	options := deepcopy.Copy(defaultOptions).(*Options)
	options.Logger = zerolog.Nop()
	options.init(opts...)
	return options
}

func (o *Options) init(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(o)
		}
	}
}

func WithBuiltin(name string, src []byte) Option {
	return OptionFunc(func(o *Options) {
		o.Builtins[name] = src
	})
}

// WithBuiltinFile reads a builtin's source eagerly. It panics if the file
// cannot be read, matching the config option idiom.
func WithBuiltinFile(name string, path string) Option {
	b, err := os.ReadFile(path)
	if err != nil {
		return OptionFunc(func(*Options) {
			panic(fmt.Errorf("depmod.WithBuiltinFile(%s, %s): %w", name, path, err))
		})
	}
	return WithBuiltin(name, b)
}

func WithLogger(l zerolog.Logger) Option {
	return OptionFunc(func(o *Options) {
		o.Logger = l
	})
}
