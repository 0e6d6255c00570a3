package jsruntime

import (
	"github.com/mohae/deepcopy"
	"github.com/rs/zerolog"
)

type Option interface {
	Apply(o *Options)
}

type OptionFunc func(*Options)

func (f OptionFunc) Apply(o *Options) { f(o) }

type Options struct {
	// PoolSize caps the number of idle VM instances retained per handler.
	PoolSize int
	Logger   zerolog.Logger
}

var defaultOptions = &Options{
	PoolSize: 4,
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

func WithPoolSize(n int) Option {
	return OptionFunc(func(o *Options) {
		if n > 0 {
			o.PoolSize = n
		}
	})
}

func WithLogger(l zerolog.Logger) Option {
	return OptionFunc(func(o *Options) {
		o.Logger = l
	})
}
