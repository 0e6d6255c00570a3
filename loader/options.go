package loader

import "github.com/rs/zerolog"

type Option interface {
	Apply(o *Options)
}

type OptionFunc func(*Options)

func (f OptionFunc) Apply(o *Options) { f(o) }

type Options struct {
	Logger zerolog.Logger
}

func NewOptions(opts ...Option) *Options {
	options := &Options{Logger: zerolog.Nop()}
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

func WithLogger(l zerolog.Logger) Option {
	return OptionFunc(func(o *Options) {
		o.Logger = l
	})
}
