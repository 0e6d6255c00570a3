package httpserver

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
	ReleaseMode bool
	CorsMode    bool
	Logger      zerolog.Logger
}

var defaultOptions = &Options{
	ReleaseMode: false,
	CorsMode:    false,
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

func WithReleaseMode(release bool) Option {
	return OptionFunc(func(o *Options) {
		o.ReleaseMode = release
	})
}

func WithCorsMode(cors bool) Option {
	return OptionFunc(func(o *Options) {
		o.CorsMode = cors
	})
}

func WithLogger(l zerolog.Logger) Option {
	return OptionFunc(func(o *Options) {
		o.Logger = l
	})
}
