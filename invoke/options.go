package invoke

import (
	"time"

	"github.com/mohae/deepcopy"
	"github.com/rs/zerolog"
)

type Option interface {
	Apply(o *Options)
}

type OptionFunc func(*Options)

func (f OptionFunc) Apply(o *Options) { f(o) }

type Options struct {
	// DefaultTimeout applies to functions whose manifest declares no timeout.
	// Zero means no time budget.
	DefaultTimeout time.Duration
	// MaxConcurrency caps in-flight invocations across all functions. Zero
	// means no ceiling. Requests over the ceiling are rejected with
	// ErrOverCapacity for the admission layer to handle.
	MaxConcurrency int
	DebugMode      bool
	Logger         zerolog.Logger
}

var defaultOptions = &Options{
	DefaultTimeout: 0,
	MaxConcurrency: 0,
	DebugMode:      false,
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

func WithDefaultTimeout(d time.Duration) Option {
	return OptionFunc(func(o *Options) {
		o.DefaultTimeout = d
	})
}

func WithMaxConcurrency(n int) Option {
	return OptionFunc(func(o *Options) {
		o.MaxConcurrency = n
	})
}

func WithDebugMode(debug bool) Option {
	return OptionFunc(func(o *Options) {
		o.DebugMode = debug
	})
}

func WithLogger(l zerolog.Logger) Option {
	return OptionFunc(func(o *Options) {
		o.Logger = l
	})
}
