package sqsserver

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
	// QueueURL is the source queue polled for invocation envelopes.
	QueueURL string
	Workers  int
	// WaitTimeSeconds is the long-poll wait per receive.
	WaitTimeSeconds int32
	// ReplyMode enables result delivery to the envelope's reply queue.
	ReplyMode bool
	// SQSClient overrides the AWS client, for tests.
	SQSClient SQSClient
	Logger    zerolog.Logger
}

var defaultOptions = &Options{
	QueueURL:        "",
	Workers:         1,
	WaitTimeSeconds: 20,
	ReplyMode:       false,
	SQSClient:       nil,
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

func WithQueueURL(url string) Option {
	return OptionFunc(func(o *Options) {
		o.QueueURL = url
	})
}

func WithWorkers(n int) Option {
	return OptionFunc(func(o *Options) {
		o.Workers = n
	})
}

func WithWaitTimeSeconds(s int32) Option {
	return OptionFunc(func(o *Options) {
		o.WaitTimeSeconds = s
	})
}

func WithReplyMode(reply bool) Option {
	return OptionFunc(func(o *Options) {
		o.ReplyMode = reply
	})
}

func WithSQSClient(client SQSClient) Option {
	return OptionFunc(func(o *Options) {
		o.SQSClient = client
	})
}

func WithLogger(l zerolog.Logger) Option {
	return OptionFunc(func(o *Options) {
		o.Logger = l
	})
}
