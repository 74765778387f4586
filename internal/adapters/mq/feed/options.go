package feed

import "github.com/okian/dutyqueue/pkg/logger"

// Default feed configuration constants.
const (
	defaultBufferSize = 64
	defaultSubject    = "dutyqueue.changes"
)

type options struct {
	bufferSize int
	subject    string
	origin     string
	logger     logger.Logger
}

// Option applies a configuration option to a Feed.
type Option func(*options)

// WithBufferSize sets the per-subscriber backlog before notifications are
// dropped.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithSubject sets the NATS subject.
func WithSubject(subject string) Option {
	return func(o *options) {
		if subject != "" {
			o.subject = subject
		}
	}
}

// WithOrigin stamps published changes that carry no origin.
func WithOrigin(origin string) Option {
	return func(o *options) {
		o.origin = origin
	}
}

// WithLogger sets the logger for delivery problems.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{bufferSize: defaultBufferSize, subject: defaultSubject}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
