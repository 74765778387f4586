package repository

import (
	"time"

	"github.com/okian/dutyqueue/pkg/logger"
)

// options are shared by every Store constructor. Fields a backend does not
// use are ignored.
type options struct {
	logger       logger.Logger
	maxOpenConns int
	busyTimeout  time.Duration
	connMaxLife  time.Duration
}

func defaultOptions() options {
	return options{
		maxOpenConns: 10,
		busyTimeout:  5 * time.Second,
		connMaxLife:  5 * time.Minute,
	}
}

// Option applies a configuration option to a Store.
type Option func(*options)

// WithLogger sets the logger used for migration and lifecycle messages.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxOpenConns bounds the connection pool of SQL backends.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// WithConnMaxLifetime sets how long a pooled connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connMaxLife = d
		}
	}
}
