// Package worker runs the background refresh loop that keeps the ranked
// queue in step with the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/dutyqueue/pkg/logger"
	"github.com/okian/dutyqueue/pkg/metrics"
)

// ErrStopped is returned by Shutdown when the worker was already stopped.
var ErrStopped = errors.New("worker already stopped")

// RefreshFunc reloads state and recomputes derived views.
type RefreshFunc func(ctx context.Context) error

// Worker is a long-running background loop.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the loop to exit.
	Shutdown(ctx context.Context) error
}

// Refresher calls a RefreshFunc whenever it is triggered and, optionally,
// on a fixed interval. Triggers arriving while a refresh runs collapse into
// a single follow-up refresh.
type Refresher struct {
	refresh  RefreshFunc
	name     string
	interval time.Duration

	trigger  chan struct{}
	shutdown chan struct{}
	done     chan struct{}
	started  chan struct{}
	stopOnce sync.Once

	logger logger.Logger
}

// NewRefresher creates a refresher around fn.
func NewRefresher(fn RefreshFunc, opts ...Option) *Refresher {
	r := &Refresher{
		refresh:  fn,
		name:     "refresher",
		trigger:  make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		started:  make(chan struct{}),
		logger:   logger.Get().Named("refresher"),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.name != "refresher" {
		r.logger = r.logger.Named(r.name)
	}

	return r
}

// Trigger asks for a refresh without blocking. It reports false when a
// refresh is already pending.
func (r *Refresher) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run starts the refresh loop.
func (r *Refresher) Run(ctx context.Context) {
	defer close(r.done)
	close(r.started)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		case <-r.trigger:
			r.run(ctx, "change")
		case <-tick:
			r.run(ctx, "interval")
		}
	}
}

func (r *Refresher) run(ctx context.Context, reason string) {
	if err := r.refresh(ctx); err != nil {
		metrics.RecordErrorByComponent(r.name, "refresh_error")
		r.logger.Error(ctx, "refresh failed",
			logger.String("reason", reason),
			logger.Error(err),
		)
		return
	}
	r.logger.Debug(ctx, "refreshed", logger.String("reason", reason))
}

// Shutdown stops the loop and waits for it to finish or ctx to expire.
// A refresher that never ran returns immediately.
func (r *Refresher) Shutdown(ctx context.Context) error {
	first := false
	r.stopOnce.Do(func() {
		close(r.shutdown)
		first = true
	})
	if !first {
		return ErrStopped
	}

	select {
	case <-r.started:
	default:
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
