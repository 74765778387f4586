package feed

import (
	"context"
	"sync"

	"github.com/okian/dutyqueue/pkg/logger"
	"github.com/okian/dutyqueue/pkg/metrics"
)

// LocalFeed fans changes out in process. Each subscriber has a bounded
// buffer drained by its own goroutine; a publish never blocks on a slow
// subscriber.
type LocalFeed struct {
	opts options

	mu     sync.RWMutex
	subs   map[int]*localSub
	nextID int
	closed bool
	wg     sync.WaitGroup
}

type localSub struct {
	ch   chan Change
	done chan struct{}
	once sync.Once
}

func (s *localSub) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewLocalFeed creates an in-process Feed.
func NewLocalFeed(opts ...Option) *LocalFeed {
	return &LocalFeed{
		opts: buildOptions(opts),
		subs: make(map[int]*localSub),
	}
}

// Publish delivers c to every subscriber with room in its buffer. A full
// buffer already holds a pending refresh trigger, so c is dropped there.
func (f *LocalFeed) Publish(ctx context.Context, c Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Origin == "" {
		c.Origin = f.opts.origin
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}

	metrics.RecordFeedChange(string(c.Kind), string(c.Op), "out")
	for _, s := range f.subs {
		select {
		case s.ch <- c:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		default:
			metrics.RecordErrorByComponent("feed", "subscriber_full")
			if f.opts.logger != nil {
				f.opts.logger.Debug(ctx, "subscriber backlog full; change coalesced",
					logger.String("kind", string(c.Kind)), logger.String("id", c.ID))
			}
		}
	}
	return nil
}

// Subscribe starts a goroutine that calls h for each change.
func (f *LocalFeed) Subscribe(ctx context.Context, h Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	id := f.nextID
	f.nextID++
	s := &localSub{
		ch:   make(chan Change, f.opts.bufferSize),
		done: make(chan struct{}),
	}
	f.subs[id] = s

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case c := <-s.ch:
				metrics.RecordFeedChange(string(c.Kind), string(c.Op), "in")
				h(ctx, c)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		s.stop()
	}
	return cancel, nil
}

// Close stops every subscriber and waits for in-flight handlers.
func (f *LocalFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for id, s := range f.subs {
		s.stop()
		delete(f.subs, id)
	}
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}
