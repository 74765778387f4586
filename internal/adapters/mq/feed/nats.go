package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/dutyqueue/pkg/logger"
	"github.com/okian/dutyqueue/pkg/metrics"
)

// NATSFeed carries changes over NATS core pub/sub as JSON, so several
// service instances sharing one store refresh together.
type NATSFeed struct {
	opts   options
	nc     *nats.Conn
	ownsNC bool

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool
}

// NewNATSFeed wraps an existing connection. The caller keeps ownership of nc.
func NewNATSFeed(nc *nats.Conn, opts ...Option) *NATSFeed {
	return &NATSFeed{
		opts: buildOptions(opts),
		nc:   nc,
		subs: make(map[*nats.Subscription]struct{}),
	}
}

// ConnectNATS dials url and returns a feed owning the connection.
func ConnectNATS(url string, opts ...Option) (*NATSFeed, error) {
	o := buildOptions(opts)
	nc, err := nats.Connect(url,
		nats.Name("dutyqueue"),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && o.logger != nil {
				o.logger.Warn(context.Background(), "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if o.logger != nil {
				o.logger.Info(context.Background(), "nats reconnected", logger.String("url", c.ConnectedUrl()))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	f := NewNATSFeed(nc, opts...)
	f.ownsNC = true
	return f, nil
}

// Subject returns the subject changes are published on.
func (f *NATSFeed) Subject() string {
	return f.opts.subject
}

// Publish encodes c as JSON and publishes it.
func (f *NATSFeed) Publish(_ context.Context, c Change) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Origin == "" {
		c.Origin = f.opts.origin
	}

	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := f.nc.Publish(f.opts.subject, data); err != nil {
		metrics.RecordErrorByComponent("feed", "publish")
		return fmt.Errorf("publish change: %w", err)
	}
	metrics.RecordFeedChange(string(c.Kind), string(c.Op), "out")
	return nil
}

// Subscribe registers h on the feed subject. NATS delivers messages of one
// subscription sequentially.
func (f *NATSFeed) Subscribe(ctx context.Context, h Handler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	sub, err := f.nc.Subscribe(f.opts.subject, func(msg *nats.Msg) {
		var c Change
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			f.dropped(ctx, "decode", err)
			return
		}
		if err := c.Validate(); err != nil {
			f.dropped(ctx, "invalid", err)
			return
		}
		metrics.RecordFeedChange(string(c.Kind), string(c.Op), "in")
		h(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", f.opts.subject, err)
	}
	if err := sub.SetPendingLimits(f.opts.bufferSize, -1); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	f.subs[sub] = struct{}{}

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(stop)
			f.mu.Lock()
			delete(f.subs, sub)
			f.mu.Unlock()
			_ = sub.Unsubscribe()
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				cancel()
			case <-stop:
			}
		}()
	}
	return cancel, nil
}

func (f *NATSFeed) dropped(ctx context.Context, reason string, err error) {
	metrics.RecordErrorByComponent("feed", reason)
	if f.opts.logger != nil {
		f.opts.logger.Warn(ctx, "dropping change message", logger.String("reason", reason), logger.Error(err))
	}
}

// Flush waits until the server has processed every published message.
// ctx must carry a deadline.
func (f *NATSFeed) Flush(ctx context.Context) error {
	return f.nc.FlushWithContext(ctx)
}

// Close unsubscribes everything and, when the feed dialled the connection
// itself, drains and closes it.
func (f *NATSFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	subs := make([]*nats.Subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.subs = make(map[*nats.Subscription]struct{})
	f.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	if f.ownsNC {
		if err := f.nc.Drain(); err != nil {
			f.nc.Close()
			return err
		}
	}
	return nil
}
