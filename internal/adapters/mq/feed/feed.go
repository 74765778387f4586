// Package feed carries change notifications between the store writers and
// the ranking refresh loop.
//
// A Change only names what changed. Receivers reload the full snapshot, so
// notifications may be coalesced or dropped once one is already pending
// without losing state.
package feed

import (
	"context"
	"fmt"
	"time"
)

// Kind is the collection a change belongs to.
type Kind string

// Change kinds.
const (
	KindAgent      Kind = "agent"
	KindAssignment Kind = "assignment"
)

// Op is the write that produced a change.
type Op string

// Change operations.
const (
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Change describes one write.
type Change struct {
	Kind   Kind      `json:"kind"`
	Op     Op        `json:"op"`
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin,omitempty"`
}

// Validate checks Kind, Op and ID.
func (c Change) Validate() error {
	switch c.Kind {
	case KindAgent, KindAssignment:
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidChange, c.Kind)
	}
	switch c.Op {
	case OpInsert, OpDelete:
	default:
		return fmt.Errorf("%w: op %q", ErrInvalidChange, c.Op)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidChange)
	}
	return nil
}

// Handler receives changes. Handlers of one subscription are called
// sequentially.
type Handler func(ctx context.Context, c Change)

// Feed publishes changes and fans them out to subscribers.
type Feed interface {
	// Publish announces c to every current subscriber.
	Publish(ctx context.Context, c Change) error

	// Subscribe registers h until cancel is called, ctx is done or the feed
	// is closed.
	Subscribe(ctx context.Context, h Handler) (cancel func(), err error)

	// Close stops delivery and releases resources.
	Close() error
}
