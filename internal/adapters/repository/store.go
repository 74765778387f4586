// Package repository persists the roster and the assignment history.
//
// Every Store returns agents and assignments in creation order (CreatedAt,
// then ID). The fairness queue breaks name collisions by roster order, so
// that order has to be stable across reloads and backends.
package repository

import (
	"context"
	"strings"

	"github.com/okian/dutyqueue/internal/domain/model"
)

// Snapshot is a consistent read of both collections.
type Snapshot struct {
	Agents      []model.Agent
	Assignments []model.AssignmentEvent
}

// Store provides read/write access to agents and assignment events.
type Store interface {
	// ListAgents returns the roster in creation order.
	ListAgents(ctx context.Context) ([]model.Agent, error)

	// GetAgent returns one agent or ErrNotFound.
	GetAgent(ctx context.Context, id string) (model.Agent, error)

	// CreateAgent inserts a new agent. Returns ErrDuplicate if the id exists.
	CreateAgent(ctx context.Context, a model.Agent) error

	// DeleteAgent removes an agent. Its assignments are kept.
	// Returns ErrNotFound if the id is unknown.
	DeleteAgent(ctx context.Context, id string) error

	// ListAssignments returns the full history in creation order.
	ListAssignments(ctx context.Context) ([]model.AssignmentEvent, error)

	// CreateAssignment inserts an immutable event. Returns ErrDuplicate if the
	// id exists.
	CreateAssignment(ctx context.Context, e model.AssignmentEvent) error

	// DeleteAssignment removes an event. Returns ErrNotFound if the id is
	// unknown.
	DeleteAssignment(ctx context.Context, id string) error

	// Snapshot reads agents and assignments together.
	Snapshot(ctx context.Context) (Snapshot, error)

	Close() error
}

// compareAgents orders agents by creation, then id.
func compareAgents(a, b model.Agent) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// compareAssignments orders events by creation, then id.
func compareAssignments(a, b model.AssignmentEvent) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
