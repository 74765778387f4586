package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/dutyqueue/internal/domain/model"
)

// MemoryStore is an in-process Store. Lists are sorted on read so the order
// matches the SQL backends.
type MemoryStore struct {
	mu          sync.RWMutex
	agents      []model.Agent
	agentIdx    map[string]int
	assignments []model.AssignmentEvent
	assignIdx   map[string]int
	closed      bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agentIdx:  make(map[string]int),
		assignIdx: make(map[string]int),
	}
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]model.Agent, error) {
	defer observe("list_agents", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := slices.Clone(s.agents)
	slices.SortStableFunc(out, compareAgents)
	return out, nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (model.Agent, error) {
	defer observe("get_agent", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Agent{}, ErrClosed
	}
	i, ok := s.agentIdx[id]
	if !ok {
		return model.Agent{}, ErrNotFound
	}
	return s.agents[i], nil
}

func (s *MemoryStore) CreateAgent(_ context.Context, a model.Agent) error {
	defer observe("create_agent", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.agentIdx[a.ID]; ok {
		return ErrDuplicate
	}
	s.agentIdx[a.ID] = len(s.agents)
	s.agents = append(s.agents, a)
	return nil
}

func (s *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	defer observe("delete_agent", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i, ok := s.agentIdx[id]
	if !ok {
		return ErrNotFound
	}
	s.agents = slices.Delete(s.agents, i, i+1)
	delete(s.agentIdx, id)
	for j := i; j < len(s.agents); j++ {
		s.agentIdx[s.agents[j].ID] = j
	}
	return nil
}

func (s *MemoryStore) ListAssignments(_ context.Context) ([]model.AssignmentEvent, error) {
	defer observe("list_assignments", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := slices.Clone(s.assignments)
	slices.SortStableFunc(out, compareAssignments)
	return out, nil
}

func (s *MemoryStore) CreateAssignment(_ context.Context, e model.AssignmentEvent) error {
	defer observe("create_assignment", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.assignIdx[e.ID]; ok {
		return ErrDuplicate
	}
	s.assignIdx[e.ID] = len(s.assignments)
	s.assignments = append(s.assignments, e)
	return nil
}

func (s *MemoryStore) DeleteAssignment(_ context.Context, id string) error {
	defer observe("delete_assignment", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i, ok := s.assignIdx[id]
	if !ok {
		return ErrNotFound
	}
	s.assignments = slices.Delete(s.assignments, i, i+1)
	delete(s.assignIdx, id)
	for j := i; j < len(s.assignments); j++ {
		s.assignIdx[s.assignments[j].ID] = j
	}
	return nil
}

func (s *MemoryStore) Snapshot(_ context.Context) (Snapshot, error) {
	defer observe("snapshot", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	snap := Snapshot{
		Agents:      slices.Clone(s.agents),
		Assignments: slices.Clone(s.assignments),
	}
	slices.SortStableFunc(snap.Agents, compareAgents)
	slices.SortStableFunc(snap.Assignments, compareAssignments)
	return snap, nil
}

// Close marks the store closed; later calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
