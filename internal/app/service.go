// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/dutyqueue/internal/adapters/mq/feed"
	"github.com/okian/dutyqueue/internal/adapters/mq/worker"
	"github.com/okian/dutyqueue/internal/adapters/repository"
	"github.com/okian/dutyqueue/internal/domain/cycle"
	"github.com/okian/dutyqueue/internal/domain/fairness"
	"github.com/okian/dutyqueue/internal/domain/idempotency"
	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/rotation"
	"github.com/okian/dutyqueue/internal/domain/types"
	"github.com/okian/dutyqueue/pkg/logger"
	"github.com/okian/dutyqueue/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// AssignmentRequest is the input of RecordAssignment.
type AssignmentRequest struct {
	AgentID string
	Date    model.Date
	Shift   model.Shift
	Status  model.Status
}

// Service keeps a ranked view of the roster in step with the store.
//
// Reads are served from the last loaded snapshot. Every local write
// refreshes it before returning; writes from other instances arrive through
// the change feed and refresh it asynchronously.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	feed     feed.Feed
	ranker   *fairness.Ranker
	resolver *rotation.Resolver
	idem     idempotency.Cache

	// Configuration
	now             func() time.Time
	loc             *time.Location
	refreshInterval time.Duration
	instanceID      string

	// Derived state
	refreshMu   sync.Mutex
	snap        repository.Snapshot
	queue       fairness.Queue
	loaded      bool
	lastRefresh time.Time
	recomputes  int64

	// Lifecycle
	started   bool
	refresher *worker.Refresher
	unsub     func()
	cancelRun context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithFeed sets the change feed. Defaults to an in-process feed.
func WithFeed(f feed.Feed) Option {
	return func(s *Service) {
		if f != nil {
			s.feed = f
		}
	}
}

// WithRanker sets the fairness ranker.
func WithRanker(r *fairness.Ranker) Option {
	return func(s *Service) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithPolicy selects the balance policy of the default ranker.
func WithPolicy(p fairness.Policy) Option {
	return func(s *Service) {
		s.ranker = fairness.NewRanker(fairness.WithPolicy(p))
	}
}

// WithResolver sets the team rotation resolver.
func WithResolver(r *rotation.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithIdempotency sets the idempotency-key cache.
func WithIdempotency(c idempotency.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.idem = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone that decides which civil day "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRefreshInterval enables a periodic safety refresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		now:        time.Now,
		loc:        time.Local,
		instanceID: uuid.NewString(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.feed == nil {
		s.feed = feed.NewLocalFeed()
	}
	if s.ranker == nil {
		s.ranker = fairness.NewRanker()
	}
	if s.resolver == nil {
		s.resolver = rotation.NewResolver()
	}
	if s.idem == nil {
		s.idem = idempotency.NewMemoryCache()
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	return s
}

// Start loads the first snapshot, subscribes to the change feed and starts
// the refresh loop. The loop outlives ctx and stops with Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	refresher := worker.NewRefresher(s.Refresh,
		worker.WithLogger(s.logger.Named("refresher")),
		worker.WithInterval(s.refreshInterval),
	)
	unsub, err := s.feed.Subscribe(runCtx, s.onChange(refresher))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to changes: %w", err)
	}
	go refresher.Run(runCtx)

	s.refresher = refresher
	s.unsub = unsub
	s.cancelRun = cancel
	s.started = true

	s.logger.Info(ctx, "duty queue service started",
		logger.String("policy", string(s.ranker.Policy())),
		logger.String("anchor", s.resolver.Anchor().String()),
		logger.String("location", s.loc.String()),
		logger.Duration("refreshInterval", s.refreshInterval),
	)
	return nil
}

// onChange triggers a refresh for changes written by other instances.
// Local writes have already refreshed before returning.
func (s *Service) onChange(r *worker.Refresher) feed.Handler {
	return func(ctx context.Context, c feed.Change) {
		if c.Origin == s.instanceID {
			return
		}
		s.logger.Debug(ctx, "change received",
			logger.String("kind", string(c.Kind)),
			logger.String("op", string(c.Op)),
			logger.String("id", c.ID),
			logger.String("origin", c.Origin),
		)
		r.Trigger()
	}
}

// Stop gracefully shuts down the refresh loop. The store and the feed stay
// open; their owner closes them.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	refresher, unsub, cancelRun := s.refresher, s.unsub, s.cancelRun
	s.refresher, s.unsub, s.cancelRun = nil, nil, nil
	s.started = false
	s.mu.Unlock()

	// The refresh loop takes s.mu, so it is stopped without holding it.
	s.logger.Info(context.Background(), "stopping duty queue service...")

	if unsub != nil {
		unsub()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := refresher.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "refresher shutdown", logger.Error(err))
	}
	cancelRun()

	s.logger.Info(context.Background(), "duty queue service stopped")
}

// Refresh reloads the snapshot and recomputes the queue for the current
// cycle. Concurrent refreshes are serialised so an older snapshot never
// replaces a newer one.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("service", "snapshot")
		return fmt.Errorf("load snapshot: %w", err)
	}

	today := s.Today()
	q := s.ranker.Rank(snap.Agents, snap.Assignments, cycle.For(today))
	refreshedAt := s.now()

	s.mu.Lock()
	s.snap = snap
	s.queue = q
	s.loaded = true
	s.lastRefresh = refreshedAt
	s.recomputes++
	s.mu.Unlock()

	metrics.RecordRecompute(float64(time.Since(start).Microseconds())/1000, refreshedAt.Unix())
	metrics.UpdateSnapshotSize(len(snap.Agents), len(snap.Assignments))
	metrics.UpdateEventsIgnored("unknown_agent", q.Ignored.UnknownAgent)
	metrics.UpdateEventsIgnored("unknown_status", q.Ignored.UnknownStatus)

	if n := q.Ignored.Total(); n > 0 {
		s.logger.Debug(ctx, "events excluded from ranking",
			logger.Int("unknownAgent", q.Ignored.UnknownAgent),
			logger.Int("unknownStatus", q.Ignored.UnknownStatus),
		)
	}
	return nil
}

// snapshot returns the cached snapshot, loading it on first use.
func (s *Service) snapshot(ctx context.Context) (repository.Snapshot, error) {
	s.mu.RLock()
	snap, loaded := s.snap, s.loaded
	s.mu.RUnlock()
	if loaded {
		return snap, nil
	}
	if err := s.Refresh(ctx); err != nil {
		return repository.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

// Today returns the current civil date in the service location.
func (s *Service) Today() model.Date {
	return model.DateIn(s.now(), s.loc)
}

// refOrToday dereferences ref, falling back to Today.
func (s *Service) refOrToday(ref *model.Date) model.Date {
	if ref == nil || ref.IsZero() {
		return s.Today()
	}
	return *ref
}

// Queue ranks the roster for the cycle containing ref (today when nil).
func (s *Service) Queue(ctx context.Context, ref *model.Date) (types.QueueView, error) {
	w := cycle.For(s.refOrToday(ref))

	s.mu.RLock()
	cached, loaded := s.queue, s.loaded
	s.mu.RUnlock()
	if loaded && cached.Window == w {
		return types.QueueView{Label: w.Label(), Queue: cached}, nil
	}

	snap, err := s.snapshot(ctx)
	if err != nil {
		return types.QueueView{}, err
	}
	q := s.ranker.Rank(snap.Agents, snap.Assignments, w)
	return types.QueueView{Label: w.Label(), Queue: q}, nil
}

// SuggestedAgent returns the head of the current queue, the default choice
// when an operator offers the next slot.
func (s *Service) SuggestedAgent(ctx context.Context) (fairness.Standing, error) {
	q, err := s.Queue(ctx, nil)
	if err != nil {
		return fairness.Standing{}, err
	}
	head, ok := q.Next()
	if !ok {
		return fairness.Standing{}, ErrNoAgents
	}
	return head, nil
}

// Cycle describes the window containing ref (today when nil).
func (s *Service) Cycle(ref *model.Date) types.CycleView {
	return types.NewCycleView(cycle.For(s.refOrToday(ref)))
}

// TeamOnDuty returns the team on duty on d.
func (s *Service) TeamOnDuty(d model.Date) types.TeamView {
	return types.TeamView{Date: d, Team: s.resolver.OnDuty(d)}
}

// Calendar lays out the cycle containing ref (today when nil).
func (s *Service) Calendar(ctx context.Context, ref *model.Date) (types.Calendar, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return types.Calendar{}, err
	}
	w := cycle.For(s.refOrToday(ref))
	return types.BuildCalendar(w, s.resolver.OnDuty, snap.Agents, snap.Assignments), nil
}

// Agents returns the roster straight from the store.
func (s *Service) Agents(ctx context.Context) ([]model.Agent, error) {
	return s.store.ListAgents(ctx)
}

// Assignments returns the full history straight from the store.
func (s *Service) Assignments(ctx context.Context) ([]model.AssignmentEvent, error) {
	return s.store.ListAssignments(ctx)
}

// AddAgent adds a roster member with a generated id.
func (s *Service) AddAgent(ctx context.Context, name string) (model.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Agent{}, ErrInvalidName
	}

	a := model.Agent{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		metrics.RecordErrorByComponent("service", "create_agent")
		return model.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	metrics.RecordAgentChange(string(feed.OpInsert))

	s.logger.Info(ctx, "agent added", logger.String("id", a.ID), logger.String("name", a.Name))
	s.afterWrite(ctx, feed.KindAgent, feed.OpInsert, a.ID)
	return a, nil
}

// RemoveAgent deletes a roster member. Their assignments stay in history.
func (s *Service) RemoveAgent(ctx context.Context, id string) error {
	if err := s.store.DeleteAgent(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
		}
		metrics.RecordErrorByComponent("service", "delete_agent")
		return fmt.Errorf("delete agent: %w", err)
	}
	metrics.RecordAgentChange(string(feed.OpDelete))

	s.logger.Info(ctx, "agent removed", logger.String("id", id))
	s.afterWrite(ctx, feed.KindAgent, feed.OpDelete, id)
	return nil
}

func (r AssignmentRequest) validate() error {
	switch {
	case strings.TrimSpace(r.AgentID) == "":
		return fmt.Errorf("%w: missing agent_id", ErrInvalidAssignment)
	case r.Date.IsZero():
		return fmt.Errorf("%w: missing date", ErrInvalidAssignment)
	case !r.Shift.Valid():
		return fmt.Errorf("%w: %w: %q", ErrInvalidAssignment, model.ErrInvalidShift, r.Shift)
	case !r.Status.Valid():
		return fmt.Errorf("%w: %w: %q", ErrInvalidAssignment, model.ErrInvalidStatus, r.Status)
	}
	return nil
}

// RecordAssignment appends an accepted or refused offer for an existing
// agent.
func (s *Service) RecordAssignment(ctx context.Context, req AssignmentRequest) (model.AssignmentEvent, error) {
	if err := req.validate(); err != nil {
		return model.AssignmentEvent{}, err
	}
	if _, err := s.store.GetAgent(ctx, req.AgentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.AssignmentEvent{}, fmt.Errorf("%w: %s", ErrAgentNotFound, req.AgentID)
		}
		return model.AssignmentEvent{}, fmt.Errorf("lookup agent: %w", err)
	}

	e := model.AssignmentEvent{
		ID:        uuid.NewString(),
		AgentID:   req.AgentID,
		Date:      req.Date,
		Shift:     req.Shift,
		Status:    req.Status,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateAssignment(ctx, e); err != nil {
		metrics.RecordErrorByComponent("service", "create_assignment")
		return model.AssignmentEvent{}, fmt.Errorf("create assignment: %w", err)
	}
	metrics.RecordAssignment(string(e.Status))

	s.logger.Info(ctx, "assignment recorded",
		logger.String("id", e.ID),
		logger.String("agentID", e.AgentID),
		logger.String("date", e.Date.String()),
		logger.String("shift", string(e.Shift)),
		logger.String("status", string(e.Status)),
	)
	s.afterWrite(ctx, feed.KindAssignment, feed.OpInsert, e.ID)
	return e, nil
}

// RecordAssignmentOnce is RecordAssignment guarded by an idempotency key.
// A replayed key returns the event recorded the first time and true. An
// empty key disables the guard.
func (s *Service) RecordAssignmentOnce(ctx context.Context, key string, req AssignmentRequest) (model.AssignmentEvent, bool, error) {
	if key == "" {
		e, err := s.RecordAssignment(ctx, req)
		return e, false, err
	}

	if id, dup := s.Claim(ctx, key); dup {
		if id == "" {
			return model.AssignmentEvent{}, true, ErrRequestInFlight
		}
		return s.lookupAssignment(ctx, id), true, nil
	}

	e, err := s.RecordAssignment(ctx, req)
	if err != nil {
		s.Release(ctx, key)
		return model.AssignmentEvent{}, false, err
	}
	s.idem.Complete(ctx, key, e.ID)
	return e, false, nil
}

// lookupAssignment finds id in the cached history. A replay of an event
// deleted since returns only its id.
func (s *Service) lookupAssignment(ctx context.Context, id string) model.AssignmentEvent {
	snap, err := s.snapshot(ctx)
	if err == nil {
		for _, e := range snap.Assignments {
			if e.ID == id {
				return e
			}
		}
	}
	return model.AssignmentEvent{ID: id}
}

// Claim reserves an idempotency key. When the key was seen before it
// returns the id recorded for it and true.
func (s *Service) Claim(ctx context.Context, key string) (string, bool) {
	id, dup := s.idem.Reserve(ctx, key)
	if dup {
		metrics.RecordIdempotentReplay()
		s.logger.Debug(ctx, "idempotent replay", logger.String("key", key), logger.String("id", id))
	}
	return id, dup
}

// Release forgets a claimed key so the request may be retried.
func (s *Service) Release(ctx context.Context, key string) {
	s.idem.Release(ctx, key)
}

// RemoveAssignment deletes an event from history.
func (s *Service) RemoveAssignment(ctx context.Context, id string) error {
	if err := s.store.DeleteAssignment(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrAssignmentNotFound, id)
		}
		metrics.RecordErrorByComponent("service", "delete_assignment")
		return fmt.Errorf("delete assignment: %w", err)
	}

	s.logger.Info(ctx, "assignment removed", logger.String("id", id))
	s.afterWrite(ctx, feed.KindAssignment, feed.OpDelete, id)
	return nil
}

// afterWrite refreshes local state and announces the change. The write has
// already succeeded, so failures here are logged rather than returned.
func (s *Service) afterWrite(ctx context.Context, kind feed.Kind, op feed.Op, id string) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Error(ctx, "refresh after write failed", logger.Error(err))
	}
	err := s.feed.Publish(ctx, feed.Change{
		Kind:   kind,
		Op:     op,
		ID:     id,
		At:     s.now().UTC(),
		Origin: s.instanceID,
	})
	if err != nil {
		metrics.RecordErrorByComponent("service", "publish")
		s.logger.Warn(ctx, "publish change failed",
			logger.String("kind", string(kind)),
			logger.String("id", id),
			logger.Error(err),
		)
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() types.Stats {
	today := s.Today()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return types.Stats{
		Agents:         len(s.snap.Agents),
		Assignments:    len(s.snap.Assignments),
		Ignored:        s.queue.Ignored,
		Policy:         s.ranker.Policy(),
		Recomputes:     s.recomputes,
		LastRefresh:    s.lastRefresh,
		IdempotentKeys: s.idem.Size(),
		Today:          today,
		TeamOnDuty:     s.resolver.OnDuty(today),
	}
}

// Started reports whether the refresh loop is running.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
