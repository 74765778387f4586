// Package fairness ranks roster agents into the priority queue that decides
// who is offered the next extra-duty slot.
//
// Ranking is a pure fold over a snapshot of the roster and the full event
// history. It never keeps state between calls: adding or deleting any event
// anywhere in history and ranking again re-derives the whole queue.
//
// Order, ascending:
//
//  1. agents that have not gone again ahead of the least-served agent
//     (TurnsTaken == MinTurns) before those that have;
//  2. Balance (accepted credits) ascending;
//  3. Name in byte order, then roster order for colliding names.
package fairness

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/okian/dutyqueue/internal/domain/cycle"
	"github.com/okian/dutyqueue/internal/domain/model"
)

// Policy selects which accepted events count towards an agent's balance.
type Policy string

// Balance policies.
const (
	// PolicyAllTime counts every accepted event ever recorded.
	PolicyAllTime Policy = "all_time"
	// PolicyCycle counts only accepted events dated inside the ranking window.
	// Turns and the done threshold stay all-time under both policies.
	PolicyCycle Policy = "cycle"
)

// ParsePolicy parses a policy name; the empty string selects PolicyAllTime.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAllTime:
		return PolicyAllTime, nil
	case PolicyCycle:
		return PolicyCycle, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Stat is the derived, never persisted, view of one agent's history.
type Stat struct {
	Balance      int          `json:"balance"`
	TurnsTaken   int          `json:"turns_taken"`
	LastActionAt time.Time    `json:"last_action_at"`
	LastStatus   model.Status `json:"last_status,omitempty"`
	Done         bool         `json:"done"`
}

// HasActed reports whether the agent has any counted event.
func (s Stat) HasActed() bool {
	return s.TurnsTaken > 0
}

// Standing is one agent's place in the queue.
type Standing struct {
	Position int         `json:"position"`
	Agent    model.Agent `json:"agent"`
	Stat
}

// Ignored counts events excluded from the fold.
type Ignored struct {
	UnknownAgent  int `json:"unknown_agent"`
	UnknownStatus int `json:"unknown_status"`
}

// Total returns the number of excluded events.
func (i Ignored) Total() int {
	return i.UnknownAgent + i.UnknownStatus
}

// Queue is the ranked roster.
type Queue struct {
	Policy    Policy       `json:"policy"`
	Window    cycle.Window `json:"window"`
	MinTurns  int          `json:"min_turns"`
	Standings []Standing   `json:"standings"`
	Ignored   Ignored      `json:"ignored"`
}

// Next returns the agent at the head of the queue.
func (q Queue) Next() (Standing, bool) {
	if len(q.Standings) == 0 {
		return Standing{}, false
	}
	return q.Standings[0], true
}

// Lookup returns the standing of the agent with the given id.
func (q Queue) Lookup(agentID string) (Standing, bool) {
	for _, s := range q.Standings {
		if s.Agent.ID == agentID {
			return s, true
		}
	}
	return Standing{}, false
}

// Ranker ranks agents under a fixed balance policy. A Ranker holds no
// mutable state and is safe for concurrent use.
type Ranker struct {
	policy Policy
}

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithPolicy selects the balance policy. Unknown values are ignored.
func WithPolicy(p Policy) Option {
	return func(r *Ranker) {
		if p == PolicyAllTime || p == PolicyCycle {
			r.policy = p
		}
	}
}

// NewRanker creates a Ranker using PolicyAllTime unless overridden.
func NewRanker(opts ...Option) *Ranker {
	r := &Ranker{policy: PolicyAllTime}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured balance policy.
func (r *Ranker) Policy() Policy {
	return r.policy
}

// Rank orders agents by fairness. window is only consulted by PolicyCycle
// and is echoed back on the Queue.
func (r *Ranker) Rank(agents []model.Agent, events []model.AssignmentEvent, window cycle.Window) Queue {
	stats, minTurns, ignored := tally(agents, events, r.policy, window)

	standings := make([]Standing, len(agents))
	for i, a := range agents {
		standings[i] = Standing{Agent: a, Stat: stats[i]}
	}
	slices.SortStableFunc(standings, compareStandings)
	for i := range standings {
		standings[i].Position = i + 1
	}

	return Queue{
		Policy:    r.policy,
		Window:    window,
		MinTurns:  minTurns,
		Standings: standings,
		Ignored:   ignored,
	}
}

// Rank orders agents with PolicyAllTime.
func Rank(agents []model.Agent, events []model.AssignmentEvent) Queue {
	return NewRanker().Rank(agents, events, cycle.Window{})
}

// Tally folds events into per-agent stats keyed by agent id, including the
// Done flag. Agents sharing an id share a stat.
func Tally(agents []model.Agent, events []model.AssignmentEvent, policy Policy, window cycle.Window) (map[string]Stat, Ignored) {
	stats, _, ignored := tally(agents, events, policy, window)
	out := make(map[string]Stat, len(agents))
	for i, a := range agents {
		out[a.ID] = stats[i]
	}
	return out, ignored
}

// tally returns stats aligned with agents, the minimum turn count and the
// ignored-event counters. The fold is commutative: every update is a sum or
// a max, with ties on LastActionAt settled by status rather than arrival.
func tally(agents []model.Agent, events []model.AssignmentEvent, policy Policy, window cycle.Window) ([]Stat, int, Ignored) {
	byID := make(map[string][]int, len(agents))
	for i, a := range agents {
		byID[a.ID] = append(byID[a.ID], i)
	}

	stats := make([]Stat, len(agents))
	var ignored Ignored
	for _, e := range events {
		idx, ok := byID[e.AgentID]
		if !ok {
			ignored.UnknownAgent++
			continue
		}
		if !e.Status.Valid() {
			ignored.UnknownStatus++
			continue
		}
		credit := e.Status == model.StatusAccepted &&
			(policy != PolicyCycle || window.Contains(e.Date))
		for _, i := range idx {
			stats[i] = apply(stats[i], e, credit)
		}
	}

	minTurns := 0
	for i, s := range stats {
		if i == 0 || s.TurnsTaken < minTurns {
			minTurns = s.TurnsTaken
		}
	}
	for i := range stats {
		stats[i].Done = stats[i].TurnsTaken > minTurns
	}
	return stats, minTurns, ignored
}

// apply returns s with e folded in.
func apply(s Stat, e model.AssignmentEvent, credit bool) Stat {
	if credit {
		s.Balance++
	}
	s.TurnsTaken++
	switch {
	case s.LastStatus == "" || e.CreatedAt.After(s.LastActionAt):
		s.LastActionAt = e.CreatedAt
		s.LastStatus = e.Status
	case e.CreatedAt.Equal(s.LastActionAt) && e.Status == model.StatusAccepted:
		s.LastStatus = model.StatusAccepted
	}
	return s
}

func compareStandings(a, b Standing) int {
	if a.Done != b.Done {
		if a.Done {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(a.Balance, b.Balance); c != 0 {
		return c
	}
	return strings.Compare(a.Agent.Name, b.Agent.Name)
}
