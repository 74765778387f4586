package simulation

import (
	"fmt"

	"github.com/okian/dutyqueue/internal/domain/fairness"
	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/types"
)

// checkQueue returns every ordering rule the queue breaks.
func checkQueue(q types.QueueView) []string {
	var out []string
	if len(q.Standings) == 0 {
		return nil
	}

	minTurns := q.Standings[0].TurnsTaken
	for _, s := range q.Standings {
		minTurns = min(minTurns, s.TurnsTaken)
	}
	if q.MinTurns != minTurns {
		out = append(out, fmt.Sprintf("min_turns is %d, smallest turns_taken is %d", q.MinTurns, minTurns))
	}

	for i, s := range q.Standings {
		if s.Position != i+1 {
			out = append(out, fmt.Sprintf("%s at index %d has position %d", s.Agent.Name, i, s.Position))
		}
		if s.Done != (s.TurnsTaken > minTurns) {
			out = append(out, fmt.Sprintf("%s done=%t with %d turns against minimum %d",
				s.Agent.Name, s.Done, s.TurnsTaken, minTurns))
		}
		if s.Balance > s.TurnsTaken {
			out = append(out, fmt.Sprintf("%s balance %d exceeds turns %d", s.Agent.Name, s.Balance, s.TurnsTaken))
		}
		if i > 0 && outOfOrder(q.Standings[i-1], s) {
			out = append(out, fmt.Sprintf("%s ranked after %s", q.Standings[i-1].Agent.Name, s.Agent.Name))
		}
	}
	return out
}

// outOfOrder reports whether b should have been ranked ahead of a.
func outOfOrder(a, b fairness.Standing) bool {
	if a.Done != b.Done {
		return a.Done
	}
	if a.Balance != b.Balance {
		return a.Balance > b.Balance
	}
	return a.Agent.Name > b.Agent.Name
}

// checkRound compares the standing of the agent who was offered the slot
// before and after the outcome was recorded.
func checkRound(before fairness.Standing, minBefore int, after types.QueueView, status model.Status) []string {
	var out []string
	name := before.Agent.Name

	if before.TurnsTaken != minBefore {
		out = append(out, fmt.Sprintf("head %s had %d turns while the minimum was %d", name, before.TurnsTaken, minBefore))
	}

	now, ok := after.Lookup(before.Agent.ID)
	if !ok {
		return append(out, fmt.Sprintf("%s missing from queue after round", name))
	}
	if now.TurnsTaken != before.TurnsTaken+1 {
		out = append(out, fmt.Sprintf("%s turns went %d -> %d", name, before.TurnsTaken, now.TurnsTaken))
	}
	wantBalance := before.Balance
	if status == model.StatusAccepted {
		wantBalance++
	}
	if now.Balance != wantBalance {
		out = append(out, fmt.Sprintf("%s balance went %d -> %d after %s", name, before.Balance, now.Balance, status))
	}
	if now.LastStatus != status {
		out = append(out, fmt.Sprintf("%s last status is %q, recorded %q", name, now.LastStatus, status))
	}
	return out
}
