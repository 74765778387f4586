// Package rotation resolves which of the four shift teams is on duty on a
// given calendar day.
package rotation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/dutyqueue/internal/domain/model"
)

// ErrUnknownTeam is returned when parsing an unrecognised team label.
var ErrUnknownTeam = errors.New("unknown team")

// Team identifies one of the four rotating shift teams.
type Team int

// Teams in rotation order starting at the anchor day.
const (
	Delta Team = iota
	Alfa
	Bravo
	Charlie
)

// Period is the number of days after which the rotation repeats.
const Period = 4

var teamNames = [Period]string{"DELTA", "ALFA", "BRAVO", "CHARLIE"}

// String returns the upper-case team label.
func (t Team) String() string {
	if t < 0 || int(t) >= Period {
		return fmt.Sprintf("Team(%d)", int(t))
	}
	return teamNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Team) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Team) UnmarshalText(b []byte) error {
	parsed, err := ParseTeam(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTeam parses a team label case-insensitively.
func ParseTeam(s string) (Team, error) {
	label := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range teamNames {
		if name == label {
			return Team(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTeam, s)
}

// DefaultAnchor is the day on which Delta is known to be on duty.
var DefaultAnchor = model.NewDate(2025, 12, 17)

// Resolver maps calendar days onto the team rotation.
type Resolver struct {
	anchor model.Date
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithAnchor sets the day on which Delta is on duty.
func WithAnchor(anchor model.Date) Option {
	return func(r *Resolver) {
		if !anchor.IsZero() {
			r.anchor = anchor
		}
	}
}

// NewResolver creates a Resolver anchored at DefaultAnchor unless overridden.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{anchor: DefaultAnchor}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Anchor returns the configured anchor day.
func (r *Resolver) Anchor() model.Date {
	return r.anchor
}

// OnDuty returns the team on duty on d. The difference is taken between day
// ordinals, never instants, so daylight-saving changes cannot shift it.
func (r *Resolver) OnDuty(d model.Date) Team {
	diff := r.anchor.DaysUntil(d)
	return Team(((diff % Period) + Period) % Period)
}

var defaultResolver = NewResolver()

// OnDuty returns the team on duty on d using DefaultAnchor.
func OnDuty(d model.Date) Team {
	return defaultResolver.OnDuty(d)
}
