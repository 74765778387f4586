// Package simulation drives a running dutyqueue service through its HTTP API
// the way operators do: offer each slot to the head of the queue, record
// whether it was accepted or refused, and check the queue after every round.
package simulation

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/dutyqueue/internal/domain/model"
)

// Default configuration values.
const (
	DefaultBaseURL     = "http://localhost:9080"
	DefaultAgents      = 8
	DefaultRounds      = 100
	DefaultRefuseRate  = 0.25
	DefaultReplayEvery = 10
	DefaultWorkers     = 4
	DefaultTimeout     = 10 * time.Second
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service
	AdminToken  string        // Sent as X-Admin-Token when seeding agents
	Agents      int           // Agents to add before playing
	Rounds      int           // Slots to offer
	RefuseRate  float64       // Probability an offer is refused, in [0,1]
	ReplayEvery int           // Resend every Nth assignment with the same key; 0 disables
	Seed        uint64        // Seed for the accept/refuse draws
	Workers     int           // Concurrent requests while seeding
	Timeout     time.Duration // HTTP request timeout
	OutputFile  string        // Optional JSON transcript of every round
	Verbose     bool          // Log every round
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Agents:      DefaultAgents,
		Rounds:      DefaultRounds,
		RefuseRate:  DefaultRefuseRate,
		ReplayEvery: DefaultReplayEvery,
		Seed:        uint64(time.Now().UnixNano()), //nolint:gosec // a negative clock is not a concern
		Workers:     DefaultWorkers,
		Timeout:     DefaultTimeout,
	}
}

// Validate checks field values.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: base url must not be empty", ErrInvalidConfig)
	case c.Agents < 0:
		return fmt.Errorf("%w: agents must not be negative", ErrInvalidConfig)
	case c.Rounds < 0:
		return fmt.Errorf("%w: rounds must not be negative", ErrInvalidConfig)
	case c.RefuseRate < 0 || c.RefuseRate > 1:
		return fmt.Errorf("%w: refuse rate %.2f outside [0,1]", ErrInvalidConfig, c.RefuseRate)
	case c.ReplayEvery < 0:
		return fmt.Errorf("%w: replay interval must not be negative", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Round is one offered slot as played.
type Round struct {
	N         int          `json:"n"`
	AgentID   string       `json:"agent_id"`
	AgentName string       `json:"agent_name"`
	Date      model.Date   `json:"date"`
	Shift     model.Shift  `json:"shift"`
	Status    model.Status `json:"status"`
	Key       string       `json:"idempotency_key"`
	Replayed  bool         `json:"replayed"`
}

// Stats holds run statistics.
type Stats struct {
	AgentsSeeded int
	Rounds       int
	Accepted     int
	Refused      int
	Replays      int
	Violations   []string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

// OK reports whether every check passed.
func (s *Stats) OK() bool {
	return len(s.Violations) == 0
}
