package model

import (
	"fmt"
	"strings"
	"time"
)

// Agent is a roster member eligible for extra-duty slots.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Shift is the kind of duty slot offered.
type Shift string

// Shift kinds.
const (
	ShiftDay   Shift = "day"
	ShiftNight Shift = "night"
)

// Valid reports whether s is a known shift kind.
func (s Shift) Valid() bool {
	return s == ShiftDay || s == ShiftNight
}

// ParseShift accepts the canonical names and the Portuguese labels used by
// operators ("diurno", "noturno"), case-insensitively.
func ParseShift(s string) (Shift, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "diurno":
		return ShiftDay, nil
	case "night", "noturno":
		return ShiftNight, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidShift, s)
}

// Status is the outcome of an offered slot.
type Status string

// Outcome statuses.
const (
	StatusAccepted Status = "accepted"
	StatusRefused  Status = "refused"
)

// Valid reports whether s is a known outcome.
func (s Status) Valid() bool {
	return s == StatusAccepted || s == StatusRefused
}

// ParseStatus accepts "accepted"/"refused" and the Portuguese
// "aceito"/"recusado", case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accepted", "aceito":
		return StatusAccepted, nil
	case "refused", "recusado":
		return StatusRefused, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// AssignmentEvent records one resolved offer of a duty slot. Events are
// immutable; AgentID is a reference and may outlive the agent it names.
type AssignmentEvent struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Date      Date      `json:"date"`
	Shift     Shift     `json:"shift"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
