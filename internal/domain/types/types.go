// Package types contains the read models shared by the service, the HTTP
// handlers and the CLI.
package types

import (
	"time"

	"github.com/okian/dutyqueue/internal/domain/cycle"
	"github.com/okian/dutyqueue/internal/domain/fairness"
	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/rotation"
)

// weekdayLabels are the short pt-BR day names shown on the calendar.
var weekdayLabels = [...]string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}

// WeekdayLabel returns the short pt-BR label for w.
func WeekdayLabel(w time.Weekday) string {
	return weekdayLabels[w%7]
}

// AssignmentView is an assignment as placed on a calendar day.
type AssignmentView struct {
	ID        string       `json:"id"`
	AgentID   string       `json:"agent_id"`
	AgentName string       `json:"agent_name,omitempty"`
	Shift     model.Shift  `json:"shift"`
	Status    model.Status `json:"status"`
}

// CalendarDay is one day of a cycle.
type CalendarDay struct {
	Date        model.Date       `json:"date"`
	Weekday     string           `json:"weekday"`
	Weekend     bool             `json:"weekend"`
	Team        rotation.Team    `json:"team"`
	Assignments []AssignmentView `json:"assignments"`
}

// Calendar is a cycle window laid out day by day.
type Calendar struct {
	Window cycle.Window  `json:"window"`
	Label  string        `json:"label"`
	Days   []CalendarDay `json:"days"`
}

// TeamView answers which team is on duty on a date.
type TeamView struct {
	Date model.Date    `json:"date"`
	Team rotation.Team `json:"team"`
}

// CycleView describes a window and its neighbours.
type CycleView struct {
	Window cycle.Window `json:"window"`
	Label  string       `json:"label"`
	Days   int          `json:"days"`
	Prev   cycle.Window `json:"prev"`
	Next   cycle.Window `json:"next"`
}

// NewCycleView builds the view of w.
func NewCycleView(w cycle.Window) CycleView {
	return CycleView{
		Window: w,
		Label:  w.Label(),
		Days:   w.Len(),
		Prev:   w.Prev(),
		Next:   w.Next(),
	}
}

// QueueView is the ranked queue for the window containing a reference date.
type QueueView struct {
	Label string `json:"label"`
	fairness.Queue
}

// Stats is a point-in-time summary of the service.
type Stats struct {
	Agents         int              `json:"agents"`
	Assignments    int              `json:"assignments"`
	Ignored        fairness.Ignored `json:"ignored"`
	Policy         fairness.Policy  `json:"policy"`
	Recomputes     int64            `json:"recomputes"`
	LastRefresh    time.Time        `json:"last_refresh"`
	IdempotentKeys int64            `json:"idempotent_keys"`
	Today          model.Date       `json:"today"`
	TeamOnDuty     rotation.Team    `json:"team_on_duty"`
}

// BuildCalendar lays w out day by day. Each day carries the team from onDuty
// and the assignments dated on it, in input order, excluding refused ones.
// Agent names are resolved against agents; deleted agents keep an empty name.
func BuildCalendar(
	w cycle.Window,
	onDuty func(model.Date) rotation.Team,
	agents []model.Agent,
	events []model.AssignmentEvent,
) Calendar {
	names := make(map[string]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}

	byDate := make(map[model.Date][]AssignmentView)
	for _, e := range events {
		if e.Status == model.StatusRefused || !w.Contains(e.Date) {
			continue
		}
		byDate[e.Date] = append(byDate[e.Date], AssignmentView{
			ID:        e.ID,
			AgentID:   e.AgentID,
			AgentName: names[e.AgentID],
			Shift:     e.Shift,
			Status:    e.Status,
		})
	}

	days := make([]CalendarDay, 0, w.Len())
	for d := range w.Days() {
		wd := d.Weekday()
		views := byDate[d]
		if views == nil {
			views = []AssignmentView{}
		}
		days = append(days, CalendarDay{
			Date:        d,
			Weekday:     WeekdayLabel(wd),
			Weekend:     wd == time.Saturday || wd == time.Sunday,
			Team:        onDuty(d),
			Assignments: views,
		})
	}

	return Calendar{Window: w, Label: w.Label(), Days: days}
}
