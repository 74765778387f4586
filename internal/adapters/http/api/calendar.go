package api

import (
	"context"
	"net/http"

	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/types"
)

// CalendarDependencies defines the interface for cycle, rotation and
// calendar reads.
type CalendarDependencies interface {
	Today() model.Date
	Cycle(ref *model.Date) types.CycleView
	TeamOnDuty(d model.Date) types.TeamView
	Calendar(ctx context.Context, ref *model.Date) (types.Calendar, error)
}

// CalendarHandler handles cycle, team and calendar requests.
type CalendarHandler struct {
	deps CalendarDependencies
}

// NewCalendarHandler creates a new calendar handler.
func NewCalendarHandler(deps CalendarDependencies) *CalendarHandler {
	return &CalendarHandler{deps: deps}
}

// HandleGetCycle handles GET /cycle?date=YYYY-MM-DD requests.
func (h *CalendarHandler) HandleGetCycle(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_cycle"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, op, http.MethodGet)
		return
	}
	ref, err := dateParam(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Cycle(ref))
}

// HandleGetTeam handles GET /team?date=YYYY-MM-DD requests.
func (h *CalendarHandler) HandleGetTeam(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_team"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, op, http.MethodGet)
		return
	}
	ref, err := dateParam(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	d := h.deps.Today()
	if ref != nil {
		d = *ref
	}
	writeJSON(w, http.StatusOK, h.deps.TeamOnDuty(d))
}

// HandleGetCalendar handles GET /calendar?date=YYYY-MM-DD requests.
func (h *CalendarHandler) HandleGetCalendar(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_calendar"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, op, http.MethodGet)
		return
	}
	ref, err := dateParam(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	cal, err := h.deps.Calendar(r.Context(), ref)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, cal)
}
