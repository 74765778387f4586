// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/dutyqueue/internal/app"
	"github.com/okian/dutyqueue/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	QueueDependencies
	CalendarDependencies
	AgentDependencies
	AssignmentDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	queueHandler      *QueueHandler
	calendarHandler   *CalendarHandler
	agentHandler      *AgentHandler
	assignmentHandler *AssignmentHandler
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	adminToken string
}

// WithAdminToken requires X-Admin-Token on roster changes and assignment
// deletion.
func WithAdminToken(token string) ServerOption {
	return func(o *serverOptions) {
		o.adminToken = token
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...ServerOption) *Server {
	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(deps),
		queueHandler:      NewQueueHandler(deps),
		calendarHandler:   NewCalendarHandler(deps),
		agentHandler:      NewAgentHandler(deps, o.adminToken),
		assignmentHandler: NewAssignmentHandler(deps, o.adminToken),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/queue", MetricsMiddleware(s.queueHandler.HandleGetQueue, "queue"))
	mux.HandleFunc("/queue/next", MetricsMiddleware(s.queueHandler.HandleGetNext, "queue_next"))
	mux.HandleFunc("/cycle", MetricsMiddleware(s.calendarHandler.HandleGetCycle, "cycle"))
	mux.HandleFunc("/team", MetricsMiddleware(s.calendarHandler.HandleGetTeam, "team"))
	mux.HandleFunc("/calendar", MetricsMiddleware(s.calendarHandler.HandleGetCalendar, "calendar"))
	mux.HandleFunc("/agents", MetricsMiddleware(s.agentHandler.HandleAgents, "agents"))
	mux.HandleFunc("/agents/", MetricsMiddleware(s.agentHandler.HandleAgent, "agent"))
	mux.HandleFunc("/assignments", MetricsMiddleware(s.assignmentHandler.HandleAssignments, "assignments"))
	mux.HandleFunc("/assignments/", MetricsMiddleware(s.assignmentHandler.HandleAssignment, "assignment"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status and code by its sentinel kind.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidAssignment),
		errors.Is(err, model.ErrInvalidDate),
		errors.Is(err, model.ErrInvalidShift),
		errors.Is(err, model.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrAgentNotFound),
		errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrNoAgents):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, service.ErrRequestInFlight):
		writeError(w, http.StatusConflict, "in_flight", Wrap(op, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

func methodNotAllowed(w http.ResponseWriter, op string, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
}

// dateParam reads the optional ?date=YYYY-MM-DD query parameter.
func dateParam(r *http.Request) (*model.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return nil, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// pathID extracts the single path segment after prefix.
func pathID(r *http.Request, prefix string) (string, bool) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
