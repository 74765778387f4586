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

// IdempotencyKeyHeader lets clients retry POST /assignments safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// AssignmentDependencies defines the interface for history operations.
type AssignmentDependencies interface {
	Assignments(ctx context.Context) ([]model.AssignmentEvent, error)
	RecordAssignmentOnce(ctx context.Context, key string, req service.AssignmentRequest) (model.AssignmentEvent, bool, error)
	RemoveAssignment(ctx context.Context, id string) error
}

// AssignmentHandler handles assignment requests.
type AssignmentHandler struct {
	deps   AssignmentDependencies
	delete http.HandlerFunc
}

// NewAssignmentHandler creates a new assignment handler. Non-empty
// adminToken guards deletion; recording an outcome stays open to operators.
func NewAssignmentHandler(deps AssignmentDependencies, adminToken string) *AssignmentHandler {
	h := &AssignmentHandler{deps: deps}
	h.delete = AdminMiddleware(adminToken, h.handleDelete)
	return h
}

// assignmentRequest mirrors the OpenAPI schema for POST /assignments.
type assignmentRequest struct {
	AgentID string `json:"agent_id"`
	Date    string `json:"date"`
	Shift   string `json:"shift"`
	Status  string `json:"status"`
}

func (a assignmentRequest) parse() (service.AssignmentRequest, error) {
	if strings.TrimSpace(a.AgentID) == "" {
		return service.AssignmentRequest{}, errors.New("missing agent_id")
	}
	if strings.TrimSpace(a.Date) == "" {
		return service.AssignmentRequest{}, errors.New("missing date")
	}
	d, err := model.ParseDate(a.Date)
	if err != nil {
		return service.AssignmentRequest{}, err
	}
	shift, err := model.ParseShift(a.Shift)
	if err != nil {
		return service.AssignmentRequest{}, err
	}
	status, err := model.ParseStatus(a.Status)
	if err != nil {
		return service.AssignmentRequest{}, err
	}
	return service.AssignmentRequest{
		AgentID: strings.TrimSpace(a.AgentID),
		Date:    d,
		Shift:   shift,
		Status:  status,
	}, nil
}

type ackResponse struct {
	Status     string                `json:"status"`
	Duplicate  bool                  `json:"duplicate"`
	Assignment model.AssignmentEvent `json:"assignment"`
}

// HandleAssignments handles GET and POST /assignments.
func (h *AssignmentHandler) HandleAssignments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.handleRecord(w, r)
	default:
		methodNotAllowed(w, "api.assignments", http.MethodGet, http.MethodPost)
	}
}

func (h *AssignmentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_assignments"
	events, err := h.deps.Assignments(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if events == nil {
		events = []model.AssignmentEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *AssignmentHandler) handleRecord(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_assignment"
	var body assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req, err := body.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	e, dup, err := h.deps.RecordAssignmentOnce(r.Context(), key, req)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true, Assignment: e})
		return
	}
	writeJSON(w, http.StatusCreated, ackResponse{Status: "recorded", Assignment: e})
}

// HandleAssignment handles DELETE /assignments/{id}.
func (h *AssignmentHandler) HandleAssignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, "api.assignment", http.MethodDelete)
		return
	}
	h.delete(w, r)
}

func (h *AssignmentHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_assignment"
	id, ok := pathID(r, "/assignments/")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.RemoveAssignment(r.Context(), id); err != nil {
		writeFailure(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
