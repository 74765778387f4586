package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/dutyqueue/internal/domain/model"
)

// AgentDependencies defines the interface for roster operations.
type AgentDependencies interface {
	Agents(ctx context.Context) ([]model.Agent, error)
	AddAgent(ctx context.Context, name string) (model.Agent, error)
	RemoveAgent(ctx context.Context, id string) error
}

// AgentHandler handles roster requests.
type AgentHandler struct {
	deps   AgentDependencies
	create http.HandlerFunc
	delete http.HandlerFunc
}

// NewAgentHandler creates a new agent handler. Non-empty adminToken guards
// roster changes.
func NewAgentHandler(deps AgentDependencies, adminToken string) *AgentHandler {
	h := &AgentHandler{deps: deps}
	h.create = AdminMiddleware(adminToken, h.handleCreate)
	h.delete = AdminMiddleware(adminToken, h.handleDelete)
	return h
}

// agentRequest mirrors the OpenAPI schema for POST /agents.
type agentRequest struct {
	Name string `json:"name"`
}

// HandleAgents handles GET and POST /agents.
func (h *AgentHandler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		methodNotAllowed(w, "api.agents", http.MethodGet, http.MethodPost)
	}
}

func (h *AgentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_agents"
	agents, err := h.deps.Agents(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if agents == nil {
		agents = []model.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *AgentHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_agent"
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	a, err := h.deps.AddAgent(r.Context(), req.Name)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// HandleAgent handles DELETE /agents/{id}.
func (h *AgentHandler) HandleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, "api.agent", http.MethodDelete)
		return
	}
	h.delete(w, r)
}

func (h *AgentHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_agent"
	id, ok := pathID(r, "/agents/")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.RemoveAgent(r.Context(), id); err != nil {
		writeFailure(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
