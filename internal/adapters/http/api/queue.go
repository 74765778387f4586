package api

import (
	"context"
	"net/http"

	"github.com/okian/dutyqueue/internal/domain/fairness"
	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/types"
)

// QueueDependencies defines the interface for queue reads.
type QueueDependencies interface {
	Queue(ctx context.Context, ref *model.Date) (types.QueueView, error)
	SuggestedAgent(ctx context.Context) (fairness.Standing, error)
}

// QueueHandler handles queue requests.
type QueueHandler struct {
	deps QueueDependencies
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(deps QueueDependencies) *QueueHandler {
	return &QueueHandler{deps: deps}
}

// HandleGetQueue handles GET /queue?date=YYYY-MM-DD requests.
func (h *QueueHandler) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_queue"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, op, http.MethodGet)
		return
	}
	ref, err := dateParam(r)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	q, err := h.deps.Queue(r.Context(), ref)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleGetNext handles GET /queue/next, the agent to offer the next slot.
func (h *QueueHandler) HandleGetNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_next"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, op, http.MethodGet)
		return
	}
	head, err := h.deps.SuggestedAgent(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, head)
}
