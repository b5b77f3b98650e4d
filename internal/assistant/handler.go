package assistant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/internal/escalation"
	httpmiddleware "github.com/wolfman30/support-intel/internal/http/middleware"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// Handler wires HTTP requests to the assistant service.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type turnBody struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// PostTurn handles POST /v1/conversations/{id}/turns.
func (h *Handler) PostTurn(w http.ResponseWriter, r *http.Request) {
	var body turnBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("failed to decode turn request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.HandleTurn(r.Context(), TurnRequest{
		ConversationID: chi.URLParam(r, "id"),
		Role:           body.Role,
		Text:           body.Text,
	})
	if err != nil {
		h.fail(w, "failed to handle turn", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetConversation handles GET /v1/conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.service.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "failed to load conversation", err)
		return
	}
	h.writeJSON(w, http.StatusOK, conversationView{Conversation: conv, State: conv.State()})
}

// Evaluate handles POST /v1/conversations/{id}/evaluate.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	h.logOperator(r, "evaluate")
	d, err := h.service.Evaluate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "failed to evaluate conversation", err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// Complete handles POST /v1/conversations/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.logOperator(r, "complete")
	conv, err := h.service.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "failed to complete conversation", err)
		return
	}
	h.writeJSON(w, http.StatusOK, conversationView{Conversation: conv, State: conv.State()})
}

func (h *Handler) logOperator(r *http.Request, action string) {
	if operator, ok := httpmiddleware.OperatorFromContext(r.Context()); ok {
		h.logger.Info("operator action", "action", action, "operator", operator, "conversation_id", chi.URLParam(r, "id"))
	}
}

type conversationView struct {
	*conversation.Conversation
	State conversation.State `json:"state"`
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	} else {
		h.logger.Info(msg, "error", err, "status", status)
	}
	h.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, escalation.ErrPersistentConflict), errors.Is(err, escalation.ErrAlreadyEscalated):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
