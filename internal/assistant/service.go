package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/internal/escalation"
	"github.com/wolfman30/support-intel/internal/needs"
	"github.com/wolfman30/support-intel/internal/observability/metrics"
	"github.com/wolfman30/support-intel/internal/sentiment"
	"github.com/wolfman30/support-intel/internal/tracker"
	"github.com/wolfman30/support-intel/pkg/logging"
)

var serviceTracer = otel.Tracer("support-intel/assistant")

var (
	// ErrInvalidRole rejects turns whose role is not user or assistant.
	ErrInvalidRole = errors.New("assistant: invalid role")
	// ErrInvalidRequest rejects turns without a conversation id or text.
	ErrInvalidRequest = errors.New("assistant: invalid request")
)

const maxAppendAttempts = 4

// TurnRequest is one incoming message.
type TurnRequest struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Text           string `json:"text"`
}

// TurnResponse is the engine state after a turn has been recorded.
type TurnResponse struct {
	ConversationID  string                `json:"conversation_id"`
	Category        conversation.Category `json:"category"`
	State           conversation.State    `json:"state"`
	TurnCount       int                   `json:"turn_count"`
	CollectedFields conversation.Fields   `json:"collected_fields"`
	NextQuestion    string                `json:"next_question,omitempty"`
	Summary         string                `json:"summary,omitempty"`
	Continue        bool                  `json:"continue"`
	Escalation      escalation.Decision   `json:"escalation"`
	Sentiment       *sentiment.Analysis   `json:"sentiment,omitempty"`
	Needs           []needs.Candidate     `json:"needs,omitempty"`
}

// Service records turns and runs the escalation evaluation after each user turn.
type Service struct {
	store     conversation.Store
	tracker   *tracker.Tracker
	arbiter   *escalation.Arbiter
	responder Responder
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	now       func() time.Time
	locks     sync.Map // conversation id -> *sync.Mutex
}

// NewService wires the turn pipeline. A nil responder uses TemplateResponder.
func NewService(store conversation.Store, tr *tracker.Tracker, arbiter *escalation.Arbiter, responder Responder, m *metrics.ConversationMetrics, logger *logging.Logger) *Service {
	if store == nil {
		panic("assistant: store cannot be nil")
	}
	if arbiter == nil {
		panic("assistant: arbiter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if tr == nil {
		tr = tracker.New(nil, logger)
	}
	if responder == nil {
		responder = TemplateResponder{}
	}
	return &Service{
		store:     store,
		tracker:   tr,
		arbiter:   arbiter,
		responder: responder,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleTurn appends the turn, updates collected state and, for user turns,
// evaluates escalation. Turns for the same conversation are serialized in-process.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	id := strings.TrimSpace(req.ConversationID)
	if id == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidRequest)
	}
	// Blank user text is still a turn: it is counted and scores neutral.
	text := strings.TrimSpace(req.Text)
	role, ok := conversation.ParseRole(req.Role)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	ctx, span := serviceTracer.Start(ctx, "assistant.handle_turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", id),
		attribute.String("turn.role", string(role)),
	)

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.appendTurn(ctx, id, conversation.Turn{Role: role, Content: text, Timestamp: s.now()})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return nil, err
	}
	s.metrics.ObserveTurn(string(role), string(conv.Category))

	var decision escalation.Decision
	if role == conversation.RoleUser {
		decision, err = s.arbiter.Evaluate(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "evaluate failed")
			return nil, err
		}
		if decision.Required {
			if conv, err = s.store.Get(ctx, id); err != nil {
				return nil, fmt.Errorf("assistant: reload %s: %w", id, err)
			}
		}
	}

	resp := s.respond(ctx, conv, decision)
	s.logger.WithConversation(id).Debug("turn handled",
		"role", role,
		"category", conv.Category,
		"turn_count", conv.TurnCount,
		"continue", resp.Continue,
		"escalated", decision.Required,
	)
	return resp, nil
}

func (s *Service) appendTurn(ctx context.Context, id string, turn conversation.Turn) (*conversation.Conversation, error) {
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		conv, err := s.store.Get(ctx, id)
		if errors.Is(err, conversation.ErrNotFound) {
			conv = conversation.New(id, turn.Timestamp)
		} else if err != nil {
			return nil, fmt.Errorf("assistant: read %s: %w", id, err)
		}

		next := s.tracker.Update(conv, turn)
		next.UpdatedAt = turn.Timestamp
		err = s.store.Save(ctx, next)
		if errors.Is(err, conversation.ErrConflict) {
			s.metrics.ObserveConflict("append")
			s.logger.Warn("turn append conflict, retrying", "conversation_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("assistant: save %s: %w", id, err)
		}
		return next, nil
	}
	return nil, fmt.Errorf("%w: appending turn to %s", escalation.ErrPersistentConflict, id)
}

func (s *Service) respond(ctx context.Context, conv *conversation.Conversation, d escalation.Decision) *TurnResponse {
	resp := &TurnResponse{
		ConversationID:  conv.ID,
		Category:        conv.Category,
		State:           conv.State(),
		TurnCount:       conv.TurnCount,
		CollectedFields: conv.CollectedFields.Clone(),
		Escalation:      d,
		Sentiment:       d.Sentiment,
		Needs:           d.Needs,
	}
	resp.Continue = !d.Required && !d.AlreadyEscalated && s.tracker.ShouldContinue(conv)

	req := ResponseRequest{
		ConversationID:  conv.ID,
		Category:        conv.Category,
		CollectedFields: resp.CollectedFields,
		Escalated:       conv.Escalation != nil,
		History:         conv.Turns,
	}
	if resp.Continue {
		if field, ok := s.tracker.NextMissingEssentialField(conv); ok {
			req.NextMissingField = field
			req.Question = s.tracker.Question(conv.Category, field)
		}
	}

	text, err := s.responder.Compose(ctx, req)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			s.logger.Warn("responder failed, using template", "conversation_id", conv.ID, "error", err)
		}
		text, _ = TemplateResponder{}.Compose(ctx, req)
	}
	if resp.Continue {
		resp.NextQuestion = text
	} else {
		resp.Summary = text
	}
	return resp
}

// GetConversation returns the stored conversation.
func (s *Service) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("assistant: read %s: %w", id, err)
	}
	return conv, nil
}

// Evaluate runs the escalation evaluation out of band, e.g. from an operator console.
func (s *Service) Evaluate(ctx context.Context, id string) (escalation.Decision, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.arbiter.Evaluate(ctx, id)
}

// Complete closes the conversation without a hand-off.
func (s *Service) Complete(ctx context.Context, id string) (*conversation.Conversation, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.arbiter.Complete(ctx, id)
}

func (s *Service) lockFor(id string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
