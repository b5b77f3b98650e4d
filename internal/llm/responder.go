package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/support-intel/internal/assistant"
	"github.com/wolfman30/support-intel/pkg/logging"
)

const (
	responderSystem = `You are a polite customer support assistant for a Japanese company.
Reply in the customer's language in at most three sentences.
Never promise prices, dates or outcomes.`
	maxHistoryTurns = 10
)

// Responder phrases replies with the model and falls back to another
// Responder when the call fails.
type Responder struct {
	client    Client
	model     string
	maxTokens int32
	fallback  assistant.Responder
	logger    *logging.Logger
}

var _ assistant.Responder = (*Responder)(nil)

func NewResponder(client Client, model string, fallback assistant.Responder, logger *logging.Logger) *Responder {
	if fallback == nil {
		fallback = assistant.TemplateResponder{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Responder{client: client, model: model, maxTokens: 400, fallback: fallback, logger: logger}
}

func (r *Responder) Compose(ctx context.Context, req assistant.ResponseRequest) (string, error) {
	if r.client == nil {
		return r.fallback.Compose(ctx, req)
	}
	resp, err := r.client.Complete(ctx, Request{
		Model:       r.model,
		System:      []string{responderSystem, instruction(req)},
		Messages:    history(req),
		MaxTokens:   r.maxTokens,
		Temperature: 0.3,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		r.logger.Warn("llm responder failed, using fallback", "conversation_id", req.ConversationID, "error", err)
		return r.fallback.Compose(ctx, req)
	}
	return resp.Text, nil
}

func instruction(req assistant.ResponseRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Inquiry category: %s.\n", req.Category)
	if keys := req.CollectedFields.Keys(); len(keys) > 0 {
		b.WriteString("Already collected:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.CollectedFields[k].String())
		}
	}
	switch {
	case req.Escalated:
		b.WriteString("The conversation has been handed to a human specialist. Thank the customer, summarize what was collected, and say a specialist will follow up.")
	case req.NextMissingField != "":
		fmt.Fprintf(&b, "Ask only for %q. Suggested wording: %s", req.NextMissingField, req.Question)
	default:
		b.WriteString("All required information is collected. Thank the customer and close the conversation.")
	}
	return b.String()
}

// history converts the last turns into chat messages. Converse requires the
// first message to come from the user, so leading assistant turns are dropped.
func history(req assistant.ResponseRequest) []Message {
	turns := req.History
	if len(turns) > maxHistoryTurns {
		turns = turns[len(turns)-maxHistoryTurns:]
	}
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		role := RoleUser
		if string(t.Role) == RoleAssistant {
			role = RoleAssistant
		}
		if len(out) == 0 && role != RoleUser {
			continue
		}
		out = append(out, Message{Role: role, Content: t.Content})
	}
	if len(out) == 0 {
		out = append(out, Message{Role: RoleUser, Content: "(no message)"})
	}
	return out
}
