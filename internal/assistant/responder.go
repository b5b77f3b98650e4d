package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/support-intel/internal/conversation"
)

// ResponseRequest is what a Responder needs to phrase the next assistant message.
type ResponseRequest struct {
	ConversationID   string
	Category         conversation.Category
	CollectedFields  conversation.Fields
	NextMissingField string
	Question         string
	Escalated        bool
	History          []conversation.Turn
}

// Responder turns engine state into reply prose.
type Responder interface {
	Compose(ctx context.Context, req ResponseRequest) (string, error)
}

const (
	closingEscalated = "担当者に引き継ぎました。追ってご連絡いたします。"
	closingComplete  = "ご回答ありがとうございました。内容を確認のうえご連絡いたします。"
	fallbackQuestion = "詳しい状況を教えていただけますか？"
)

// TemplateResponder asks the configured question for the next missing field and
// otherwise closes with a summary of what was collected.
type TemplateResponder struct{}

var _ Responder = TemplateResponder{}

func (TemplateResponder) Compose(_ context.Context, req ResponseRequest) (string, error) {
	if req.NextMissingField != "" && !req.Escalated {
		if q := strings.TrimSpace(req.Question); q != "" {
			return q, nil
		}
		return fallbackQuestion, nil
	}
	return Summary(req.CollectedFields, req.Escalated), nil
}

// Summary renders the closing message with one line per collected field.
func Summary(fields conversation.Fields, escalated bool) string {
	var b strings.Builder
	if escalated {
		b.WriteString(closingEscalated)
	} else {
		b.WriteString(closingComplete)
	}
	keys := fields.Keys()
	if len(keys) == 0 {
		return b.String()
	}
	b.WriteString("\n\nお伺いした内容:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, fields[k].String())
	}
	return b.String()
}
