package escalation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/internal/needs"
	"github.com/wolfman30/support-intel/internal/sentiment"
)

// Trigger reasons, in the order they are evaluated.
const (
	ReasonUrgency   = "urgency keyword detected"
	ReasonTurnLimit = "turn limit reached"
	ReasonComplete  = "fields complete"
)

// BudgetField is the collected field checked against the budget threshold.
const BudgetField = "budget_range"

// Decision is the outcome of one evaluation.
type Decision struct {
	Required         bool                  `json:"required"`
	AlreadyEscalated bool                  `json:"already_escalated"`
	Reasons          []string              `json:"reasons,omitempty"`
	Priority         conversation.Priority `json:"priority,omitempty"`
	EscalationID     string                `json:"escalation_id,omitempty"`
	Channel          string                `json:"channel,omitempty"`
	Targets          []string              `json:"targets,omitempty"`
	Mention          string                `json:"mention,omitempty"`
	Sentiment        *sentiment.Analysis   `json:"sentiment,omitempty"`
	Needs            []needs.Candidate     `json:"needs,omitempty"`
	Warnings         []string              `json:"warnings,omitempty"`
}

// AlreadyEscalatedDecision is returned for conversations that are already terminal.
func AlreadyEscalatedDecision() Decision {
	return Decision{Required: false, AlreadyEscalated: true}
}

// NewEscalationID returns ESC-<UTC timestamp>-<8 hex>. The prefix sorts by time.
func NewEscalationID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("ESC-%s-%s", now.UTC().Format("20060102T150405Z"), suffix)
}
