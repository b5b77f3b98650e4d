package conversation

import (
	"strings"
	"time"
)

// Category identifies which collection schema and routing a conversation uses.
type Category string

const (
	CategoryMarketing Category = "marketing"
	CategoryTech      Category = "tech"
	CategoryGeneral   Category = "general"
)

// Role tags who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole normalizes a role string; ok is false for anything other than user/assistant.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	default:
		return "", false
	}
}

// State is the lifecycle position of a conversation.
type State string

const (
	StateNew        State = "NEW"
	StateCollecting State = "COLLECTING"
	StateEscalated  State = "ESCALATED"
	StateCompleted  State = "COMPLETED"
)

// Turn is one message in a conversation. Turns are append-only.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Escalation is the hand-off record. Once set on a conversation it is never replaced.
type Escalation struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Priority  Priority  `json:"priority"`
	Reasons   []string  `json:"reasons"`
	Channel   string    `json:"channel"`
	Targets   []string  `json:"targets,omitempty"`
	Mention   string    `json:"mention,omitempty"`
}

// Conversation is the unit of state the engine reads and commits.
type Conversation struct {
	ID              string      `json:"id"`
	Category        Category    `json:"category,omitempty"`
	TurnCount       int         `json:"turn_count"`
	CollectedFields Fields      `json:"collected_fields"`
	Urgency         bool        `json:"urgency"`
	Escalation      *Escalation `json:"escalation,omitempty"`
	ClosedAt        *time.Time  `json:"closed_at,omitempty"`
	Turns           []Turn      `json:"turns"`

	// Version is the optimistic concurrency token; 0 means never persisted.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty conversation ready for its first turn.
func New(id string, now time.Time) *Conversation {
	return &Conversation{
		ID:              id,
		CollectedFields: Fields{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// State derives the lifecycle state from the stored fields.
func (c *Conversation) State() State {
	switch {
	case c == nil:
		return StateNew
	case c.Escalation != nil:
		return StateEscalated
	case c.ClosedAt != nil:
		return StateCompleted
	case c.TurnCount == 0:
		return StateNew
	default:
		return StateCollecting
	}
}

// Terminal reports whether no further transition is allowed.
func (c *Conversation) Terminal() bool {
	s := c.State()
	return s == StateEscalated || s == StateCompleted
}

// UserTurns returns the user-authored turns in order.
func (c *Conversation) UserTurns() []Turn {
	if c == nil {
		return nil
	}
	out := make([]Turn, 0, len(c.Turns))
	for _, t := range c.Turns {
		if t.Role == RoleUser {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.CollectedFields = c.CollectedFields.Clone()
	out.Turns = append([]Turn(nil), c.Turns...)
	if c.Escalation != nil {
		esc := *c.Escalation
		esc.Reasons = append([]string(nil), c.Escalation.Reasons...)
		esc.Targets = append([]string(nil), c.Escalation.Targets...)
		out.Escalation = &esc
	}
	if c.ClosedAt != nil {
		closed := *c.ClosedAt
		out.ClosedAt = &closed
	}
	return &out
}
