package tracker

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// Tracker maintains per-category collected fields, turn count and urgency.
// All methods are pure: Update returns a new conversation value.
type Tracker struct {
	schema *Schema
	logger *logging.Logger
}

// New returns a tracker for schema; a nil schema uses the embedded default.
func New(schema *Schema, logger *logging.Logger) *Tracker {
	if schema == nil {
		schema = DefaultSchema()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{schema: schema, logger: logger}
}

// Schema exposes the loaded configuration.
func (t *Tracker) Schema() *Schema {
	return t.schema
}

// TurnCap is the user-turn count at which collection stops.
func (t *Tracker) TurnCap() int {
	return t.schema.TurnCap
}

// Categorize picks the category whose keywords appear most often in the first
// message. Ties keep declaration order; no hits yield the default category.
func (t *Tracker) Categorize(text string) conversation.Category {
	text = normalize(text)
	best := conversation.Category(t.schema.DefaultCategory)
	bestHits := 0
	for _, c := range t.schema.Categories {
		hits := 0
		for _, m := range c.keywords {
			if m.match(text) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = conversation.Category(c.Name), hits
		}
	}
	return best
}

// ExtractFields runs every field rule of category over text. Fields without a
// match are omitted.
func (t *Tracker) ExtractFields(text string, category conversation.Category) conversation.Fields {
	out := conversation.Fields{}
	text = strings.TrimSpace(normalize(text))
	if text == "" {
		return out
	}
	c := t.schema.Category(category)
	for name, rule := range c.Fields {
		if value, ok := rule.extract(text); ok {
			out[name] = value
		}
	}
	return out
}

// HasUrgency reports whether text contains any urgency keyword.
func (t *Tracker) HasUrgency(text string) bool {
	text = normalize(text)
	for _, m := range t.schema.urgency {
		if m.match(text) {
			return true
		}
	}
	return false
}

// Update applies one turn. User turns categorize a new conversation, merge
// extracted fields, increment TurnCount by exactly one and may raise urgency.
// Assistant turns are only appended.
func (t *Tracker) Update(conv *conversation.Conversation, turn conversation.Turn) *conversation.Conversation {
	if conv == nil {
		conv = conversation.New("", turn.Timestamp)
	}
	next := conv.Clone()
	if next.CollectedFields == nil {
		next.CollectedFields = conversation.Fields{}
	}
	next.Turns = append(next.Turns, turn)

	if turn.Role != conversation.RoleUser {
		return next
	}

	if next.Category == "" {
		next.Category = t.Categorize(turn.Content)
	}
	next.TurnCount++
	if !next.Urgency && t.HasUrgency(turn.Content) {
		next.Urgency = true
	}

	extracted := t.ExtractFields(turn.Content, next.Category)
	next.CollectedFields = conversation.MergeFields(next.CollectedFields, extracted)

	t.logger.Debug("tracker: turn applied",
		"conversation_id", next.ID,
		"category", next.Category,
		"turn_count", next.TurnCount,
		"extracted", extracted.Keys(),
	)
	return next
}

// NextMissingEssentialField returns the first essential field in priority
// order without a value. ok is false when every essential field is present;
// optional fields are never returned.
func (t *Tracker) NextMissingEssentialField(conv *conversation.Conversation) (string, bool) {
	c := t.schema.Category(conv.Category)
	for _, field := range c.PriorityOrder {
		if !c.IsEssential(field) {
			continue
		}
		if value, ok := conv.CollectedFields[field]; !ok || value.IsEmpty() {
			return field, true
		}
	}
	return "", false
}

// IsComplete reports whether every essential field has a non-empty value.
func (t *Tracker) IsComplete(conv *conversation.Conversation) bool {
	_, missing := t.NextMissingEssentialField(conv)
	return !missing
}

// ShouldContinue reports whether another collection question may be asked.
// It is always false at or beyond the turn cap.
func (t *Tracker) ShouldContinue(conv *conversation.Conversation) bool {
	if conv.TurnCount >= t.schema.TurnCap {
		return false
	}
	if conv.Terminal() || conv.Urgency {
		return false
	}
	return !t.IsComplete(conv)
}

// Question returns the template for field, or empty when none is configured.
func (t *Tracker) Question(category conversation.Category, field string) string {
	return t.schema.Category(category).Questions[field]
}

// Channel returns the routing channel for category.
func (t *Tracker) Channel(category conversation.Category) string {
	return t.schema.Category(category).Channel
}

var amountPattern = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*(億|万|千|[kK])?`)

// BudgetAmount parses a budget string such as "月額200万円", "$5k" or "3千円"
// into a plain number.
func BudgetAmount(value string) (float64, bool) {
	value = normalize(value)
	m := amountPattern.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || math.IsNaN(n) {
		return 0, false
	}
	switch m[2] {
	case "億":
		n *= 100_000_000
	case "万":
		n *= 10_000
	case "千", "k", "K":
		n *= 1_000
	}
	return n, true
}

// normalize folds full-width ASCII (digits, latin letters, punctuation) to
// half-width so "２００万円" and "ＳＥＯ" match the same rules as their ASCII forms.
func normalize(s string) string {
	return norm.NFKC.String(s)
}
