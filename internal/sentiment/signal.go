package sentiment

import (
	"fmt"
	"strings"

	"github.com/wolfman30/support-intel/internal/conversation"
)

// Escalation thresholds for the conversation-level signal.
const (
	ThresholdTotalScore    = -3.0
	ThresholdFrustrated    = 2
	ThresholdUrgent        = 1
	NegativeStreakLength   = 3
	ThresholdKeywordRepeat = 2
)

// Signal factors, stable identifiers for downstream routing and metrics.
const (
	FactorSentimentThreshold = "sentiment_threshold"
	FactorRepeatedFrustrated = "repeated_frustration"
	FactorUrgentRequest      = "urgent_request"
	FactorNegativeStreak     = "negative_streak"
	FactorRecurringComplaint = "recurring_complaint"
)

// Signal is the sentiment layer's escalation recommendation.
// Priority is the highest floor proposed by any check that fired.
type Signal struct {
	Required bool                  `json:"required"`
	Reasons  []string              `json:"reasons,omitempty"`
	Priority conversation.Priority `json:"priority"`
	Factors  []string              `json:"factors,omitempty"`
}

// raise records a fired check. The priority only ever moves up.
func (s *Signal) raise(floor conversation.Priority, factor, reason string) {
	s.Required = true
	s.Reasons = append(s.Reasons, reason)
	s.Factors = append(s.Factors, factor)
	s.Priority = conversation.MaxPriority(s.Priority, floor)
}

func (c *Classifier) escalationSignal(history []Score, texts []string) Signal {
	sig := Signal{Priority: conversation.PriorityLow}
	if len(history) == 0 {
		return sig
	}

	total := 0.0
	frustrated, urgent := 0, 0
	for _, s := range history {
		total += s.WeightedScore
		switch s.Category {
		case Frustrated:
			frustrated++
		case Urgent:
			urgent++
		}
	}

	if total <= ThresholdTotalScore {
		sig.raise(conversation.PriorityHigh, FactorSentimentThreshold,
			fmt.Sprintf("sentiment threshold breached (total %.1f <= %.1f)", total, ThresholdTotalScore))
	}
	if frustrated >= ThresholdFrustrated {
		sig.raise(conversation.PriorityHigh, FactorRepeatedFrustrated,
			fmt.Sprintf("customer frustrated in %d turns", frustrated))
	}
	if urgent >= ThresholdUrgent {
		sig.raise(conversation.PriorityUrgent, FactorUrgentRequest,
			fmt.Sprintf("urgent request detected in %d turn(s)", urgent))
	}
	if negativeStreak(history, NegativeStreakLength) {
		sig.raise(conversation.PriorityHigh, FactorNegativeStreak,
			fmt.Sprintf("last %d turns were all negative", NegativeStreakLength))
	}
	if kw, n := c.recurringComplaint(texts); n >= ThresholdKeywordRepeat {
		sig.raise(conversation.PriorityMedium, FactorRecurringComplaint,
			fmt.Sprintf("complaint keyword %q repeated %d times", kw, n))
	}
	return sig
}

func negativeStreak(history []Score, n int) bool {
	if len(history) < n {
		return false
	}
	for _, s := range history[len(history)-n:] {
		if s.WeightedScore < 0 || s.Category == Negative || s.Category == Frustrated {
			continue
		}
		return false
	}
	return true
}

// recurringComplaint returns the most repeated negative or frustrated keyword
// across all user turns and its occurrence count.
func (c *Classifier) recurringComplaint(texts []string) (string, int) {
	joined := strings.Join(texts, "\n")
	lower := strings.ToLower(joined)
	best, bestCount := "", 0
	for _, cat := range []Category{Negative, Frustrated} {
		lx := c.byCat[cat]
		if lx == nil {
			continue
		}
		for _, kw := range lx.keywords {
			if n := kw.count(joined, lower); n > bestCount {
				best, bestCount = kw.label, n
			}
		}
	}
	return best, bestCount
}
