package conversation

import "strings"

// Priority ranks how quickly a human needs to pick up an escalation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities; unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether p is at or above floor.
func (p Priority) AtLeast(floor Priority) bool {
	return p.Rank() >= floor.Rank()
}

// MaxPriority returns the higher of the two priorities.
func MaxPriority(a, b Priority) Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParsePriority normalizes a priority string, defaulting to low.
func ParsePriority(raw string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if p.Rank() == 0 {
		return PriorityLow
	}
	return p
}
