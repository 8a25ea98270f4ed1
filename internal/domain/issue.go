package domain

import "strings"

// Priority is the issue priority ordinal, urgent first.
type Priority int

const (
	PriorityUrgent Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityNone
)

// String returns the canonical lowercase name
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "none"
	}
}

// ParsePriority maps a priority name to its ordinal, defaulting to none
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "urgent", "highest", "blocker":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "medium", "normal":
		return PriorityMedium
	case "low", "lowest":
		return PriorityLow
	default:
		return PriorityNone
	}
}

// StateType is the coarse classification of a tracker workflow state
type StateType string

const (
	StateUnstarted StateType = "unstarted"
	StateStarted   StateType = "started"
	StateCompleted StateType = "completed"
	StateCanceled  StateType = "canceled"
	StateUnknown   StateType = "unknown"
)

// State is a tracker workflow state: the provider-specific name plus
// a coarse type the orchestrator can reason about
type State struct {
	Name string
	Type StateType
}

// Issue is an immutable snapshot of a tracker work item.
// Re-fetching a fresh snapshot is the caller's responsibility.
type Issue struct {
	Identifier  string
	Title       string
	Description string
	Priority    Priority
	State       State
	Labels      []string
	URL         string
}

// HasLabel reports whether the issue carries the given label
func (i Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// IsActionable reports whether the issue is still worth running the agent
// against. Completed, canceled and in-review issues are not actionable.
func (i Issue) IsActionable() bool {
	switch i.State.Type {
	case StateCompleted, StateCanceled:
		return false
	}
	if strings.Contains(strings.ToLower(i.State.Name), "review") {
		return false
	}
	return true
}
