package domain

import "time"

// RunStatus is the terminal state of one issue run
type RunStatus string

const (
	RunCompleted     RunStatus = "completed"
	RunMaxIterations RunStatus = "max_iterations"
	RunError         RunStatus = "error"
)

// IterationOutcome is the result of a single agent invocation.
// It is folded into the run's accumulated log and then discarded.
type IterationOutcome struct {
	Output        string
	ExitCode      int
	Duration      time.Duration
	IsComplete    bool
	IsRateLimited bool
	HasError      bool
}

// RunResult is produced once per issue per loop invocation.
// The loop creates it with status max_iterations, mutates it while
// running, and finalizes it on exit; afterwards it is immutable.
type RunResult struct {
	Issue      Issue
	Status     RunStatus
	Iterations int
	Duration   time.Duration
	Error      string
}

// HistoryEntry is the durable projection of a RunResult.
// Written once per run, never mutated afterwards.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Identifier  string    `json:"identifier"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Status      RunStatus `json:"status"`
	Iterations  int       `json:"iterations"`
	TotalMs     int64     `json:"totalDurationMs"`
	Error       string    `json:"error,omitempty"`
}

// CompletedTaskContext summarizes the most recently finished issue for
// the next prioritization call. Discarded at batch end.
type CompletedTaskContext struct {
	Identifier string
	Title      string
	Status     RunStatus
	Duration   time.Duration
	Iterations int
}

// Confidence expresses how sure the prioritization model is
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether the confidence is one of the known levels
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// PrioritizationDecision is the validated output of one prioritization
// call. Consumed immediately, never persisted.
type PrioritizationDecision struct {
	SelectedIssueID string     `json:"selectedIssueId"`
	Reasoning       string     `json:"reasoning"`
	Confidence      Confidence `json:"confidence"`
}
