package runner

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
	"github.com/hochfrequenz/claude-issue-loop/internal/prioritize"
	"github.com/hochfrequenz/claude-issue-loop/internal/stop"
)

type fakeRunner struct {
	statuses map[string]domain.RunStatus
	ran      []string
	onRun    func(id string)
}

func (f *fakeRunner) Run(ctx context.Context, issue domain.Issue) domain.RunResult {
	f.ran = append(f.ran, issue.Identifier)
	if f.onRun != nil {
		f.onRun(issue.Identifier)
	}
	status := domain.RunCompleted
	if s, ok := f.statuses[issue.Identifier]; ok {
		status = s
	}
	return domain.RunResult{Issue: issue, Status: status, Iterations: 1}
}

type fixedSelector struct {
	order []string
	seen  [][]string
	last  []*domain.CompletedTaskContext
}

func (s *fixedSelector) Select(ctx context.Context, candidates []domain.Issue, last *domain.CompletedTaskContext) prioritize.Selection {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Identifier
	}
	s.seen = append(s.seen, ids)
	s.last = append(s.last, last)

	want := s.order[len(s.seen)-1]
	for _, c := range candidates {
		if c.Identifier == want {
			return prioritize.Selection{Issue: c}
		}
	}
	return prioritize.Selection{Issue: candidates[0], FallbackReason: "not found"}
}

func queue(ids ...string) []domain.Issue {
	out := make([]domain.Issue, len(ids))
	for i, id := range ids {
		out[i] = domain.Issue{Identifier: id, Title: "Task " + id}
	}
	return out
}

func TestBatchQueueOrderWithoutSelector(t *testing.T) {
	r := &fakeRunner{}
	ctrl := stop.NewController()
	b := NewBatch(r, nil, ctrl, nil, zap.NewNop())

	sum := b.Run(context.Background(), queue("A", "B", "C"))

	if len(r.ran) != 3 || r.ran[0] != "A" || r.ran[1] != "B" || r.ran[2] != "C" {
		t.Errorf("ran = %v, want [A B C]", r.ran)
	}
	if sum.Completed != 3 || sum.Skipped != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestBatchRemovesSelectedIssueByIdentity(t *testing.T) {
	r := &fakeRunner{}
	sel := &fixedSelector{order: []string{"B", "C", "A"}}
	b := NewBatch(r, sel, stop.NewController(), nil, zap.NewNop())

	b.Run(context.Background(), queue("A", "B", "C"))

	if len(r.ran) != 3 || r.ran[0] != "B" || r.ran[1] != "C" || r.ran[2] != "A" {
		t.Errorf("ran = %v, want [B C A]", r.ran)
	}
	// After B is picked it must no longer be a candidate.
	if len(sel.seen) < 2 {
		t.Fatalf("selector consulted %d times", len(sel.seen))
	}
	for _, id := range sel.seen[1] {
		if id == "B" {
			t.Errorf("second round still offered B: %v", sel.seen[1])
		}
	}
}

func TestBatchPassesLastCompletedContext(t *testing.T) {
	r := &fakeRunner{}
	sel := &fixedSelector{order: []string{"A", "B"}}
	b := NewBatch(r, sel, stop.NewController(), nil, zap.NewNop())

	b.Run(context.Background(), queue("A", "B"))

	if sel.last[0] != nil {
		t.Errorf("first round last = %+v, want nil", sel.last[0])
	}
	if sel.last[1] == nil || sel.last[1].Identifier != "A" {
		t.Errorf("second round last = %+v, want A", sel.last[1])
	}
}

func TestBatchContextCarriesFailedStatus(t *testing.T) {
	r := &fakeRunner{statuses: map[string]domain.RunStatus{"A": domain.RunError}}
	sel := &fixedSelector{order: []string{"A", "B"}}
	b := NewBatch(r, sel, stop.NewController(), nil, zap.NewNop())

	sum := b.Run(context.Background(), queue("A", "B"))

	if sel.last[1] == nil || sel.last[1].Identifier != "A" {
		t.Fatalf("second round last = %+v, want A", sel.last[1])
	}
	if sel.last[1].Status != domain.RunError {
		t.Errorf("last Status = %q, want error", sel.last[1].Status)
	}
	if sum.Failed != 1 || sum.Completed != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestBatchStopsGracefullyBetweenIssues(t *testing.T) {
	ctrl := stop.NewController()
	r := &fakeRunner{onRun: func(id string) { ctrl.RequestStop() }}
	b := NewBatch(r, nil, ctrl, nil, zap.NewNop())

	sum := b.Run(context.Background(), queue("A", "B", "C"))

	if len(r.ran) != 1 {
		t.Errorf("ran = %v, want only A", r.ran)
	}
	if sum.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", sum.Skipped)
	}
	if !sum.Stopped {
		t.Error("Stopped = false, want true")
	}
	// The batch only reads the shared controller; the stop request must
	// survive for the session owner (signal handler, watch loop) to see.
	if !ctrl.StopRequested() {
		t.Error("stop request was cleared by the batch")
	}
}

func TestBatchStopDuringFinalIssueIsReported(t *testing.T) {
	ctrl := stop.NewController()
	r := &fakeRunner{onRun: func(id string) { ctrl.RequestStop() }}
	b := NewBatch(r, nil, ctrl, nil, zap.NewNop())

	sum := b.Run(context.Background(), queue("A"))

	if !sum.Stopped {
		t.Error("Stopped = false, want true when the stop lands during the last issue")
	}
	if sum.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", sum.Skipped)
	}
}

func TestBatchStatusCounts(t *testing.T) {
	r := &fakeRunner{statuses: map[string]domain.RunStatus{
		"A": domain.RunCompleted,
		"B": domain.RunMaxIterations,
		"C": domain.RunError,
	}}
	b := NewBatch(r, nil, stop.NewController(), nil, zap.NewNop())

	sum := b.Run(context.Background(), queue("A", "B", "C"))

	if sum.Completed != 1 || sum.Exhausted != 1 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(sum.Results) != 3 {
		t.Errorf("Results = %d entries, want 3", len(sum.Results))
	}
}
