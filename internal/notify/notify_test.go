package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
)

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Send(n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestForRunResult(t *testing.T) {
	completed := ForRunResult(domain.RunResult{
		Issue:      domain.Issue{Identifier: "ENG-1"},
		Status:     domain.RunCompleted,
		Iterations: 2,
		Duration:   30 * time.Second,
	})
	if completed.Type != NotifySuccess {
		t.Errorf("completed Type = %v, want success", completed.Type)
	}
	if completed.Issue != "ENG-1" {
		t.Errorf("Issue = %q", completed.Issue)
	}

	exhausted := ForRunResult(domain.RunResult{
		Issue:  domain.Issue{Identifier: "ENG-2"},
		Status: domain.RunMaxIterations,
	})
	if exhausted.Type != NotifyWarning {
		t.Errorf("exhausted Type = %v, want warning", exhausted.Type)
	}

	failed := ForRunResult(domain.RunResult{
		Issue:  domain.Issue{Identifier: "ENG-3"},
		Status: domain.RunError,
		Error:  "agent spawn: not found",
	})
	if failed.Type != NotifyError {
		t.Errorf("failed Type = %v, want error", failed.Type)
	}
	if failed.Message != "agent spawn: not found" {
		t.Errorf("failed Message = %q", failed.Message)
	}
}

func TestMultiNotifier(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("b down")}
	c := &recordingNotifier{}

	multi := NewMultiNotifier(a, b, c)
	err := multi.Send(Notification{Title: "x"})

	if err == nil {
		t.Error("Send error = nil, want error from b")
	}
	for i, r := range []*recordingNotifier{a, b, c} {
		if len(r.sent) != 1 {
			t.Errorf("notifier %d received %d notifications, want 1", i, len(r.sent))
		}
	}
}

func TestNoopNotifier(t *testing.T) {
	if err := (NoopNotifier{}).Send(Notification{}); err != nil {
		t.Errorf("NoopNotifier.Send = %v", err)
	}
}
