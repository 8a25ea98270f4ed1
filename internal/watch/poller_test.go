package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
	"github.com/hochfrequenz/claude-issue-loop/internal/runner"
	"github.com/hochfrequenz/claude-issue-loop/internal/stop"
	"github.com/hochfrequenz/claude-issue-loop/internal/tracker"
)

type fakeLister struct {
	batches []fetchResult
	calls   int
}

type fetchResult struct {
	issues []domain.Issue
	err    error
}

func (f *fakeLister) FetchIssuesByLabel(ctx context.Context, scope tracker.TeamScope, label string) ([]domain.Issue, error) {
	i := f.calls
	f.calls++
	if i >= len(f.batches) {
		return nil, nil
	}
	return f.batches[i].issues, f.batches[i].err
}

type recordingBatch struct {
	queues [][]string
}

func (b *recordingBatch) Run(ctx context.Context, queue []domain.Issue) runner.Summary {
	ids := make([]string, len(queue))
	results := make([]domain.RunResult, len(queue))
	for i, iss := range queue {
		ids[i] = iss.Identifier
		results[i] = domain.RunResult{Issue: iss, Status: domain.RunCompleted}
	}
	b.queues = append(b.queues, ids)
	return runner.Summary{Results: results, Completed: len(queue)}
}

var errDone = errors.New("test done")

// runPoller runs p for exactly rounds polls, capturing wait durations.
func runPoller(t *testing.T, p *Poller, rounds int) []time.Duration {
	t.Helper()
	var waits []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) >= rounds {
			return errDone
		}
		return nil
	}
	if err := p.Run(context.Background()); !errors.Is(err, errDone) {
		t.Fatalf("Run = %v, want sentinel", err)
	}
	return waits
}

func actionable(id string) domain.Issue {
	return domain.Issue{
		Identifier: id,
		State:      domain.State{Name: "Todo", Type: domain.StateUnstarted},
	}
}

func testOptions() Options {
	return Options{Label: "agent-ready", Interval: 60 * time.Second}
}

func TestPollerFiltersProcessedAndNonActionable(t *testing.T) {
	inReview := domain.Issue{
		Identifier: "ENG-2",
		State:      domain.State{Name: "In Review", Type: domain.StateStarted},
	}
	done := domain.Issue{
		Identifier: "ENG-3",
		State:      domain.State{Name: "Done", Type: domain.StateCompleted},
	}
	lister := &fakeLister{batches: []fetchResult{
		{issues: []domain.Issue{actionable("ENG-1"), inReview, done}},
		{issues: []domain.Issue{actionable("ENG-1"), actionable("ENG-4")}},
	}}
	batch := &recordingBatch{}
	p := New(lister, batch, stop.NewController(), testOptions(), zap.NewNop())

	runPoller(t, p, 2)

	if len(batch.queues) != 2 {
		t.Fatalf("batches = %v", batch.queues)
	}
	if len(batch.queues[0]) != 1 || batch.queues[0][0] != "ENG-1" {
		t.Errorf("first queue = %v, want [ENG-1]", batch.queues[0])
	}
	// ENG-1 was already attempted; only ENG-4 is new.
	if len(batch.queues[1]) != 1 || batch.queues[1][0] != "ENG-4" {
		t.Errorf("second queue = %v, want [ENG-4]", batch.queues[1])
	}
}

func TestPollerSurvivesFetchFailures(t *testing.T) {
	lister := &fakeLister{batches: []fetchResult{
		{err: errors.New("api down")},
		{err: errors.New("api down")},
		{issues: []domain.Issue{actionable("ENG-1")}},
	}}
	batch := &recordingBatch{}
	p := New(lister, batch, stop.NewController(), testOptions(), zap.NewNop())

	runPoller(t, p, 3)

	if len(batch.queues) != 1 {
		t.Errorf("batches = %v, want one after recovery", batch.queues)
	}
}

func TestPollerBacksOffAfterRepeatedFailures(t *testing.T) {
	fail := fetchResult{err: errors.New("api down")}
	lister := &fakeLister{batches: []fetchResult{fail, fail, fail, fail, {}}}
	p := New(lister, &recordingBatch{}, stop.NewController(), testOptions(), zap.NewNop())

	waits := runPoller(t, p, 5)

	interval := 60 * time.Second
	want := []time.Duration{interval, interval, 2 * interval, 2 * interval, interval}
	for i, w := range want {
		if waits[i] != w {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], w)
		}
	}
}

func TestPollerBackoffIsCapped(t *testing.T) {
	fail := fetchResult{err: errors.New("api down")}
	lister := &fakeLister{batches: []fetchResult{fail, fail, fail}}
	opts := testOptions()
	opts.Interval = 500 * time.Second
	p := New(lister, &recordingBatch{}, stop.NewController(), opts, zap.NewNop())

	waits := runPoller(t, p, 3)

	if waits[2] != 600*time.Second {
		t.Errorf("backed-off wait = %v, want 600s cap", waits[2])
	}
}

// stoppingBatch simulates an interrupt landing while an issue is being
// processed: the stop is requested inside the batch, which finishes the
// issue and reports it stopped.
type stoppingBatch struct {
	ctrl *stop.Controller
	runs int
}

func (b *stoppingBatch) Run(ctx context.Context, queue []domain.Issue) runner.Summary {
	b.runs++
	b.ctrl.RequestStop()
	results := make([]domain.RunResult, len(queue))
	for i, iss := range queue {
		results[i] = domain.RunResult{Issue: iss, Status: domain.RunCompleted}
	}
	return runner.Summary{Results: results, Completed: len(queue), Stopped: true}
}

func TestPollerEndsWhenStopArrivesDuringBatch(t *testing.T) {
	ctrl := stop.NewController()
	lister := &fakeLister{batches: []fetchResult{
		{issues: []domain.Issue{actionable("ENG-1")}},
		{issues: []domain.Issue{actionable("ENG-2")}},
	}}
	batch := &stoppingBatch{ctrl: ctrl}
	p := New(lister, batch, ctrl, testOptions(), zap.NewNop())

	slept := 0
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return nil
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if batch.runs != 1 {
		t.Errorf("batch ran %d times after a stop, want 1", batch.runs)
	}
	if slept != 0 {
		t.Errorf("poller slept %d times after the stop", slept)
	}
}

func TestPollerIdleCountdownTicks(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := New(&fakeLister{}, &recordingBatch{}, stop.NewController(), testOptions(), zap.New(core))

	if err := p.sleep(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("next poll").Len() == 0 {
		t.Error("no countdown ticks logged during the idle wait")
	}
}

func TestPollerStopsOnRequest(t *testing.T) {
	ctrl := stop.NewController()
	ctrl.RequestStop()
	p := New(&fakeLister{}, &recordingBatch{}, ctrl, testOptions(), zap.NewNop())

	if err := p.Run(context.Background()); err != nil {
		t.Errorf("Run = %v, want nil on graceful stop", err)
	}
}
