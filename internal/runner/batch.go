package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
	"github.com/hochfrequenz/claude-issue-loop/internal/notify"
	"github.com/hochfrequenz/claude-issue-loop/internal/prioritize"
	"github.com/hochfrequenz/claude-issue-loop/internal/stop"
)

// IssueRunner runs one issue to a terminal status
type IssueRunner interface {
	Run(ctx context.Context, issue domain.Issue) domain.RunResult
}

// Selector picks the next issue from the remaining candidates
type Selector interface {
	Select(ctx context.Context, candidates []domain.Issue, last *domain.CompletedTaskContext) prioritize.Selection
}

// Summary aggregates one batch
type Summary struct {
	Results       []domain.RunResult
	Skipped       int
	Completed     int
	Failed        int
	Exhausted     int
	TotalDuration time.Duration

	// Stopped reports that a stop request ended or outlasted the batch.
	// The batch does not clear the request; that is the session owner's
	// call.
	Stopped bool
}

// Batch processes a queue of issues serially, consulting the selector
// before each pick and honoring graceful stop between issues.
type Batch struct {
	runner   IssueRunner
	selector Selector // nil means queue order
	ctrl     *stop.Controller
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewBatch creates a Batch
func NewBatch(r IssueRunner, sel Selector, ctrl *stop.Controller, notifier notify.Notifier, logger *zap.Logger) *Batch {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Batch{
		runner:   r,
		selector: sel,
		ctrl:     ctrl,
		notifier: notifier,
		logger:   logger,
	}
}

// Run works through the queue until it is empty or a stop is requested.
// The controller is shared with the surrounding session (signal handler,
// watch loop), so the batch only reads it and never resets it.
func (b *Batch) Run(ctx context.Context, queue []domain.Issue) Summary {
	var sum Summary
	var last *domain.CompletedTaskContext
	remaining := append([]domain.Issue(nil), queue...)

	for len(remaining) > 0 {
		if b.ctrl.StopRequested() {
			sum.Skipped = len(remaining)
			b.logger.Info("stop requested, skipping remaining issues", zap.Int("skipped", sum.Skipped))
			break
		}

		next := b.pick(ctx, remaining, last)
		remaining = removeIssue(remaining, next.Identifier)

		b.ctrl.SetProcessing(true)
		res := b.runner.Run(ctx, next)
		b.ctrl.SetProcessing(false)

		sum.Results = append(sum.Results, res)
		sum.TotalDuration += res.Duration
		switch res.Status {
		case domain.RunCompleted:
			sum.Completed++
		case domain.RunMaxIterations:
			sum.Exhausted++
		default:
			sum.Failed++
		}

		// Every finished run becomes context for the next pick; the
		// status tells the prioritizer how the attempt went.
		last = &domain.CompletedTaskContext{
			Identifier: res.Issue.Identifier,
			Title:      res.Issue.Title,
			Status:     res.Status,
			Duration:   res.Duration,
			Iterations: res.Iterations,
		}

		if err := b.notifier.Send(notify.ForRunResult(res)); err != nil {
			b.logger.Warn("failed to send notification", zap.Error(err))
		}
	}

	sum.Stopped = b.ctrl.StopRequested()

	b.logger.Info("batch finished",
		zap.Int("completed", sum.Completed),
		zap.Int("exhausted", sum.Exhausted),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("total_duration", sum.TotalDuration),
	)
	return sum
}

func (b *Batch) pick(ctx context.Context, remaining []domain.Issue, last *domain.CompletedTaskContext) domain.Issue {
	if b.selector == nil {
		return remaining[0]
	}

	sel := b.selector.Select(ctx, remaining, last)
	if sel.FallbackReason != "" {
		b.logger.Info("prioritizer fell back to queue order", zap.String("reason", sel.FallbackReason))
	} else if sel.Decision != nil {
		b.logger.Info("next issue selected",
			zap.String("issue", sel.Decision.SelectedIssueID),
			zap.String("reasoning", sel.Decision.Reasoning),
		)
	}
	return sel.Issue
}

// removeIssue drops the issue with the given identifier. If it is
// somehow absent, the head is dropped so the batch always makes
// progress.
func removeIssue(queue []domain.Issue, identifier string) []domain.Issue {
	for i, iss := range queue {
		if iss.Identifier == identifier {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue[1:]
}
