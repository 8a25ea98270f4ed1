// Package watch polls the tracker for newly labeled issues and hands
// them to the batch loop. The poller survives fetch failures; only a
// stop request or context cancellation ends it.
package watch

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
	"github.com/hochfrequenz/claude-issue-loop/internal/ratelimit"
	"github.com/hochfrequenz/claude-issue-loop/internal/runner"
	"github.com/hochfrequenz/claude-issue-loop/internal/stop"
	"github.com/hochfrequenz/claude-issue-loop/internal/tracker"
)

// backoff kicks in after this many consecutive fetch failures
const failureThreshold = 3

// maxBackoff caps the slowed-down poll interval
const maxBackoff = 600 * time.Second

// BatchRunner processes one queue of issues
type BatchRunner interface {
	Run(ctx context.Context, queue []domain.Issue) runner.Summary
}

// IssueLister is the slice of the tracker the poller needs
type IssueLister interface {
	FetchIssuesByLabel(ctx context.Context, scope tracker.TeamScope, label string) ([]domain.Issue, error)
}

// Options configures the poll loop
type Options struct {
	Scope    tracker.TeamScope
	Label    string
	Interval time.Duration

	// Window, when set, replaces the fixed interval: the poller sleeps
	// until the schedule's next activation instead.
	Window cron.Schedule
}

// Poller runs the watch loop
type Poller struct {
	lister IssueLister
	batch  BatchRunner
	ctrl   *stop.Controller
	logger *zap.Logger
	opts   Options

	// sleep is injectable so tests can observe wait durations
	sleep func(ctx context.Context, d time.Duration) error

	processed map[string]struct{}
	failures  int
}

// New creates a Poller
func New(lister IssueLister, batch BatchRunner, ctrl *stop.Controller, opts Options, logger *zap.Logger) *Poller {
	return &Poller{
		lister: lister,
		batch:  batch,
		ctrl:   ctrl,
		logger: logger,
		opts:   opts,
		sleep: func(ctx context.Context, d time.Duration) error {
			return ratelimit.Countdown(ctx, d, func(remaining int) {
				logger.Debug("next poll", zap.Int("seconds_remaining", remaining))
			})
		},
		processed: make(map[string]struct{}),
	}
}

// Run polls until a stop is requested or the context is canceled.
// Fetch failures slow the loop down but never end it.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("watching for issues",
		zap.String("label", p.opts.Label),
		zap.Duration("interval", p.opts.Interval),
	)

	for {
		if p.ctrl.StopRequested() {
			p.logger.Info("stop requested, ending watch")
			return nil
		}

		p.poll(ctx)

		// A stop may have arrived while the batch was running; end the
		// session before sleeping instead of polling again.
		if p.ctrl.StopRequested() {
			p.logger.Info("stop requested, ending watch")
			return nil
		}

		if err := p.sleep(ctx, p.wait()); err != nil {
			return err
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	issues, err := p.lister.FetchIssuesByLabel(ctx, p.opts.Scope, p.opts.Label)
	if err != nil {
		p.failures++
		p.logger.Warn("failed to fetch issues",
			zap.Error(err),
			zap.Int("consecutive_failures", p.failures),
		)
		return
	}
	p.failures = 0

	queue := p.filter(issues)
	if len(queue) == 0 {
		p.logger.Debug("no actionable issues")
		return
	}

	p.logger.Info("picked up issues", zap.Int("count", len(queue)))
	sum := p.batch.Run(ctx, queue)

	// Attempted issues stay off the queue even when they failed; a
	// failed run needs a human look, not an automatic retry storm.
	for _, res := range sum.Results {
		p.processed[res.Issue.Identifier] = struct{}{}
	}
}

// filter drops already-attempted and non-actionable issues
func (p *Poller) filter(issues []domain.Issue) []domain.Issue {
	var queue []domain.Issue
	for _, iss := range issues {
		if _, done := p.processed[iss.Identifier]; done {
			continue
		}
		if !iss.IsActionable() {
			continue
		}
		queue = append(queue, iss)
	}
	return queue
}

// wait computes the next pause. Repeated fetch failures double the
// interval up to a cap; a configured window schedule overrides the
// fixed interval entirely.
func (p *Poller) wait() time.Duration {
	if p.opts.Window != nil {
		return time.Until(p.opts.Window.Next(time.Now()))
	}

	if p.failures >= failureThreshold {
		backoff := p.opts.Interval * 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		return backoff
	}
	return p.opts.Interval
}
