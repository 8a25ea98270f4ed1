// Package runner drives the per-issue iteration loop and the batch loop
// around it. The runner owns the iteration budget and the terminal run
// status; everything after the loop (history, commit, ticket updates)
// is best-effort.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/analyze"
	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
	"github.com/hochfrequenz/claude-issue-loop/internal/executor"
	"github.com/hochfrequenz/claude-issue-loop/internal/history"
	"github.com/hochfrequenz/claude-issue-loop/internal/progress"
	"github.com/hochfrequenz/claude-issue-loop/internal/ratelimit"
	"github.com/hochfrequenz/claude-issue-loop/internal/vcs"
)

// TicketUpdater is the slice of the tracker the runner needs after a run
type TicketUpdater interface {
	AddComment(ctx context.Context, id, body string) error
	UpdateIssueState(ctx context.Context, id, stateName string) error
}

// HistoryWriter persists finished runs
type HistoryWriter interface {
	SaveRun(entry domain.HistoryEntry, outputLog string) error
}

// Options configures the iteration loop
type Options struct {
	MaxIterations int
	AgentTimeout  time.Duration
	Model         string
	ProgressPath  string
	ReviewState   string

	// MaxRateLimitRetries caps how many rate-limited invocations a run
	// tolerates. Zero means unbounded, matching the iteration budget
	// semantics: waiting out a rate limit never consumes an iteration.
	MaxRateLimitRetries int
}

// Runner executes the iteration loop for one issue at a time
type Runner struct {
	agent   executor.Agent
	tickets TicketUpdater
	repo    vcs.Committer
	history HistoryWriter
	logger  *zap.Logger
	opts    Options
}

// New creates a Runner
func New(agent executor.Agent, tickets TicketUpdater, repo vcs.Committer, hist HistoryWriter, opts Options, logger *zap.Logger) *Runner {
	return &Runner{
		agent:   agent,
		tickets: tickets,
		repo:    repo,
		history: hist,
		logger:  logger,
		opts:    opts,
	}
}

// Run drives the agent against one issue until it signals completion,
// the iteration budget is exhausted, or the invocation fails. The
// returned result is always usable; finalization failures are logged,
// not propagated.
func (r *Runner) Run(ctx context.Context, issue domain.Issue) domain.RunResult {
	startedAt := time.Now()
	res := domain.RunResult{Issue: issue, Status: domain.RunMaxIterations}
	var log strings.Builder

	if r.opts.ProgressPath != "" {
		if err := progress.Ensure(r.opts.ProgressPath, issue.Identifier); err != nil {
			r.logger.Warn("failed to prepare progress file", zap.Error(err))
		}
	}

	r.logger.Info("starting run",
		zap.String("issue", issue.Identifier),
		zap.String("title", issue.Title),
		zap.Int("max_iterations", r.opts.MaxIterations),
	)

	consumed := 0
	rateLimitRetries := 0

	for consumed < r.opts.MaxIterations {
		attempt := consumed + 1

		out, err := r.agent.Execute(ctx, executor.Invocation{
			Prompt:        r.buildPrompt(issue, attempt),
			Model:         r.opts.Model,
			Timeout:       r.opts.AgentTimeout,
			Iteration:     attempt,
			MaxIterations: r.opts.MaxIterations,
		})
		if err != nil {
			res.Status = domain.RunError
			res.Error = err.Error()
			break
		}

		fmt.Fprintf(&log, "=== Iteration %d ===\n%s\n", attempt, out.Output)

		signals := analyze.Output(out.Output)

		if signals.IsRateLimited {
			// A rate-limited invocation does not consume the budget:
			// the agent did no work.
			rateLimitRetries++
			if r.opts.MaxRateLimitRetries > 0 && rateLimitRetries > r.opts.MaxRateLimitRetries {
				res.Status = domain.RunError
				res.Error = fmt.Sprintf("gave up after %d rate-limited invocations", rateLimitRetries)
				break
			}

			wait, ok := ratelimit.ExtractWait(out.Output)
			if !ok {
				wait = ratelimit.DefaultWait
			}
			r.logger.Info("rate limited, waiting",
				zap.String("issue", issue.Identifier),
				zap.Duration("wait", wait),
			)
			if err := ratelimit.Countdown(ctx, wait, func(remaining int) {
				r.logger.Debug("rate limit countdown", zap.Int("seconds_remaining", remaining))
			}); err != nil {
				res.Status = domain.RunError
				res.Error = "canceled while waiting out a rate limit"
				break
			}
			continue
		}

		consumed++
		res.Iterations = consumed

		if out.ExitCode != 0 {
			// Advisory: the agent may recover on the next iteration.
			r.logger.Warn("agent exited non-zero",
				zap.String("issue", issue.Identifier),
				zap.Int("iteration", consumed),
				zap.Int("exit_code", out.ExitCode),
			)
		}

		if r.opts.ProgressPath != "" {
			if status, err := progress.ReadStatus(r.opts.ProgressPath); err == nil && status != "" {
				r.logger.Debug("progress status",
					zap.String("issue", issue.Identifier),
					zap.String("status", status),
				)
			}
		}

		if signals.IsComplete {
			res.Status = domain.RunCompleted
			break
		}
		if signals.HasError {
			r.logger.Warn("agent output reported errors",
				zap.String("issue", issue.Identifier),
				zap.Int("iteration", consumed),
			)
		}
	}

	res.Duration = time.Since(startedAt)
	r.finalize(ctx, &res, log.String(), startedAt)

	r.logger.Info("run finished",
		zap.String("issue", issue.Identifier),
		zap.String("status", string(res.Status)),
		zap.Int("iterations", res.Iterations),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// finalize persists and reports the run. Each step is independent and
// best-effort; a failure in one never blocks the others.
func (r *Runner) finalize(ctx context.Context, res *domain.RunResult, outputLog string, startedAt time.Time) {
	if r.history != nil {
		entry := history.NewEntry(*res, startedAt, time.Now())
		if err := r.history.SaveRun(entry, outputLog); err != nil {
			r.logger.Warn("failed to save run history", zap.Error(err))
		}
	}

	if r.repo != nil && r.repo.HasChanges() {
		msg := fmt.Sprintf("%s: %s", res.Issue.Identifier, res.Issue.Title)
		if !r.repo.CommitAll(msg) {
			r.logger.Warn("failed to commit working-tree changes", zap.String("issue", res.Issue.Identifier))
		}
	}

	if r.tickets != nil {
		if err := r.tickets.AddComment(ctx, res.Issue.Identifier, runComment(*res)); err != nil {
			r.logger.Warn("failed to add run comment", zap.Error(err))
		}
		if res.Status == domain.RunCompleted && r.opts.ReviewState != "" {
			if err := r.tickets.UpdateIssueState(ctx, res.Issue.Identifier, r.opts.ReviewState); err != nil {
				r.logger.Warn("failed to move issue to review", zap.Error(err))
			}
		}
	}

	if res.Status == domain.RunCompleted && r.opts.ProgressPath != "" {
		if err := progress.Remove(r.opts.ProgressPath); err != nil {
			r.logger.Warn("failed to remove progress file", zap.Error(err))
		}
	}
}

func (r *Runner) buildPrompt(issue domain.Issue, iteration int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are working on issue %s: %s\n\n", issue.Identifier, issue.Title)
	if issue.Description != "" {
		fmt.Fprintf(&sb, "Description:\n%s\n\n", issue.Description)
	}
	fmt.Fprintf(&sb, "This is iteration %d of at most %d.\n", iteration, r.opts.MaxIterations)
	if r.opts.ProgressPath != "" {
		fmt.Fprintf(&sb, "Keep your working notes in %s and read it first to pick up where the previous iteration left off.\n", r.opts.ProgressPath)
	}
	fmt.Fprintf(&sb, "\nWork on the issue. When it is fully resolved, and only then, output exactly %s on its own line.\n", analyze.CompletionSentinel)

	return sb.String()
}

func runComment(res domain.RunResult) string {
	switch res.Status {
	case domain.RunCompleted:
		return fmt.Sprintf("Completed after %d iteration(s) in %s. Moving to review.",
			res.Iterations, res.Duration.Round(time.Second))
	case domain.RunMaxIterations:
		return fmt.Sprintf("Stopped after the iteration budget of %d was exhausted (%s elapsed). The issue needs a human look.",
			res.Iterations, res.Duration.Round(time.Second))
	default:
		return fmt.Sprintf("Run failed after %d iteration(s): %s", res.Iterations, res.Error)
	}
}
