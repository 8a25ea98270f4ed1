package prioritize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
)

const maxDescriptionChars = 400

// chatClient is the slice of the OpenAI client the prioritizer needs
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Prioritizer asks an auxiliary model which candidate issue to work on
// next. It never fails a batch: any problem falls back to FIFO order.
type Prioritizer struct {
	client  chatClient
	logger  *zap.Logger
	model   string
	timeout time.Duration
}

// Selection is the outcome of a prioritization round. Decision is nil
// when the model was not consulted or its answer was unusable, in which
// case FallbackReason says why.
type Selection struct {
	Issue          domain.Issue
	Decision       *domain.PrioritizationDecision
	FallbackReason string
}

// New creates a Prioritizer backed by the OpenAI API
func New(apiKey, model string, timeout time.Duration, logger *zap.Logger) *Prioritizer {
	return &Prioritizer{
		client:  openai.NewClient(apiKey),
		logger:  logger,
		model:   model,
		timeout: timeout,
	}
}

// Select picks the next issue from candidates. candidates must be
// non-empty; the first element is the FIFO fallback.
func (p *Prioritizer) Select(ctx context.Context, candidates []domain.Issue, last *domain.CompletedTaskContext) Selection {
	if len(candidates) == 1 {
		return Selection{
			Issue: candidates[0],
			Decision: &domain.PrioritizationDecision{
				SelectedIssueID: candidates[0].Identifier,
				Reasoning:       "only one candidate in the queue",
				Confidence:      domain.ConfidenceHigh,
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a triage assistant that picks the single most impactful issue for an autonomous coding agent to work on next.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(candidates, last),
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		p.logger.Warn("prioritizer call failed, falling back to queue order", zap.Error(err))
		return fallback(candidates, fmt.Sprintf("model call failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return fallback(candidates, "model returned no choices")
	}

	decision, err := ParseDecision(resp.Choices[0].Message.Content)
	if err != nil {
		p.logger.Warn("prioritizer response unusable, falling back to queue order", zap.Error(err))
		return fallback(candidates, err.Error())
	}

	for _, c := range candidates {
		if c.Identifier == decision.SelectedIssueID {
			p.logger.Info("prioritizer selected issue",
				zap.String("issue", decision.SelectedIssueID),
				zap.String("confidence", string(decision.Confidence)),
			)
			return Selection{Issue: c, Decision: decision}
		}
	}

	return fallback(candidates, fmt.Sprintf("selected issue %q is not a candidate", decision.SelectedIssueID))
}

func fallback(candidates []domain.Issue, reason string) Selection {
	return Selection{Issue: candidates[0], FallbackReason: reason}
}

func buildPrompt(candidates []domain.Issue, last *domain.CompletedTaskContext) string {
	var sb strings.Builder

	sb.WriteString("Pick the next issue to work on from the candidates below.\n\n")

	if last != nil {
		sb.WriteString("Previously finished task (prefer related follow-ups when sensible):\n")
		fmt.Fprintf(&sb, "- %s: %s (%s after %d iteration(s) in %s)\n\n",
			last.Identifier, last.Title, last.Status, last.Iterations,
			last.Duration.Round(time.Second))
	}

	sb.WriteString("Candidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- id: %s\n  title: %s\n  priority: %s\n  state: %s\n",
			c.Identifier, c.Title, c.Priority, c.State.Name)
		if len(c.Labels) > 0 {
			fmt.Fprintf(&sb, "  labels: %s\n", strings.Join(c.Labels, ", "))
		}
		if c.Description != "" {
			fmt.Fprintf(&sb, "  description: %s\n", truncate(c.Description, maxDescriptionChars))
		}
	}

	sb.WriteString("\nRespond with a JSON object of this exact shape:\n")
	sb.WriteString("```json\n")
	sb.WriteString(`{"decision": {"selectedIssueId": "<id>", "reasoning": "<one sentence>", "confidence": "high|medium|low"}}`)
	sb.WriteString("\n```\n")

	return sb.String()
}

type decisionEnvelope struct {
	Decision domain.PrioritizationDecision `json:"decision"`
}

// ParseDecision extracts the prioritization decision from model output.
// The JSON may sit inside a fenced code block or be surrounded by prose.
func ParseDecision(output string) (*domain.PrioritizationDecision, error) {
	raw, err := extractJSONObject(output)
	if err != nil {
		return nil, err
	}

	var env decisionEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("parse decision: %w", err)
	}

	d := env.Decision
	if d.SelectedIssueID == "" {
		return nil, fmt.Errorf("decision has no selectedIssueId")
	}
	if d.Reasoning == "" {
		return nil, fmt.Errorf("decision has no reasoning")
	}
	if !d.Confidence.Valid() {
		return nil, fmt.Errorf("decision has invalid confidence %q", d.Confidence)
	}

	return &d, nil
}

// extractJSONObject finds the decision JSON in model output. A fenced
// ```json block wins; otherwise the first balanced object containing a
// "decision" key is used.
func extractJSONObject(output string) (string, error) {
	if fenced, ok := fencedBlock(output); ok {
		return fenced, nil
	}

	start := -1
	depth := 0
	for i, c := range output {
		if c == '{' {
			if start == -1 {
				start = i
			}
			depth++
		} else if c == '}' {
			depth--
			if depth == 0 && start != -1 {
				candidate := output[start : i+1]
				if strings.Contains(candidate, `"decision"`) {
					return candidate, nil
				}
				start = -1
			}
		}
	}
	return "", fmt.Errorf("no decision JSON found in output")
}

func fencedBlock(output string) (string, bool) {
	const fence = "```json"
	idx := strings.Index(output, fence)
	if idx == -1 {
		return "", false
	}
	rest := output[idx+len(fence):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
