// Package tracker abstracts the external ticket service. The
// orchestrator only ever talks to the Service interface; provider
// selection is a tagged union resolved once, not per call site.
package tracker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
)

// Service is the ticket-tracker contract consumed by the core.
// Implementations return explicit errors and never panic across the
// boundary.
type Service interface {
	FetchIssuesByLabel(ctx context.Context, scope TeamScope, label string) ([]domain.Issue, error)
	FetchIssueByID(ctx context.Context, id string) (domain.Issue, error)
	AddComment(ctx context.Context, id, body string) error
	UpdateIssueState(ctx context.Context, id, stateName string) error
	AddLabel(ctx context.Context, id, label string) error
	RemoveLabel(ctx context.Context, id, label string) error
	SwapLabels(ctx context.Context, id, remove, add string) error
}

// ProviderKind tags the supported tracker providers
type ProviderKind string

const (
	KindLinear ProviderKind = "linear"
	KindJira   ProviderKind = "jira"
)

// Provider is the tagged-union provider value. Only the fields for the
// tagged kind are meaningful.
type Provider struct {
	Kind ProviderKind

	// Linear
	LinearTeamID    string
	LinearProjectID string

	// Jira
	JiraBaseURL    string
	JiraUsername   string
	JiraToken      string
	JiraProjectKey string
}

// TeamScope is the provider-resolved scope used when listing issues
type TeamScope struct {
	TeamID    string
	ProjectID string // optional
}

// TeamScope resolves the listing scope for the provider. This is the
// single place that knows which identifier each provider scopes by.
func (p Provider) TeamScope() TeamScope {
	switch p.Kind {
	case KindJira:
		return TeamScope{TeamID: p.JiraProjectKey}
	default:
		return TeamScope{TeamID: p.LinearTeamID, ProjectID: p.LinearProjectID}
	}
}

// New constructs the Service for the provider
func New(p Provider, logger *zap.Logger) (Service, error) {
	switch p.Kind {
	case KindLinear:
		if p.LinearTeamID == "" {
			return nil, fmt.Errorf("linear provider requires a team ID")
		}
		return NewLinearClient(LinearAPIKeyFromEnv(), logger), nil
	case KindJira:
		if p.JiraBaseURL == "" || p.JiraProjectKey == "" {
			return nil, fmt.Errorf("jira provider requires base URL and project key")
		}
		return NewJiraClient(p.JiraBaseURL, p.JiraUsername, p.JiraToken, logger)
	default:
		return nil, fmt.Errorf("unknown tracker provider %q", p.Kind)
	}
}
