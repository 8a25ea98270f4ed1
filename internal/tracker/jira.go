package tracker

import (
	"context"
	"fmt"
	"os"
	"strings"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
)

// JiraTokenFromEnv reads the Jira API token from the environment
func JiraTokenFromEnv() string {
	return os.Getenv("JIRA_TOKEN")
}

// JiraClient wraps the Jira REST API behind the Service contract
type JiraClient struct {
	client *jira.Client
	logger *zap.Logger
}

// NewJiraClient creates a Jira tracker client with basic-auth transport
func NewJiraClient(baseURL, username, apiToken string, logger *zap.Logger) (*JiraClient, error) {
	tp := jira.BasicAuthTransport{
		Username: username,
		Password: apiToken,
	}

	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	return &JiraClient{client: client, logger: logger}, nil
}

func issueFromJira(ji *jira.Issue, baseURL string) domain.Issue {
	issue := domain.Issue{
		Identifier:  ji.Key,
		Title:       ji.Fields.Summary,
		Description: ji.Fields.Description,
		Priority:    domain.PriorityNone,
		State:       domain.State{Type: domain.StateUnknown},
		Labels:      ji.Fields.Labels,
	}
	if baseURL != "" {
		issue.URL = strings.TrimSuffix(baseURL, "/") + "/browse/" + ji.Key
	}

	if ji.Fields.Priority != nil {
		issue.Priority = domain.ParsePriority(ji.Fields.Priority.Name)
	}
	if ji.Fields.Status != nil {
		issue.State.Name = ji.Fields.Status.Name
		issue.State.Type = stateTypeFromJiraCategory(ji.Fields.Status.StatusCategory.Key)
	}

	return issue
}

// stateTypeFromJiraCategory maps Jira's three status categories onto
// the coarse state types. Jira has no native "canceled" category; a
// canceled status lands in done and is filtered by name if needed.
func stateTypeFromJiraCategory(key string) domain.StateType {
	switch key {
	case jira.StatusCategoryToDo:
		return domain.StateUnstarted
	case jira.StatusCategoryInProgress:
		return domain.StateStarted
	case jira.StatusCategoryComplete:
		return domain.StateCompleted
	default:
		return domain.StateUnknown
	}
}

// FetchIssuesByLabel searches the project for issues carrying the label
func (c *JiraClient) FetchIssuesByLabel(ctx context.Context, scope TeamScope, label string) ([]domain.Issue, error) {
	jql := fmt.Sprintf("project = %s AND labels = %q ORDER BY priority ASC, created ASC", scope.TeamID, label)

	found, _, err := c.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{MaxResults: 100})
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}

	issues := make([]domain.Issue, 0, len(found))
	for i := range found {
		issues = append(issues, issueFromJira(&found[i], c.baseURL()))
	}
	return issues, nil
}

func (c *JiraClient) baseURL() string {
	u := c.client.GetBaseURL()
	return u.String()
}

// FetchIssueByID retrieves a single issue by key
func (c *JiraClient) FetchIssueByID(ctx context.Context, id string) (domain.Issue, error) {
	ji, _, err := c.client.Issue.GetWithContext(ctx, id, nil)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("failed to get issue %s: %w", id, err)
	}
	return issueFromJira(ji, c.baseURL()), nil
}

// AddComment adds a comment to the issue
func (c *JiraClient) AddComment(ctx context.Context, id, body string) error {
	_, _, err := c.client.Issue.AddCommentWithContext(ctx, id, &jira.Comment{Body: body})
	if err != nil {
		return fmt.Errorf("failed to add comment on %s: %w", id, err)
	}
	return nil
}

// UpdateIssueState transitions the issue to the named status
func (c *JiraClient) UpdateIssueState(ctx context.Context, id, stateName string) error {
	transitions, _, err := c.client.Issue.GetTransitionsWithContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get transitions for %s: %w", id, err)
	}

	var transitionID string
	for _, transition := range transitions {
		if strings.EqualFold(transition.To.Name, stateName) {
			transitionID = transition.ID
			break
		}
	}
	if transitionID == "" {
		return fmt.Errorf("transition to status %q not found on %s", stateName, id)
	}

	if _, err := c.client.Issue.DoTransitionWithContext(ctx, id, transitionID); err != nil {
		return fmt.Errorf("failed to transition %s: %w", id, err)
	}
	return nil
}

func (c *JiraClient) updateLabels(ctx context.Context, id string, ops []map[string]any) error {
	data := map[string]any{
		"update": map[string]any{
			"labels": ops,
		},
	}
	if _, err := c.client.Issue.UpdateIssueWithContext(ctx, id, data); err != nil {
		return fmt.Errorf("failed to update labels on %s: %w", id, err)
	}
	return nil
}

// AddLabel attaches a label to the issue
func (c *JiraClient) AddLabel(ctx context.Context, id, label string) error {
	return c.updateLabels(ctx, id, []map[string]any{{"add": label}})
}

// RemoveLabel detaches a label from the issue
func (c *JiraClient) RemoveLabel(ctx context.Context, id, label string) error {
	return c.updateLabels(ctx, id, []map[string]any{{"remove": label}})
}

// SwapLabels removes one label and adds another in a single update
func (c *JiraClient) SwapLabels(ctx context.Context, id, remove, add string) error {
	return c.updateLabels(ctx, id, []map[string]any{{"remove": remove}, {"add": add}})
}
