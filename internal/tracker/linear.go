package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-issue-loop/internal/domain"
)

const linearEndpoint = "https://api.linear.app/graphql"

// LinearAPIKeyFromEnv reads the Linear API key from the environment
func LinearAPIKeyFromEnv() string {
	return os.Getenv("LINEAR_API_KEY")
}

// LinearClient talks to the Linear GraphQL API
type LinearClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// NewLinearClient creates a Linear tracker client
func NewLinearClient(apiKey string, logger *zap.Logger) *LinearClient {
	return &LinearClient{
		endpoint: linearEndpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (c *LinearClient) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("linear request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("linear returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("parse linear response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("linear: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("parse linear data: %w", err)
		}
	}
	return nil
}

type linearIssue struct {
	ID          string  `json:"id"`
	Identifier  string  `json:"identifier"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    float64 `json:"priority"`
	URL         string  `json:"url"`
	State       struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"state"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
}

const linearIssueFields = `
	id
	identifier
	title
	description
	priority
	url
	state { name type }
	labels { nodes { name } }
`

func issueFromLinear(li linearIssue) domain.Issue {
	labels := make([]string, 0, len(li.Labels.Nodes))
	for _, n := range li.Labels.Nodes {
		labels = append(labels, n.Name)
	}

	return domain.Issue{
		Identifier:  li.Identifier,
		Title:       li.Title,
		Description: li.Description,
		Priority:    priorityFromLinear(int(li.Priority)),
		State:       domain.State{Name: li.State.Name, Type: stateTypeFromLinear(li.State.Type)},
		Labels:      labels,
		URL:         li.URL,
	}
}

// priorityFromLinear maps Linear's numeric priority (0 none, 1 urgent,
// 2 high, 3 medium, 4 low) onto the ordinal scale
func priorityFromLinear(p int) domain.Priority {
	switch p {
	case 1:
		return domain.PriorityUrgent
	case 2:
		return domain.PriorityHigh
	case 3:
		return domain.PriorityMedium
	case 4:
		return domain.PriorityLow
	default:
		return domain.PriorityNone
	}
}

func stateTypeFromLinear(t string) domain.StateType {
	switch t {
	case "unstarted", "backlog", "triage":
		return domain.StateUnstarted
	case "started":
		return domain.StateStarted
	case "completed":
		return domain.StateCompleted
	case "canceled":
		return domain.StateCanceled
	default:
		return domain.StateUnknown
	}
}

// FetchIssuesByLabel lists issues in the team (and optional project)
// carrying the given label
func (c *LinearClient) FetchIssuesByLabel(ctx context.Context, scope TeamScope, label string) ([]domain.Issue, error) {
	filter := map[string]any{
		"team":   map[string]any{"id": map[string]any{"eq": scope.TeamID}},
		"labels": map[string]any{"name": map[string]any{"eq": label}},
	}
	if scope.ProjectID != "" {
		filter["project"] = map[string]any{"id": map[string]any{"eq": scope.ProjectID}}
	}

	query := fmt.Sprintf(`query Issues($filter: IssueFilter) {
		issues(filter: $filter, first: 100) { nodes { %s } }
	}`, linearIssueFields)

	var out struct {
		Issues struct {
			Nodes []linearIssue `json:"nodes"`
		} `json:"issues"`
	}
	if err := c.do(ctx, query, map[string]any{"filter": filter}, &out); err != nil {
		return nil, fmt.Errorf("fetch issues by label: %w", err)
	}

	issues := make([]domain.Issue, 0, len(out.Issues.Nodes))
	for _, node := range out.Issues.Nodes {
		issues = append(issues, issueFromLinear(node))
	}
	return issues, nil
}

// FetchIssueByID fetches one issue by identifier (e.g. "ENG-42")
func (c *LinearClient) FetchIssueByID(ctx context.Context, id string) (domain.Issue, error) {
	query := fmt.Sprintf(`query Issue($id: String!) {
		issue(id: $id) { %s }
	}`, linearIssueFields)

	var out struct {
		Issue *linearIssue `json:"issue"`
	}
	if err := c.do(ctx, query, map[string]any{"id": id}, &out); err != nil {
		return domain.Issue{}, fmt.Errorf("fetch issue %s: %w", id, err)
	}
	if out.Issue == nil {
		return domain.Issue{}, fmt.Errorf("issue %s not found", id)
	}
	return issueFromLinear(*out.Issue), nil
}

// internalID resolves the Linear UUID for an issue identifier, needed
// by mutations
func (c *LinearClient) internalID(ctx context.Context, id string) (string, error) {
	var out struct {
		Issue *struct {
			ID string `json:"id"`
		} `json:"issue"`
	}
	err := c.do(ctx, `query Issue($id: String!) { issue(id: $id) { id } }`, map[string]any{"id": id}, &out)
	if err != nil {
		return "", err
	}
	if out.Issue == nil {
		return "", fmt.Errorf("issue %s not found", id)
	}
	return out.Issue.ID, nil
}

// AddComment posts a markdown comment on the issue
func (c *LinearClient) AddComment(ctx context.Context, id, body string) error {
	uuid, err := c.internalID(ctx, id)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}

	mutation := `mutation CommentCreate($input: CommentCreateInput!) {
		commentCreate(input: $input) { success }
	}`
	input := map[string]any{"issueId": uuid, "body": body}
	if err := c.do(ctx, mutation, map[string]any{"input": input}, nil); err != nil {
		return fmt.Errorf("add comment on %s: %w", id, err)
	}
	return nil
}

// UpdateIssueState moves the issue to the workflow state with the given
// name within its team
func (c *LinearClient) UpdateIssueState(ctx context.Context, id, stateName string) error {
	var issueOut struct {
		Issue *struct {
			ID   string `json:"id"`
			Team struct {
				States struct {
					Nodes []struct {
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"nodes"`
				} `json:"states"`
			} `json:"team"`
		} `json:"issue"`
	}
	query := `query IssueStates($id: String!) {
		issue(id: $id) { id team { states { nodes { id name } } } }
	}`
	if err := c.do(ctx, query, map[string]any{"id": id}, &issueOut); err != nil {
		return fmt.Errorf("update state of %s: %w", id, err)
	}
	if issueOut.Issue == nil {
		return fmt.Errorf("issue %s not found", id)
	}

	var stateID string
	for _, s := range issueOut.Issue.Team.States.Nodes {
		if s.Name == stateName {
			stateID = s.ID
			break
		}
	}
	if stateID == "" {
		return fmt.Errorf("state %q not found for issue %s", stateName, id)
	}

	mutation := `mutation IssueUpdate($id: String!, $input: IssueUpdateInput!) {
		issueUpdate(id: $id, input: $input) { success }
	}`
	vars := map[string]any{"id": issueOut.Issue.ID, "input": map[string]any{"stateId": stateID}}
	if err := c.do(ctx, mutation, vars, nil); err != nil {
		return fmt.Errorf("update state of %s: %w", id, err)
	}
	return nil
}

// labelID resolves a label name to its UUID
func (c *LinearClient) labelID(ctx context.Context, name string) (string, error) {
	var out struct {
		IssueLabels struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"issueLabels"`
	}
	query := `query Labels($name: String!) {
		issueLabels(filter: { name: { eq: $name } }, first: 1) { nodes { id } }
	}`
	if err := c.do(ctx, query, map[string]any{"name": name}, &out); err != nil {
		return "", err
	}
	if len(out.IssueLabels.Nodes) == 0 {
		return "", fmt.Errorf("label %q not found", name)
	}
	return out.IssueLabels.Nodes[0].ID, nil
}

// AddLabel attaches a label to the issue
func (c *LinearClient) AddLabel(ctx context.Context, id, label string) error {
	uuid, err := c.internalID(ctx, id)
	if err != nil {
		return fmt.Errorf("add label: %w", err)
	}
	labelUUID, err := c.labelID(ctx, label)
	if err != nil {
		return fmt.Errorf("add label: %w", err)
	}

	mutation := `mutation IssueAddLabel($id: String!, $labelId: String!) {
		issueAddLabel(id: $id, labelId: $labelId) { success }
	}`
	if err := c.do(ctx, mutation, map[string]any{"id": uuid, "labelId": labelUUID}, nil); err != nil {
		return fmt.Errorf("add label %q to %s: %w", label, id, err)
	}
	return nil
}

// RemoveLabel detaches a label from the issue
func (c *LinearClient) RemoveLabel(ctx context.Context, id, label string) error {
	uuid, err := c.internalID(ctx, id)
	if err != nil {
		return fmt.Errorf("remove label: %w", err)
	}
	labelUUID, err := c.labelID(ctx, label)
	if err != nil {
		return fmt.Errorf("remove label: %w", err)
	}

	mutation := `mutation IssueRemoveLabel($id: String!, $labelId: String!) {
		issueRemoveLabel(id: $id, labelId: $labelId) { success }
	}`
	if err := c.do(ctx, mutation, map[string]any{"id": uuid, "labelId": labelUUID}, nil); err != nil {
		return fmt.Errorf("remove label %q from %s: %w", label, id, err)
	}
	return nil
}

// SwapLabels removes one label and adds another
func (c *LinearClient) SwapLabels(ctx context.Context, id, remove, add string) error {
	if err := c.RemoveLabel(ctx, id, remove); err != nil {
		return err
	}
	return c.AddLabel(ctx, id, add)
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
