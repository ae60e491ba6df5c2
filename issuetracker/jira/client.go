package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/issuetracker"
)

const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// Config holds the Jira Cloud settings.
type Config struct {
	URL       string
	Email     string
	APIToken  string
	Project   string
	IssueType string
}

// Client files issues in one Jira project.
type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	apiToken   string
	project    string
	issueType  string
}

// NewClient creates a Jira client. IssueType defaults to Bug.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("jira: url is required")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("jira: email is required")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("jira: api_token is required")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("jira: project is required")
	}
	issueType := cfg.IssueType
	if issueType == "" {
		issueType = "Bug"
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		email:      cfg.Email,
		apiToken:   cfg.APIToken,
		project:    cfg.Project,
		issueType:  issueType,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("jira: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("jira: failed to create request: %w", err)
	}

	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// adfNode is a node of the Atlassian Document Format used by API v3 for
// rich text fields.
type adfNode struct {
	Type    string    `json:"type"`
	Version int       `json:"version,omitempty"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

// toADF renders plain text as one paragraph per non-empty line.
func toADF(text string) adfNode {
	doc := adfNode{Type: "doc", Version: 1, Content: []adfNode{}}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		doc.Content = append(doc.Content, adfNode{
			Type:    "paragraph",
			Content: []adfNode{{Type: "text", Text: line}},
		})
	}
	return doc
}

// fromADF flattens a document back to text, one line per block.
func fromADF(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var lines []string
	for _, block := range doc.Content {
		var b strings.Builder
		collectText(block, &b)
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

func collectText(n adfNode, b *strings.Builder) {
	b.WriteString(n.Text)
	for _, child := range n.Content {
		collectText(child, b)
	}
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		Created string `json:"created"`
		Updated string `json:"updated"`
	} `json:"fields"`
}

func (c *Client) toIssue(ji *jiraIssue) *issuetracker.Issue {
	created, _ := time.Parse(jiraTimeLayout, ji.Fields.Created)
	updated, _ := time.Parse(jiraTimeLayout, ji.Fields.Updated)
	return &issuetracker.Issue{
		ExternalID:  ji.Key,
		Title:       ji.Fields.Summary,
		Description: fromADF(ji.Fields.Description),
		Status:      ji.Fields.Status.Name,
		URL:         fmt.Sprintf("%s/browse/%s", c.baseURL, ji.Key),
		Provider:    issuetracker.ProviderJira,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
}

// CreateIssue creates an issue in the configured project and returns it as
// stored by Jira.
func (c *Client) CreateIssue(ctx context.Context, input issuetracker.CreateIssueInput) (*issuetracker.Issue, error) {
	fields := map[string]interface{}{
		"project":     map[string]string{"key": c.project},
		"summary":     input.Title,
		"description": toADF(input.Description),
		"issuetype":   map[string]string{"name": c.issueType},
	}
	if len(input.Labels) > 0 {
		labels := make([]string, len(input.Labels))
		for i, l := range input.Labels {
			// Jira labels cannot contain spaces.
			labels[i] = strings.ReplaceAll(l, " ", "-")
		}
		fields["labels"] = labels
	}

	apiURL := fmt.Sprintf("%s/rest/api/3/issue", c.baseURL)
	resp, err := c.doRequest(ctx, http.MethodPost, apiURL, map[string]interface{}{"fields": fields})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("jira: create issue failed with status %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("jira: failed to decode response: %w", err)
	}
	return c.GetIssue(ctx, created.Key)
}

// GetIssue gets an issue by key.
func (c *Client) GetIssue(ctx context.Context, externalID string) (*issuetracker.Issue, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s", c.baseURL, url.PathEscape(externalID))
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, issuetracker.ErrIssueNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("jira: get issue failed with status %d: %s", resp.StatusCode, string(body))
	}

	var ji jiraIssue
	if err := json.NewDecoder(resp.Body).Decode(&ji); err != nil {
		return nil, fmt.Errorf("jira: failed to decode response: %w", err)
	}
	return c.toIssue(&ji), nil
}

// ValidateConnection checks the credentials by fetching the current user.
func (c *Client) ValidateConnection(ctx context.Context) error {
	apiURL := fmt.Sprintf("%s/rest/api/3/myself", c.baseURL)
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", issuetracker.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", issuetracker.ErrConnectionFailed, resp.StatusCode)
	}
	return nil
}
