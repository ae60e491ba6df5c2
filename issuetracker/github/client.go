package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/issuetracker"
)

const defaultBaseURL = "https://api.github.com"

// Config holds the GitHub settings. Repository is "owner/repo".
type Config struct {
	Token      string
	BaseURL    string
	Repository string
}

// Client files issues in one GitHub repository.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
	owner      string
	repo       string
}

// NewClient creates a GitHub client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github: token is required")
	}
	owner, repo, err := parseOwnerRepo(cfg.Repository)
	if err != nil {
		return nil, err
	}

	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      cfg.Token,
		baseURL:    baseURL,
		owner:      owner,
		repo:       repo,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("github: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("github: failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// parseExternalID parses "owner/repo#number".
func parseExternalID(externalID string) (owner, repo string, number int, err error) {
	parts := strings.SplitN(externalID, "#", 2)
	if len(parts) != 2 {
		return "", "", 0, fmt.Errorf("github: invalid external ID format, expected owner/repo#number")
	}
	owner, repo, err = parseOwnerRepo(parts[0])
	if err != nil {
		return "", "", 0, fmt.Errorf("github: invalid external ID format, expected owner/repo#number")
	}
	number, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", "", 0, fmt.Errorf("github: invalid issue number in external ID: %w", err)
	}
	return owner, repo, number, nil
}

func parseOwnerRepo(repository string) (owner, repo string, err error) {
	parts := strings.SplitN(repository, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: invalid repository format, expected owner/repo")
	}
	return parts[0], parts[1], nil
}

type githubIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toIssue(gi *githubIssue, owner, repo string) *issuetracker.Issue {
	return &issuetracker.Issue{
		ExternalID:  fmt.Sprintf("%s/%s#%d", owner, repo, gi.Number),
		Title:       gi.Title,
		Description: gi.Body,
		Status:      gi.State,
		URL:         gi.HTMLURL,
		Provider:    issuetracker.ProviderGitHub,
		CreatedAt:   gi.CreatedAt,
		UpdatedAt:   gi.UpdatedAt,
	}
}

// CreateIssue opens an issue in the configured repository.
func (c *Client) CreateIssue(ctx context.Context, input issuetracker.CreateIssueInput) (*issuetracker.Issue, error) {
	reqBody := map[string]interface{}{
		"title": input.Title,
		"body":  input.Description,
	}
	if len(input.Labels) > 0 {
		reqBody["labels"] = input.Labels
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, c.owner, c.repo)
	resp, err := c.doRequest(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github: create issue failed with status %d: %s", resp.StatusCode, string(body))
	}

	var gi githubIssue
	if err := json.NewDecoder(resp.Body).Decode(&gi); err != nil {
		return nil, fmt.Errorf("github: failed to decode response: %w", err)
	}
	return toIssue(&gi, c.owner, c.repo), nil
}

// GetIssue fetches an issue by "owner/repo#number".
func (c *Client) GetIssue(ctx context.Context, externalID string) (*issuetracker.Issue, error) {
	owner, repo, number, err := parseExternalID(externalID)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.baseURL, owner, repo, number)
	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, issuetracker.ErrIssueNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github: get issue failed with status %d: %s", resp.StatusCode, string(body))
	}

	var gi githubIssue
	if err := json.NewDecoder(resp.Body).Decode(&gi); err != nil {
		return nil, fmt.Errorf("github: failed to decode response: %w", err)
	}
	return toIssue(&gi, owner, repo), nil
}

// ValidateConnection checks that the token can see the repository.
func (c *Client) ValidateConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, c.owner, c.repo)
	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", issuetracker.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", issuetracker.ErrConnectionFailed, resp.StatusCode)
	}
	return nil
}
