// Package issuetracker files pentest findings as issues in GitHub or Jira.
package issuetracker

import (
	"context"
	"errors"
	"time"
)

var (
	ErrIssueNotFound    = errors.New("issue not found")
	ErrInvalidProvider  = errors.New("invalid provider type")
	ErrConnectionFailed = errors.New("connection validation failed")
)

type ProviderType string

const (
	ProviderJira   ProviderType = "jira"
	ProviderGitHub ProviderType = "github"
)

func (p ProviderType) IsValid() bool {
	return p == ProviderJira || p == ProviderGitHub
}

type Issue struct {
	ExternalID  string       `json:"external_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	URL         string       `json:"url"`
	Provider    ProviderType `json:"provider"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type CreateIssueInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
}

// Client is implemented by the github and jira subpackages.
type Client interface {
	CreateIssue(ctx context.Context, input CreateIssueInput) (*Issue, error)
	GetIssue(ctx context.Context, externalID string) (*Issue, error)
	ValidateConnection(ctx context.Context) error
}
