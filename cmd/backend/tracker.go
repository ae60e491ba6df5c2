package main

import (
	"fmt"

	"github.com/hairizuanbinnoorazman/web-pentest/issuetracker"
	"github.com/hairizuanbinnoorazman/web-pentest/issuetracker/github"
	"github.com/hairizuanbinnoorazman/web-pentest/issuetracker/jira"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

// newExporter builds the finding exporter for the configured provider. It
// returns nil when no provider is set.
func newExporter(cfg TrackerConfig, log logger.Logger) (*issuetracker.Exporter, error) {
	if cfg.Provider == "" {
		return nil, nil
	}

	var client issuetracker.Client
	var err error
	switch issuetracker.ProviderType(cfg.Provider) {
	case issuetracker.ProviderGitHub:
		client, err = github.NewClient(github.Config{
			Token:      cfg.GitHubToken,
			BaseURL:    cfg.GitHubBaseURL,
			Repository: cfg.GitHubRepository,
		})
	case issuetracker.ProviderJira:
		client, err = jira.NewClient(jira.Config{
			URL:       cfg.JiraURL,
			Email:     cfg.JiraEmail,
			APIToken:  cfg.JiraAPIToken,
			Project:   cfg.JiraProject,
			IssueType: cfg.JiraIssueType,
		})
	default:
		return nil, fmt.Errorf("%w: %s", issuetracker.ErrInvalidProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	minSeverity, _ := testrun.ParseSeverity(cfg.MinSeverity)
	return issuetracker.NewExporter(client, minSeverity, cfg.Labels, log.WithField("tracker", cfg.Provider)), nil
}
