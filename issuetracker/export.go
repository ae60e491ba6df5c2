package issuetracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

var severityRank = map[testrun.Severity]int{
	testrun.SeverityLow:      1,
	testrun.SeverityMedium:   2,
	testrun.SeverityHigh:     3,
	testrun.SeverityCritical: 4,
}

// Exporter files one issue per finding at or above a minimum severity.
type Exporter struct {
	client      Client
	minSeverity testrun.Severity
	labels      []string
	logger      logger.Logger
}

// NewExporter creates an exporter. An invalid minSeverity exports everything.
func NewExporter(client Client, minSeverity testrun.Severity, labels []string, log logger.Logger) *Exporter {
	if !minSeverity.IsValid() {
		minSeverity = testrun.SeverityLow
	}
	return &Exporter{
		client:      client,
		minSeverity: minSeverity,
		labels:      labels,
		logger:      log,
	}
}

// ExportResult lists the issues created and the findings that failed.
type ExportResult struct {
	Issues  []*Issue `json:"issues"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
}

// Export files the run's findings. Filing continues past individual
// failures; an error is returned only when every attempt failed.
func (e *Exporter) Export(ctx context.Context, run *testrun.TestRun) (*ExportResult, error) {
	res := &ExportResult{Issues: []*Issue{}}
	var lastErr error
	for _, f := range run.Findings {
		if severityRank[f.Severity] < severityRank[e.minSeverity] {
			res.Skipped++
			continue
		}
		issue, err := e.client.CreateIssue(ctx, IssueForFinding(run, f, e.labels))
		if err != nil {
			e.logger.Warn(ctx, "failed to file finding", logger.Fields{
				"test_run_id": run.ID.String(),
				"title":       f.Title,
				"error":       err.Error(),
			})
			res.Failed = append(res.Failed, f.Title)
			lastErr = err
			continue
		}
		res.Issues = append(res.Issues, issue)
	}

	e.logger.Info(ctx, "findings exported", logger.Fields{
		"test_run_id": run.ID.String(),
		"created":     len(res.Issues),
		"skipped":     res.Skipped,
		"failed":      len(res.Failed),
	})
	if len(res.Issues) == 0 && lastErr != nil {
		return res, lastErr
	}
	return res, nil
}

// IssueForFinding renders a finding as an issue.
func IssueForFinding(run *testrun.TestRun, f testrun.Finding, extraLabels []string) CreateIssueInput {
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\n", run.TargetURL)
	fmt.Fprintf(&b, "Severity: %s\n", f.Severity)
	fmt.Fprintf(&b, "Type: %s\n", f.Type)
	fmt.Fprintf(&b, "Test run: %s\n", run.ID)
	if f.Description != "" {
		b.WriteString("\n")
		b.WriteString(f.Description)
		b.WriteString("\n")
	}

	labels := []string{"security", "severity:" + strings.ToLower(string(f.Severity))}
	labels = append(labels, extraLabels...)

	return CreateIssueInput{
		Title:       fmt.Sprintf("[%s] %s", f.Severity, f.Title),
		Description: b.String(),
		Labels:      labels,
	}
}
