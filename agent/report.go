package agent

import (
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

// Report is the archived summary of a finished run.
type Report struct {
	TestID         uuid.UUID                `json:"test_id"`
	TargetURL      string                   `json:"url"`
	Status         testrun.Status           `json:"status"`
	Phase          string                   `json:"current_phase"`
	Error          string                   `json:"error,omitempty"`
	StartedAt      *time.Time               `json:"started_at,omitempty"`
	CompletedAt    *time.Time               `json:"completed_at,omitempty"`
	GeneratedAt    time.Time                `json:"generated_at"`
	Summary        map[testrun.Severity]int `json:"summary"`
	Findings       []testrun.Finding        `json:"results"`
	Events         []testrun.Event          `json:"events"`
	PlannerOutput  string                   `json:"planner_output,omitempty"`
	ScreenshotPath string                   `json:"screenshot_path,omitempty"`
}

// BuildReport assembles a report from a run snapshot.
func BuildReport(run *testrun.TestRun, plannerOutput string) *Report {
	findings := run.Findings
	if findings == nil {
		findings = testrun.FindingList{}
	}
	events := run.Events
	if events == nil {
		events = testrun.EventLog{}
	}
	return &Report{
		TestID:        run.ID,
		TargetURL:     run.TargetURL,
		Status:        run.Status,
		Phase:         run.Phase,
		Error:         run.Error,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		GeneratedAt:   time.Now(),
		Summary:       findings.CountBySeverity(),
		Findings:      findings,
		Events:        events,
		PlannerOutput: plannerOutput,
	}
}

// ReportPath is the blob storage key of a run's report.
func ReportPath(id uuid.UUID) string {
	return "reports/" + id.String() + "/report.json"
}

// ScreenshotPath is the blob storage key of a run's final screenshot.
func ScreenshotPath(id uuid.UUID) string {
	return "reports/" + id.String() + "/final.png"
}
