package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

func newTestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tests",
		Aliases: []string{"runs"},
		Short:   "Manage pentest runs",
	}

	cmd.AddCommand(newTestsCreateCmd())
	cmd.AddCommand(newTestsListCmd())
	cmd.AddCommand(newTestsGetCmd())
	cmd.AddCommand(newTestsCancelCmd())
	cmd.AddCommand(newTestsWatchCmd())
	cmd.AddCommand(newTestsReportCmd())
	cmd.AddCommand(newTestsExportCmd())
	return cmd
}

func testPath(id string, suffix string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid test ID %q: must be a valid UUID", id)
	}
	return "/api/v1/tests/" + id + suffix, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

func newTestsCreateCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "create <target-url>",
		Short: "Start a pentest against a target URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			body, err := client.Post("/api/v1/tests", CreateTestRequest{URL: args[0]})
			if err != nil {
				return err
			}

			var r CreateTestResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if !watch {
				if done, err := printStructured(body); done {
					return err
				}
				printMessage(fmt.Sprintf("Test started: %s (status: %s, url: %s)", r.TestID, r.Status, r.URL))
				return nil
			}

			printMessage(fmt.Sprintf("Test started: %s", r.TestID))
			return watchTest(cmd.Context(), client, r.TestID.String(), 0)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the test's events until it finishes")
	return cmd
}

func newTestsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pentest runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}

			query := url.Values{}
			if status != "" {
				if !testrun.Status(status).IsValid() {
					return fmt.Errorf("invalid status %q (want pending, running, completed or failed)", status)
				}
				query.Set("status", status)
			}

			body, err := client.Get("/api/v1/tests", query)
			if err != nil {
				return err
			}
			if done, err := printStructured(body); done {
				return err
			}

			var tests []TestResponse
			if err := json.Unmarshal(body, &tests); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "URL", "STATUS", "PROGRESS", "PHASE", "FINDINGS", "CREATED AT"}
			var rows [][]string
			for _, t := range tests {
				rows = append(rows, []string{
					t.TestID.String(),
					t.URL,
					string(t.Status),
					fmt.Sprintf("%d%%", t.Progress),
					t.Phase,
					strconv.Itoa(len(t.Results)),
					t.CreatedAt.Format(timeLayout),
				})
			}
			printTable(headers, rows)
			printMessage(fmt.Sprintf("\n%d tests", len(tests)))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	return cmd
}

func newTestsGetCmd() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "get <test-id>",
		Short: "Show a pentest run's status and findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			path, err := testPath(args[0], "")
			if err != nil {
				return err
			}

			body, err := client.Get(path, nil)
			if err != nil {
				return err
			}
			if done, err := printStructured(body); done {
				return err
			}

			var t TestResponse
			if err := json.Unmarshal(body, &t); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			rows := [][]string{
				{"ID", t.TestID.String()},
				{"URL", t.URL},
				{"Status", string(t.Status)},
				{"Phase", t.Phase},
				{"Progress", fmt.Sprintf("%d%%", t.Progress)},
				{"Started At", formatTime(t.StartedAt)},
				{"Completed At", formatTime(t.CompletedAt)},
			}
			if t.Error != "" {
				rows = append(rows, []string{"Error", t.Error})
			}
			printTable([]string{"FIELD", "VALUE"}, rows)

			printMessage("")
			printFindings(t.Results)

			if showEvents {
				printMessage("")
				headers := []string{"TIME", "TYPE", "MESSAGE"}
				var eventRows [][]string
				for _, e := range t.Events {
					eventRows = append(eventRows, []string{e.Timestamp.Format(timeLayout), string(e.Kind), e.Message})
				}
				printTable(headers, eventRows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "Also print the event log")
	return cmd
}

func printFindings(findings []testrun.Finding) {
	if len(findings) == 0 {
		printMessage("No vulnerabilities detected")
		return
	}
	headers := []string{"SEVERITY", "TYPE", "TITLE"}
	var rows [][]string
	for _, f := range findings {
		rows = append(rows, []string{string(f.Severity), f.Type, f.Title})
	}
	printTable(headers, rows)
}

func newTestsCancelCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "cancel <test-id>",
		Short: "Cancel a pending or running pentest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			path, err := testPath(args[0], "")
			if err != nil {
				return err
			}

			if !confirmAction(fmt.Sprintf("Cancel test %s?", args[0]), yes) {
				printMessage("Aborted.")
				return nil
			}

			body, err := client.Delete(path)
			if err != nil {
				return err
			}
			if done, err := printStructured(body); done {
				return err
			}

			var resp SuccessResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			printMessage(resp.Message)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func newTestsWatchCmd() *cobra.Command {
	var from int

	cmd := &cobra.Command{
		Use:   "watch <test-id>",
		Short: "Follow a pentest's events until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			return watchTest(cmd.Context(), client, args[0], from)
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "Index of the first event to replay")
	return cmd
}

// watchTest prints streamed events until test_completed. It returns an error
// when the test ends failed.
func watchTest(ctx context.Context, client *Client, id string, from int) error {
	path, err := testPath(id, "/events")
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	query := url.Values{}
	if from > 0 {
		query.Set("from", strconv.Itoa(from))
	}

	var final testrun.Status
	var parseErr error
	err = client.Stream(ctx, path, query, func(data []byte) bool {
		if flagOutput == outputJSON {
			printMessage(string(data))
		}

		var ev StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			parseErr = fmt.Errorf("failed to parse event: %w", err)
			return false
		}

		switch ev.Event {
		case "connected":
		case "test_completed":
			final = ev.Status
			return false
		case "error":
			if ev.Timestamp == nil {
				parseErr = fmt.Errorf("event stream error: %s", ev.Message)
				return false
			}
		}
		if flagOutput != outputJSON && ev.Event != "connected" {
			ts := "-"
			if ev.Timestamp != nil {
				ts = ev.Timestamp.Format("15:04:05")
			}
			printMessage(fmt.Sprintf("[%s] %-13s %s", ts, strings.ToUpper(ev.Event), ev.Message))
		}
		return true
	})
	if err != nil {
		return err
	}
	if parseErr != nil {
		return parseErr
	}

	switch final {
	case "":
		return fmt.Errorf("event stream closed before the test finished")
	case testrun.StatusFailed:
		if flagOutput != outputJSON {
			printMessage("Test failed")
		}
		return fmt.Errorf("test %s failed", id)
	default:
		if flagOutput != outputJSON {
			printMessage("Test " + string(final))
		}
		return nil
	}
}

func newTestsReportCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "report <test-id>",
		Short: "Download the final report of a finished pentest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			path, err := testPath(args[0], "/report")
			if err != nil {
				return err
			}

			body, err := client.Get(path, nil)
			if err != nil {
				return err
			}

			if outFile != "" {
				if err := os.WriteFile(outFile, body, 0o644); err != nil {
					return fmt.Errorf("failed to write report: %w", err)
				}
				printMessage("Report written to " + outFile)
				return nil
			}
			if done, err := printStructured(body); done {
				return err
			}

			var report struct {
				TestID  uuid.UUID                `json:"test_id"`
				URL     string                   `json:"url"`
				Status  testrun.Status           `json:"status"`
				Summary map[testrun.Severity]int `json:"summary"`
				Results []testrun.Finding        `json:"results"`
			}
			if err := json.Unmarshal(body, &report); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			printMessage(fmt.Sprintf("Report for %s (%s): %s", report.TestID, report.URL, report.Status))
			printMessage(fmt.Sprintf("CRITICAL: %d  HIGH: %d  MEDIUM: %d  LOW: %d",
				report.Summary[testrun.SeverityCritical],
				report.Summary[testrun.SeverityHigh],
				report.Summary[testrun.SeverityMedium],
				report.Summary[testrun.SeverityLow],
			))
			printMessage("")
			printFindings(report.Results)
			return nil
		},
	}

	cmd.Flags().StringVar(&outFile, "out", "", "Write the raw JSON report to this file")
	return cmd
}

func newTestsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <test-id>",
		Short: "File a finished pentest's findings in the configured issue tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient()
			if err != nil {
				return err
			}
			path, err := testPath(args[0], "/issues")
			if err != nil {
				return err
			}

			body, err := client.Post(path, struct{}{})
			if err != nil {
				return err
			}
			if done, err := printStructured(body); done {
				return err
			}

			var res struct {
				Issues []struct {
					ExternalID string `json:"external_id"`
					Title      string `json:"title"`
					URL        string `json:"url"`
				} `json:"issues"`
				Skipped int      `json:"skipped"`
				Failed  []string `json:"failed"`
			}
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			var rows [][]string
			for _, i := range res.Issues {
				rows = append(rows, []string{i.ExternalID, i.Title, i.URL})
			}
			printTable([]string{"ISSUE", "TITLE", "URL"}, rows)
			printMessage(fmt.Sprintf("\n%d created, %d below threshold, %d failed", len(res.Issues), res.Skipped, len(res.Failed)))
			return nil
		},
	}
	return cmd
}
