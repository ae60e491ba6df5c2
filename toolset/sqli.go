package toolset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

// SQL injection finding identity. The title is the dedup key.
const (
	SQLInjectionType  = "SQL Injection"
	SQLInjectionTitle = "Authentication Bypass via SQL Injection"
)

func (t *Toolset) sqlInjectionTest(ctx context.Context, query string) Result {
	t.event(testrun.EventInfo, "Starting SQL injection vulnerability test", testrun.Detail{
		"message": "Testing login form with SQL injection payloads",
	})

	if isBlank(query) || !strings.Contains(query, ",") {
		return failure("Error: Input should be 'username_selector,password_selector'")
	}
	userSel, passSel, _ := strings.Cut(query, ",")
	userSel = trimQuotes(userSel)
	passSel = trimQuotes(passSel)
	if userSel == "" || passSel == "" {
		return failure("Error: Input should be 'username_selector,password_selector'")
	}

	username := t.config.SQLIUsername
	payload := t.config.SQLIPayload

	if err := t.refill(ctx, userSel, username); err != nil {
		return failure("Error during SQL injection test: %v", err)
	}
	settle(ctx, t.config.FieldSettle)
	t.event(testrun.EventInput, "Entering username for SQL injection test", testrun.Detail{
		"field": userSel,
		"value": username,
	})

	if err := t.refill(ctx, passSel, payload); err != nil {
		return failure("Error during SQL injection test: %v", err)
	}
	settle(ctx, t.config.FieldSettle)
	t.event(testrun.EventInput, "Entering SQL injection payload in password field", testrun.Detail{
		"field":   passSel,
		"payload": payload,
	})

	before := t.page.URL()
	chain := runChain(ctx, t.submitCandidates(passSel))
	if _, ok := chain.Winner(); !ok {
		return failure("Could not submit form - no submit button found")
	}

	t.waitForSignal(ctx, before, t.config.NavigationWait)

	after := t.page.URL()
	content, err := t.page.GetContent(ctx, browser.FormatText)
	if err != nil {
		return failure("Error during SQL injection test: %v", err)
	}

	navigated := after != before
	indicator := matchIndicator(content.Raw, t.config.SuccessIndicators)
	if !navigated && indicator == "" {
		t.event(testrun.EventInfo, "SQL injection test completed - no vulnerability detected", testrun.Detail{
			"message": "No authentication bypass detected",
		})
		return success("SQL injection failed: Username '%s' with password '%s' - no success indicators detected", username, payload)
	}

	f := testrun.Finding{
		Severity: testrun.SeverityHigh,
		Type:     SQLInjectionType,
		Title:    SQLInjectionTitle,
	}
	var msg string
	if navigated {
		f.Description = "The login form is vulnerable to SQL injection attacks. The agent was able to bypass authentication using malicious SQL payloads."
		msg = fmt.Sprintf("SQL INJECTION SUCCESSFUL: Username '%s' with password '%s' caused navigation from %s to %s", username, payload, before, after)
	} else {
		f.Description = "The login form is vulnerable to SQL injection attacks. Success indicators were detected in the page content after injection attempt."
		msg = fmt.Sprintf("SQL INJECTION SUCCESSFUL: Username '%s' with password '%s' - success indicators detected in page content (%s)", username, payload, indicator)
	}
	t.finding(f)
	res := success("%s", msg)
	res.Findings = []testrun.Finding{f}
	return res
}

func (t *Toolset) refill(ctx context.Context, selector, value string) error {
	if err := t.page.FillInput(ctx, selector, ""); err != nil {
		return err
	}
	return t.page.FillInput(ctx, selector, value)
}

func (t *Toolset) submitCandidates(passSel string) []Candidate {
	click := func(selector string) Candidate {
		return Candidate{
			Name: selector,
			Run: func(ctx context.Context) error {
				if err := t.page.Click(ctx, selector, t.config.ActionTimeout); err != nil {
					return err
				}
				t.event(testrun.EventClick, "Submitting form with SQL injection payload", testrun.Detail{
					"element": selector,
				})
				return nil
			},
		}
	}
	return []Candidate{
		click("input[type='submit']"),
		click("button[type='submit']"),
		{
			Name: "enter",
			Run: func(ctx context.Context) error {
				if err := t.page.PressKey(ctx, passSel, "Enter"); err != nil {
					return err
				}
				t.event(testrun.EventClick, "Submitting form using Enter key", testrun.Detail{
					"element": passSel,
				})
				return nil
			},
		},
	}
}

// waitForSignal polls until the URL leaves before or the page text shows one
// of the submit signals, bounded by limit.
func (t *Toolset) waitForSignal(ctx context.Context, before string, limit time.Duration) {
	if limit <= 0 {
		return
	}
	interval := t.config.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if t.page.URL() != before {
			return
		}
		if c, err := t.page.GetContent(ctx, browser.FormatText); err == nil {
			for _, s := range t.config.SubmitSignals {
				if strings.Contains(c.Raw, s) {
					return
				}
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

// matchIndicator returns the first indicator found in text, case-insensitively.
func matchIndicator(text string, indicators []string) string {
	lower := strings.ToLower(text)
	for _, ind := range indicators {
		if strings.Contains(lower, strings.ToLower(ind)) {
			return ind
		}
	}
	return ""
}
