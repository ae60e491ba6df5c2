package toolset

import (
	"context"
	"errors"
	"testing"

	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginPage(selectors ...string) *fakePage {
	page := newFakePage("http://target.local/login", append([]string{"#username", "#password"}, selectors...)...)
	page.text = func(*fakePage) string { return "Please sign in" }
	return page
}

func TestSQLInjection_NavigationIsBypass(t *testing.T) {
	page := loginPage("input[type='submit']")
	page.onClick["input[type='submit']"] = func(p *fakePage) { p.url = "http://target.local/dashboard" }
	ts, run := newTestToolset(t, page)

	res := ts.Call(context.Background(), ToolSQLInjectionTest, "#username,#password")
	require.True(t, res.OK, res.Message)
	assert.Contains(t, res.Message, "SQL INJECTION SUCCESSFUL")
	assert.Contains(t, res.Message, "caused navigation from http://target.local/login to http://target.local/dashboard")
	assert.Equal(t, "admin", page.values["#username"])
	assert.Equal(t, "' OR 1=1--", page.values["#password"])

	require.Len(t, res.Findings, 1)
	findings := run.FindingsSnapshot()
	require.Len(t, findings, 1)
	assert.Equal(t, res.Findings[0], findings[0])
	assert.Equal(t, testrun.SeverityHigh, findings[0].Severity)
	assert.Equal(t, SQLInjectionType, findings[0].Type)
	assert.Equal(t, SQLInjectionTitle, findings[0].Title)

	// A second run of the test on the same page does not duplicate the finding.
	page.url = "http://target.local/login"
	res = ts.Call(context.Background(), ToolSQLInjectionTest, "#username,#password")
	require.True(t, res.OK)
	assert.Len(t, run.FindingsSnapshot(), 1)
}

func TestSQLInjection_SubmissionChain(t *testing.T) {
	tests := []struct {
		name       string
		selectors  []string
		wantClicks []string
		wantEvent  string
	}{
		{
			name:       "submit input first",
			selectors:  []string{"input[type='submit']", "button[type='submit']"},
			wantClicks: []string{"input[type='submit']"},
			wantEvent:  "Submitting form with SQL injection payload",
		},
		{
			name:       "falls back to submit button",
			selectors:  []string{"button[type='submit']"},
			wantClicks: []string{"button[type='submit']"},
			wantEvent:  "Submitting form with SQL injection payload",
		},
		{
			name:      "falls back to enter",
			wantEvent: "Submitting form using Enter key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := loginPage(tt.selectors...)
			ts, run := newTestToolset(t, page)

			res := ts.Call(context.Background(), ToolSQLInjectionTest, "#username,#password")
			require.True(t, res.OK, res.Message)
			assert.Equal(t, tt.wantClicks, page.clicks)
			assert.Contains(t, eventMessages(run), tt.wantEvent)
		})
	}
}

func TestSQLInjection_NoSubmitPossible(t *testing.T) {
	page := loginPage()
	page.pressErr = errors.New("element detached")
	ts, run := newTestToolset(t, page)

	res := ts.Call(context.Background(), ToolSQLInjectionTest, "#username,#password")
	assert.False(t, res.OK)
	assert.Equal(t, "Could not submit form - no submit button found", res.Message)
	assert.Empty(t, run.FindingsSnapshot())
}

func TestSQLInjection_SuccessIndicator(t *testing.T) {
	page := loginPage()
	page.onPress = func(p *fakePage, selector, key string) {
		p.text = func(*fakePage) string { return "You are now LOGGED IN as admin" }
	}
	ts, run := newTestToolset(t, page)

	res := ts.Call(context.Background(), ToolSQLInjectionTest, "#username,#password")
	require.True(t, res.OK)
	assert.Contains(t, res.Message, "success indicators detected in page content")

	findings := run.FindingsSnapshot()
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Description, "Success indicators were detected")
}

func TestSQLInjection_NotVulnerable(t *testing.T) {
	page := loginPage("input[type='submit']")
	page.onClick["input[type='submit']"] = func(p *fakePage) {
		p.text = func(*fakePage) string { return "Invalid credentials" }
	}
	ts, run := newTestToolset(t, page)

	res := ts.Call(context.Background(), ToolSQLInjectionTest, "#username,#password")
	require.True(t, res.OK)
	assert.Equal(t, "SQL injection failed: Username 'admin' with password '' OR 1=1--' - no success indicators detected", res.Message)
	assert.Empty(t, res.Findings)
	assert.Empty(t, run.FindingsSnapshot())
	assert.Contains(t, eventMessages(run), "SQL injection test completed - no vulnerability detected")
}

func TestSQLInjection_MissingField(t *testing.T) {
	ts, _ := newTestToolset(t, newFakePage("http://target.local/login", "#username"))

	res := ts.Call(context.Background(), ToolSQLInjectionTest, "#username,#password")
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "Error during SQL injection test")
}

func TestMatchIndicator(t *testing.T) {
	indicators := DefaultConfig().SuccessIndicators
	assert.Equal(t, "welcome", matchIndicator("WELCOME back", indicators))
	assert.Equal(t, "home", matchIndicator("Back to Home", indicators))
	assert.Equal(t, "", matchIndicator("Invalid credentials", indicators))
}
