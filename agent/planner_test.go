package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginSummary() toolset.PageSummary {
	return toolset.PageSummary{
		Forms: []toolset.Form{
			{Inputs: []toolset.Field{
				{Type: "text", Name: "username", ID: "username", Selector: "#username"},
				{Type: "password", Name: "password", ID: "password", Selector: "#password"},
				{Type: "submit", Selector: "input[type='submit']"},
			}},
			{Inputs: []toolset.Field{
				{Type: "search", Name: "q", Selector: "input[name='q']"},
				{Type: "text", Name: "username", ID: "username", Selector: "#username"},
			}},
		},
	}
}

func TestDirectPlanner_Plan(t *testing.T) {
	sqli := testrun.Finding{
		Severity: testrun.SeverityHigh,
		Type:     toolset.SQLInjectionType,
		Title:    toolset.SQLInjectionTitle,
	}
	tools := &fakeTools{
		summary: loginSummary(),
		results: map[string]toolset.Result{
			toolset.ToolSQLInjectionTest + ":#username,#password": {OK: true, Findings: []testrun.Finding{sqli}},
		},
	}

	out, err := NewDirectPlanner(logger.NewTestLogger()).Plan(context.Background(), targetURL, tools)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"scrape_page:scrape",
		"xss_test:#username",
		"xss_test:input[name='q']",
		"sql_injection_test:#username,#password",
	}, tools.calls)

	var findings []testrun.Finding
	require.NoError(t, json.Unmarshal([]byte(out), &findings))
	assert.Equal(t, []testrun.Finding{sqli}, findings)

	extracted, tier := ExtractFindings(out)
	assert.Equal(t, TierStrict, tier)
	assert.Len(t, extracted, 1)
}

func TestDirectPlanner_Plan_NoForms(t *testing.T) {
	tools := &fakeTools{}

	out, err := NewDirectPlanner(logger.NewTestLogger()).Plan(context.Background(), targetURL, tools)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Equal(t, []string{"scrape_page:scrape"}, tools.calls)
}

func TestDirectPlanner_Plan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDirectPlanner(logger.NewTestLogger()).Plan(ctx, targetURL, &fakeTools{summary: loginSummary()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPlanner(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	p, err := NewPlanner(ctx, DefaultConfig(), log)
	require.NoError(t, err)
	assert.IsType(t, &DirectPlanner{}, p)

	cfg := DefaultConfig()
	cfg.Planner = "OpenAI"
	_, err = NewPlanner(ctx, cfg, log)
	assert.Error(t, err)

	cfg.OpenAIAPIKey = "sk-test"
	p, err = NewPlanner(ctx, cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIPlanner{}, p)

	cfg.Planner = "gemini"
	_, err = NewPlanner(ctx, cfg, log)
	assert.EqualError(t, err, "unsupported planner: gemini")
}
