package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
)

// Tools is what a planner drives. *toolset.Toolset satisfies it.
type Tools interface {
	Call(ctx context.Context, name, input string) toolset.Result
	Inspect(ctx context.Context) toolset.PageSummary
}

// Planner decides which tools to call against the target and returns its
// final free-text answer.
type Planner interface {
	Plan(ctx context.Context, targetURL string, tools Tools) (string, error)
}

// NewPlanner builds the planner named by cfg.Planner.
func NewPlanner(ctx context.Context, cfg Config, log logger.Logger) (Planner, error) {
	switch strings.ToLower(cfg.Planner) {
	case "", PlannerDirect:
		return NewDirectPlanner(log), nil
	case PlannerOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai planner requires an API key")
		}
		return NewOpenAIPlanner(cfg, log), nil
	case PlannerBedrock:
		return NewBedrockPlanner(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported planner: %s", cfg.Planner)
	}
}

// DirectPlanner runs the SQL injection and XSS tools against the fields it
// finds on the page, without a language model.
type DirectPlanner struct {
	logger logger.Logger
}

// NewDirectPlanner creates a DirectPlanner.
func NewDirectPlanner(log logger.Logger) *DirectPlanner {
	return &DirectPlanner{logger: log}
}

// Plan scrapes the page, runs xss_test on every text-like input and
// sql_injection_test on the first login form. The answer is a JSON array of
// the findings reported by the tools.
func (p *DirectPlanner) Plan(ctx context.Context, targetURL string, tools Tools) (string, error) {
	tools.Call(ctx, toolset.ToolScrapePage, "scrape")
	summary := tools.Inspect(ctx)

	findings := []testrun.Finding{}
	collect := func(res toolset.Result) {
		for _, f := range res.Findings {
			findings = appendUnique(findings, f)
		}
	}

	for _, sel := range textFields(summary) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res := tools.Call(ctx, toolset.ToolXSSTest, sel)
		p.logger.Debug(ctx, "xss test finished", logger.Fields{"selector": sel, "ok": res.OK})
		collect(res)
	}

	if userSel, passSel := loginFields(summary); userSel != "" {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res := tools.Call(ctx, toolset.ToolSQLInjectionTest, userSel+","+passSel)
		p.logger.Debug(ctx, "sql injection test finished", logger.Fields{"ok": res.OK})
		collect(res)
	}

	out, err := json.Marshal(findings)
	if err != nil {
		return "", fmt.Errorf("failed to encode findings: %w", err)
	}
	return string(out), nil
}

// loginFields returns the username and password selectors of the first form
// containing a password input.
func loginFields(s toolset.PageSummary) (string, string) {
	for _, form := range s.Forms {
		var user, pass string
		for _, f := range form.Inputs {
			switch {
			case f.Type == "password" && pass == "":
				pass = f.Selector
			case isTextLike(f.Type) && user == "":
				user = f.Selector
			}
		}
		if pass != "" && user != "" {
			return user, pass
		}
	}
	return "", ""
}

// textFields lists the selectors of every text-like input, deduplicated.
func textFields(s toolset.PageSummary) []string {
	seen := make(map[string]bool)
	var out []string
	for _, form := range s.Forms {
		for _, f := range form.Inputs {
			if !isTextLike(f.Type) || seen[f.Selector] {
				continue
			}
			seen[f.Selector] = true
			out = append(out, f.Selector)
		}
	}
	return out
}

func isTextLike(typ string) bool {
	switch strings.ToLower(typ) {
	case "text", "search", "email", "url", "tel":
		return true
	}
	return false
}
