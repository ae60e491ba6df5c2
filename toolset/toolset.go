// Package toolset exposes browser actions as string-in/string-out tools for
// planners. Tools never return Go errors; failures are rendered into the
// returned Result.
package toolset

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

// Tool names.
const (
	ToolScrapePage       = "scrape_page"
	ToolInputTextbox     = "input_textbox"
	ToolClickButton      = "click_button"
	ToolSQLInjectionTest = "sql_injection_test"
	ToolXSSTest          = "xss_test"
)

// Page is the part of a browser session the tools drive.
type Page interface {
	URL() string
	GetContent(ctx context.Context, format browser.ContentFormat) (*browser.Content, error)
	FillInput(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	PressKey(ctx context.Context, selector, key string) error
	WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error
	WaitForURLChange(ctx context.Context, from string, timeout time.Duration) error
}

// Recorder receives events and findings. *testrun.TestRun satisfies it.
type Recorder interface {
	AddEvent(kind testrun.EventKind, msg string, detail testrun.Detail) bool
	AddFinding(f testrun.Finding) bool
}

// Observer is notified after every tool call.
type Observer interface {
	ObserveToolCall(tool string, ok bool, elapsed time.Duration)
}

// Toolset binds the tools to one page and one recorder. Calls are serialized.
type Toolset struct {
	mu       sync.Mutex
	page     Page
	recorder Recorder
	config   Config
	logger   logger.Logger
	observer Observer
}

// New creates a toolset for page. Events and findings go to rec.
func New(page Page, rec Recorder, cfg Config, log logger.Logger) *Toolset {
	return &Toolset{
		page:     page,
		recorder: rec,
		config:   cfg,
		logger:   log,
	}
}

// WithObserver sets the call observer and returns the toolset.
func (t *Toolset) WithObserver(o Observer) *Toolset {
	t.observer = o
	return t
}

// Call runs the named tool with input. Once ctx is cancelled no further
// browser actions are taken.
func (t *Toolset) Call(ctx context.Context, name, input string) Result {
	if ctx.Err() != nil {
		return failure("Error: test run cancelled, %s was not executed", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	var res Result
	switch name {
	case ToolScrapePage:
		res = t.scrapePage(ctx)
	case ToolInputTextbox:
		res = t.inputTextbox(ctx, input)
	case ToolClickButton:
		res = t.clickButton(ctx, input)
	case ToolSQLInjectionTest:
		res = t.sqlInjectionTest(ctx, input)
	case ToolXSSTest:
		res = t.xssTest(ctx, input)
	default:
		res = failure("Error: unknown tool %q", name)
	}
	elapsed := time.Since(start)

	t.log(ctx).Debug(ctx, "tool call finished", logger.Fields{
		"tool":       name,
		"ok":         res.OK,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	if t.observer != nil {
		t.observer.ObserveToolCall(name, res.OK, elapsed)
	}
	return res
}

// log prefers the run scoped logger carried by ctx.
func (t *Toolset) log(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, t.logger)
}

func (t *Toolset) event(kind testrun.EventKind, msg string, detail testrun.Detail) {
	if t.recorder != nil {
		t.recorder.AddEvent(kind, msg, detail)
	}
}

func (t *Toolset) finding(f testrun.Finding) {
	if t.recorder != nil {
		t.recorder.AddFinding(f)
	}
}

// settle sleeps for d unless ctx ends first.
func settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// isBlank reports the inputs planners send when they have nothing to say.
func isBlank(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null":
		return true
	}
	return false
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.Trim(s, `'`)
}

// Definition describes a tool for planners and tool servers.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func querySchema(description string, required bool) json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": description,
			},
		},
	}
	if required {
		schema["required"] = []string{"query"}
	}
	raw, _ := json.Marshal(schema)
	return raw
}

// Definitions lists the five tools in a stable order.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        ToolScrapePage,
			Description: "Get the current page content, including text and form structure. Input: 'scrape' or leave empty.",
			InputSchema: querySchema("Optional query, use 'scrape' or leave empty", false),
		},
		{
			Name:        ToolInputTextbox,
			Description: "Enter text into an input field. Input should be: selector,text (e.g. \"input[name='username'],admin\")",
			InputSchema: querySchema("selector,text", true),
		},
		{
			Name:        ToolClickButton,
			Description: "Click a button, submit a form or click any clickable element. Input should be the CSS selector (e.g. \"input[type='submit']\")",
			InputSchema: querySchema("CSS selector of the element to click", true),
		},
		{
			Name:        ToolSQLInjectionTest,
			Description: "Test a login form for SQL injection with username admin and password ' OR 1=1--. Input should be: username_selector,password_selector (e.g. \"#username,#password\")",
			InputSchema: querySchema("username_selector,password_selector", true),
		},
		{
			Name:        ToolXSSTest,
			Description: "Test an input field for reflected XSS with a fixed list of payloads. Input should be the target selector (e.g. \"#search-input\")",
			InputSchema: querySchema("CSS selector of the input field", true),
		},
	}
}

// QueryFromArguments extracts the tool input from planner arguments. It
// accepts {"query": "..."}, {"input": "..."} or a bare JSON string.
func QueryFromArguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"query", "input"} {
			if v, ok := obj[key].(string); ok {
				return v
			}
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
