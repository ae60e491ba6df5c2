package toolset

import (
	"context"
	"testing"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/stretchr/testify/require"
)

// fakePage is a scripted Page. Selectors not listed in elements do not exist.
type fakePage struct {
	url      string
	elements map[string]bool
	values   map[string]string

	markup func(p *fakePage) string
	text   func(p *fakePage) string

	onClick map[string]func(p *fakePage)
	onPress func(p *fakePage, selector, key string)

	fillFailures int
	pressErr     error
	contentErr   map[browser.ContentFormat]error

	fills  []string
	clicks []string
}

func newFakePage(url string, selectors ...string) *fakePage {
	p := &fakePage{
		url:        url,
		elements:   make(map[string]bool),
		values:     make(map[string]string),
		onClick:    make(map[string]func(p *fakePage)),
		contentErr: make(map[browser.ContentFormat]error),
	}
	for _, s := range selectors {
		p.elements[s] = true
	}
	return p
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) GetContent(ctx context.Context, format browser.ContentFormat) (*browser.Content, error) {
	if err := p.contentErr[format]; err != nil {
		return nil, err
	}
	raw := ""
	switch format {
	case browser.FormatHTML, browser.FormatDOM:
		if p.markup != nil {
			raw = p.markup(p)
		}
	default:
		if p.text != nil {
			raw = p.text(p)
		}
	}
	return browser.NewContent(format, raw)
}

func (p *fakePage) FillInput(ctx context.Context, selector, value string) error {
	if p.fillFailures > 0 {
		p.fillFailures--
		return &browser.InteractionTimeoutError{Selector: selector, Action: "fill", Timeout: time.Second}
	}
	if !p.elements[selector] {
		return &browser.ElementNotFoundError{Selector: selector}
	}
	p.values[selector] = value
	p.fills = append(p.fills, selector+"="+value)
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if !p.elements[selector] {
		return &browser.ElementNotFoundError{Selector: selector}
	}
	p.clicks = append(p.clicks, selector)
	if fn := p.onClick[selector]; fn != nil {
		fn(p)
	}
	return nil
}

func (p *fakePage) PressKey(ctx context.Context, selector, key string) error {
	if p.pressErr != nil {
		return p.pressErr
	}
	if !p.elements[selector] {
		return &browser.ElementNotFoundError{Selector: selector}
	}
	if p.onPress != nil {
		p.onPress(p, selector, key)
	}
	return nil
}

func (p *fakePage) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (p *fakePage) WaitForURLChange(ctx context.Context, from string, timeout time.Duration) error {
	if p.url != from {
		return nil
	}
	return &browser.WaitTimeoutError{Condition: "url change", Timeout: timeout}
}

type recordingObserver struct {
	calls []string
}

func (o *recordingObserver) ObserveToolCall(tool string, ok bool, elapsed time.Duration) {
	o.calls = append(o.calls, tool)
}

// testConfig removes every delay so tests run instantly.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InputSettle = 0
	cfg.FieldSettle = 0
	cfg.NavigationWait = 0
	cfg.NetworkIdleWait = 0
	cfg.ClickSettle = 0
	cfg.TriggerSettle = 0
	cfg.PollInterval = time.Millisecond
	return cfg
}

func newTestToolset(t *testing.T, page Page) (*Toolset, *testrun.TestRun) {
	t.Helper()
	run, err := testrun.New("http://target.local/login")
	require.NoError(t, err)
	require.NoError(t, run.Start())
	return New(page, run, testConfig(), logger.NewTestLogger()), run
}

func eventMessages(run *testrun.TestRun) []string {
	events, _ := run.EventsSince(0)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Message
	}
	return out
}
