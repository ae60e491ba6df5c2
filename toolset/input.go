package toolset

import (
	"context"
	"strings"

	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
)

func (t *Toolset) inputTextbox(ctx context.Context, query string) Result {
	if isBlank(query) {
		return failure("Error: Input required in format 'selector,text'")
	}
	selector, text, ok := strings.Cut(query, ",")
	if !ok {
		return failure("Error: Input should be 'selector,text'")
	}
	selector = trimQuotes(selector)
	text = trimQuotes(text)
	if selector == "" {
		return failure("Error: Input should be 'selector,text'")
	}

	t.event(testrun.EventInput, "Testing input field: "+selector, testrun.Detail{
		"field": selector,
		"value": text,
	})

	if err := t.page.FillInput(ctx, selector, ""); err != nil {
		return failure("Error typing into textbox: %v", err)
	}
	if err := t.page.FillInput(ctx, selector, text); err != nil {
		return failure("Error typing into textbox: %v", err)
	}
	settle(ctx, t.config.InputSettle)

	return success("Successfully typed '%s' into element with selector '%s'", text, selector)
}

func (t *Toolset) clickButton(ctx context.Context, query string) Result {
	if isBlank(query) {
		return failure("Error: CSS selector required")
	}
	selector := trimQuotes(query)

	t.event(testrun.EventClick, "Clicking element: "+selector, testrun.Detail{
		"element": selector,
	})

	before := t.page.URL()
	if err := t.page.Click(ctx, selector, 0); err != nil {
		return failure("Error clicking button: %v", err)
	}

	if err := t.page.WaitForURLChange(ctx, before, t.config.NavigationWait); err != nil {
		if err := t.page.WaitForNetworkIdle(ctx, t.config.NetworkIdleWait); err != nil {
			settle(ctx, t.config.ClickSettle)
		}
	}

	after := t.page.URL()
	if after != before {
		return success("Successfully clicked element '%s' - navigated from %s to %s", selector, before, after)
	}
	return success("Successfully clicked element '%s' - no navigation detected", selector)
}
