package browser

import (
	"context"
	"errors"
	"time"

	"github.com/playwright-community/playwright-go"
)

// WaitCondition is the load state a navigation waits for.
type WaitCondition string

const (
	WaitLoad        WaitCondition = "load"
	WaitDOMReady    WaitCondition = "domcontentloaded"
	WaitNetworkIdle WaitCondition = "networkidle"
)

func (w WaitCondition) orDefault() WaitCondition {
	switch w {
	case WaitLoad, WaitDOMReady, WaitNetworkIdle:
		return w
	}
	return WaitNetworkIdle
}

const urlPollInterval = 100 * time.Millisecond

func (s *Session) waitErr(cond string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &WaitTimeoutError{Condition: cond, Timeout: timeout}
	}
	return err
}

// WaitForElement waits until selector matches a visible element.
func (s *Session) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	timeout = s.timeout(ctx, timeout)
	state := playwright.WaitForSelectorState("visible")
	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   &state,
		Timeout: playwright.Float(ms(timeout)),
	})
	return s.waitErr("element "+selector, timeout, err)
}

// WaitForText waits until the page body contains text.
func (s *Session) WaitForText(ctx context.Context, text string, timeout time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	timeout = s.timeout(ctx, timeout)
	expr := "() => document.body && document.body.innerText.includes(" + jsQuote(text) + ")"
	_, err := s.page.WaitForFunction(expr, nil, playwright.PageWaitForFunctionOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	return s.waitErr("text "+text, timeout, err)
}

// WaitForNetworkIdle waits until there are no network connections for at
// least 500ms.
func (s *Session) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	timeout = s.timeout(ctx, timeout)
	state := playwright.LoadState(WaitNetworkIdle)
	err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &state,
		Timeout: playwright.Float(ms(timeout)),
	})
	return s.waitErr("network idle", timeout, err)
}

// WaitForURLChange waits until the page URL differs from from.
func (s *Session) WaitForURLChange(ctx context.Context, from string, timeout time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	timeout = s.timeout(ctx, timeout)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()

	for {
		if s.page.URL() != from {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &WaitTimeoutError{Condition: "url change", Timeout: timeout}
		case <-ticker.C:
		}
	}
}
