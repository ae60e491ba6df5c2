package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/playwright-community/playwright-go"
)

// Session is one headless browser bound to a single page. Methods must be
// called from one goroutine at a time; the toolset serializes access.
type Session struct {
	targetURL string
	config    Config
	logger    logger.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page

	closeOnce sync.Once
	closed    bool

	scratchMu sync.Mutex
	scratch   map[string]interface{}
}

// NewSession prepares a session for targetURL. Nothing is launched until Start.
func NewSession(targetURL string, cfg Config, log logger.Logger) *Session {
	return &Session{
		targetURL: targetURL,
		config:    cfg.withDefaults(),
		logger:    log,
		scratch:   make(map[string]interface{}),
	}
}

// TargetURL returns the URL the session was created for.
func (s *Session) TargetURL() string {
	return s.targetURL
}

// Start launches the browser and navigates to the target URL, waiting for the
// network to go idle. Any partially acquired resources are released on error.
func (s *Session) Start(ctx context.Context) error {
	if s.page != nil {
		return nil
	}
	if s.closed {
		return &SessionStartError{URL: s.targetURL, Stage: "launch", Err: ErrSessionClosed}
	}
	if err := ctx.Err(); err != nil {
		return &SessionStartError{URL: s.targetURL, Stage: "launch", Err: err}
	}

	if s.config.InstallDriver {
		err := playwright.Install(&playwright.RunOptions{
			Verbose: false,
			Stdout:  io.Discard,
			Stderr:  io.Discard,
		})
		if err != nil {
			return &SessionStartError{URL: s.targetURL, Stage: "install", Err: err}
		}
	}

	pw, err := playwright.Run(&playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	})
	if err != nil {
		return &SessionStartError{URL: s.targetURL, Stage: "driver", Err: err}
	}
	s.pw = pw

	headless := s.config.Headless
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		s.release()
		return &SessionStartError{URL: s.targetURL, Stage: "launch", Err: err}
	}
	s.browser = browser

	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  s.config.ViewportWidth,
			Height: s.config.ViewportHeight,
		},
		IgnoreHttpsErrors: playwright.Bool(s.config.IgnoreHTTPSErrors),
	}
	if s.config.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(s.config.UserAgent)
	}
	if len(s.config.Headers) > 0 {
		ctxOpts.ExtraHttpHeaders = s.config.Headers
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		s.release()
		return &SessionStartError{URL: s.targetURL, Stage: "context", Err: err}
	}
	s.bctx = bctx

	page, err := bctx.NewPage()
	if err != nil {
		s.release()
		return &SessionStartError{URL: s.targetURL, Stage: "page", Err: err}
	}
	page.SetDefaultTimeout(ms(s.config.Timeout))
	page.SetDefaultNavigationTimeout(ms(s.config.Timeout))
	s.page = page

	if err := s.Navigate(ctx, s.targetURL, WaitNetworkIdle); err != nil {
		s.release()
		return &SessionStartError{URL: s.targetURL, Stage: "navigate", Err: err}
	}

	s.logger.Info(ctx, "browser session started", logger.Fields{
		"target_url": s.targetURL,
		"headless":   s.config.Headless,
	})
	return nil
}

// Close releases the page, context, browser and driver in that order. It is
// safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.release()
		s.closed = true
	})
	return err
}

func (s *Session) release() error {
	var errs []error
	if s.page != nil {
		errs = append(errs, s.page.Close())
		s.page = nil
	}
	if s.bctx != nil {
		errs = append(errs, s.bctx.Close())
		s.bctx = nil
	}
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
		s.browser = nil
	}
	if s.pw != nil {
		errs = append(errs, s.pw.Stop())
		s.pw = nil
	}
	return errors.Join(errs...)
}

func (s *Session) ready(ctx context.Context) error {
	if s.closed || s.page == nil {
		return ErrSessionClosed
	}
	return ctx.Err()
}

// timeout bounds d by the time remaining on ctx.
func (s *Session) timeout(ctx context.Context, d time.Duration) time.Duration {
	if d <= 0 {
		d = s.config.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = max(left, time.Millisecond)
		}
	}
	return d
}

// URL returns the current page URL, or the target URL before Start.
func (s *Session) URL() string {
	if s.page == nil {
		return s.targetURL
	}
	return s.page.URL()
}

// Navigate loads rawURL and waits for the given load state. An unknown
// condition waits for network idle.
func (s *Session) Navigate(ctx context.Context, rawURL string, wait WaitCondition) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	timeout := s.timeout(ctx, 0)
	waitUntil := playwright.WaitUntilState(wait.orDefault())
	_, err := s.page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   playwright.Float(ms(timeout)),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
	}
	return nil
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilState(WaitNetworkIdle)
	_, err := s.page.Reload(playwright.PageReloadOptions{
		WaitUntil: &waitUntil,
		Timeout:   playwright.Float(ms(s.timeout(ctx, 0))),
	})
	if err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

// Back navigates one entry back in history.
func (s *Session) Back(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.page.GoBack(playwright.PageGoBackOptions{
		Timeout: playwright.Float(ms(s.timeout(ctx, 0))),
	})
	if err != nil {
		return fmt.Errorf("failed to go back: %w", err)
	}
	return nil
}

// Forward navigates one entry forward in history.
func (s *Session) Forward(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.page.GoForward(playwright.PageGoForwardOptions{
		Timeout: playwright.Float(ms(s.timeout(ctx, 0))),
	})
	if err != nil {
		return fmt.Errorf("failed to go forward: %w", err)
	}
	return nil
}

// GetContent renders the current page in format.
func (s *Session) GetContent(ctx context.Context, format ContentFormat) (*Content, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var (
		raw string
		err error
	)
	if format.usesMarkup() {
		raw, err = s.page.Content()
	} else {
		raw, err = s.page.Locator("body").InnerText()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	return NewContent(format, raw)
}

// locate returns the first element matching selector, or ElementNotFoundError.
func (s *Session) locate(selector string) (playwright.Locator, error) {
	loc := s.page.Locator(selector)
	n, err := loc.Count()
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	if n == 0 {
		return nil, &ElementNotFoundError{Selector: selector}
	}
	return loc.First(), nil
}

func (s *Session) interaction(action, selector string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &InteractionTimeoutError{Selector: selector, Action: action, Timeout: timeout, Err: err}
	}
	return fmt.Errorf("failed to %s %q: %w", action, selector, err)
}

// FillInput replaces the value of the input matched by selector.
func (s *Session) FillInput(ctx context.Context, selector, value string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loc, err := s.locate(selector)
	if err != nil {
		return err
	}
	timeout := s.timeout(ctx, 0)
	err = loc.Fill(value, playwright.LocatorFillOptions{Timeout: playwright.Float(ms(timeout))})
	return s.interaction("fill", selector, timeout, err)
}

// Click clicks the first element matched by selector. A zero timeout uses the
// session default.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loc, err := s.locate(selector)
	if err != nil {
		return err
	}
	timeout = s.timeout(ctx, timeout)
	err = loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(ms(timeout))})
	return s.interaction("click", selector, timeout, err)
}

// PressKey sends key to the element matched by selector.
func (s *Session) PressKey(ctx context.Context, selector, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loc, err := s.locate(selector)
	if err != nil {
		return err
	}
	timeout := s.timeout(ctx, 0)
	err = loc.Press(key, playwright.LocatorPressOptions{Timeout: playwright.Float(ms(timeout))})
	return s.interaction("press "+key+" on", selector, timeout, err)
}

// SelectOption selects the options with the given values in a select element.
func (s *Session) SelectOption(ctx context.Context, selector string, values ...string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loc, err := s.locate(selector)
	if err != nil {
		return err
	}
	timeout := s.timeout(ctx, 0)
	_, err = loc.SelectOption(
		playwright.SelectOptionValues{Values: &values},
		playwright.LocatorSelectOptionOptions{Timeout: playwright.Float(ms(timeout))},
	)
	return s.interaction("select option in", selector, timeout, err)
}

// SetChecked checks or unchecks a checkbox or radio button.
func (s *Session) SetChecked(ctx context.Context, selector string, checked bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loc, err := s.locate(selector)
	if err != nil {
		return err
	}
	timeout := s.timeout(ctx, 0)
	err = loc.SetChecked(checked, playwright.LocatorSetCheckedOptions{Timeout: playwright.Float(ms(timeout))})
	return s.interaction("set checked on", selector, timeout, err)
}

// UploadFile attaches an in-memory file to a file input.
func (s *Session) UploadFile(ctx context.Context, selector, name, mimeType string, data []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loc, err := s.locate(selector)
	if err != nil {
		return err
	}
	timeout := s.timeout(ctx, 0)
	err = loc.SetInputFiles([]playwright.InputFile{{
		Name:     name,
		MimeType: mimeType,
		Buffer:   data,
	}}, playwright.LocatorSetInputFilesOptions{Timeout: playwright.Float(ms(timeout))})
	return s.interaction("upload file to", selector, timeout, err)
}

// Screenshot captures the page as PNG.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	data, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Timeout:  playwright.Float(ms(s.timeout(ctx, 0))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

// Set stores a value in the session scratch space.
func (s *Session) Set(key string, value interface{}) {
	s.scratchMu.Lock()
	defer s.scratchMu.Unlock()
	s.scratch[key] = value
}

// Get reads a value from the session scratch space.
func (s *Session) Get(key string) (interface{}, bool) {
	s.scratchMu.Lock()
	defer s.scratchMu.Unlock()
	v, ok := s.scratch[key]
	return v, ok
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

func jsQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}
