package toolset

import "time"

// Config holds the detection heuristics and timing used by the tools. The
// defaults favour recall over precision: a page that merely mentions "home"
// after a login attempt is reported as a bypass.
type Config struct {
	// InputSettle is waited after filling a field so client-side validation can run.
	InputSettle time.Duration
	// FieldSettle is waited after each field fill during the SQL injection test.
	FieldSettle time.Duration
	// NavigationWait bounds the wait for a URL change or success signal.
	NavigationWait time.Duration
	// NetworkIdleWait bounds the network idle fallback after a click.
	NetworkIdleWait time.Duration
	// ClickSettle is waited when neither navigation nor network idle is observed.
	ClickSettle time.Duration
	// TriggerSettle is waited after each XSS trigger attempt.
	TriggerSettle time.Duration
	// ActionTimeout bounds each candidate in a submission chain.
	ActionTimeout time.Duration
	// PollInterval is how often the page is checked while waiting for a signal.
	PollInterval time.Duration

	ContentPreviewLimit int

	SQLIUsername string
	SQLIPayload  string
	// SubmitSignals are matched case-sensitively while waiting for the login
	// response; SuccessIndicators are matched case-insensitively for the verdict.
	SubmitSignals     []string
	SuccessIndicators []string

	XSSPayloads    []string
	DangerousChars []string
}

// DefaultConfig returns the stock heuristics.
func DefaultConfig() Config {
	return Config{
		InputSettle:         500 * time.Millisecond,
		FieldSettle:         300 * time.Millisecond,
		NavigationWait:      3 * time.Second,
		NetworkIdleWait:     2 * time.Second,
		ClickSettle:         time.Second,
		TriggerSettle:       time.Second,
		ActionTimeout:       5 * time.Second,
		PollInterval:        100 * time.Millisecond,
		ContentPreviewLimit: 1000,
		SQLIUsername:        "admin",
		SQLIPayload:         "' OR 1=1--",
		SubmitSignals:       []string{"Welcome", "Dashboard", "successful"},
		SuccessIndicators: []string{
			"welcome",
			"dashboard",
			"successful",
			"logged in",
			"authentication successful",
			"home",
			"profile",
			"logout",
		},
		XSSPayloads: []string{
			"<script>alert('XSS')</script>",
			"<img src=x onerror=alert('XSS')>",
			"<svg onload=alert('XSS')>",
			"javascript:alert('XSS')",
			"<iframe src=javascript:alert('XSS')>",
			"'><script>alert('XSS')</script>",
			"\"><script>alert('XSS')</script>",
			"<scr<script>ipt>alert('XSS')</scr</script>ipt>",
			"<SCRIPT>alert('XSS')</SCRIPT>",
			"%3Cscript%3Ealert('XSS')%3C/script%3E",
		},
		DangerousChars: []string{"<", ">", "\"", "'"},
	}
}
