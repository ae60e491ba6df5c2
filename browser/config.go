package browser

import "time"

// Defaults used by the orchestrator when nothing is configured.
const (
	DefaultTimeout        = 15 * time.Second
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
)

// Config holds the launch and page settings for one session.
type Config struct {
	Headless bool
	// Timeout is the page-level default for navigation, interactions and waits.
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	Headers        map[string]string
	// IgnoreHTTPSErrors allows probing targets with self-signed certificates.
	IgnoreHTTPSErrors bool
	// InstallDriver downloads the playwright driver and browsers before launch.
	InstallDriver bool
}

// DefaultConfig returns a headless 1920x1080 configuration with a 15s timeout.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		Timeout:        DefaultTimeout,
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	return c
}
