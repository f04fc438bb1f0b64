// Package browser drives a Chrome instance on behalf of the portal adapters.
// Two backends implement portal.Driver: rod (default) and chromedp.
package browser

import "time"

// Backend names.
const (
	BackendRod      = "rod"
	BackendChromedp = "chromedp"
)

// Config holds browser configuration.
type Config struct {
	Backend             string   `yaml:"backend" json:"backend"`
	DebuggerURL         string   `yaml:"debugger_url" json:"debugger_url"`
	Launch              []string `yaml:"launch" json:"launch"`
	Headless            bool     `yaml:"headless" json:"headless"`
	ViewportWidth       int      `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height" json:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms" json:"navigation_timeout_ms"`
	ActionTimeoutMs     int      `yaml:"action_timeout_ms" json:"action_timeout_ms"`
	UserAgent           string   `yaml:"user_agent" json:"user_agent"`
	// DiagnosticsDir receives screenshots and HTML dumps.
	DiagnosticsDir string `yaml:"-" json:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:             BackendRod,
		Headless:            false,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		ActionTimeoutMs:     5000,
		DiagnosticsDir:      "diagnostics",
	}
}

// IsHeadless returns the headless setting.
func (c Config) IsHeadless() bool {
	return c.Headless
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// ActionTimeout bounds the element lookup behind a click or keystroke.
func (c Config) ActionTimeout() time.Duration {
	if c.ActionTimeoutMs == 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ActionTimeoutMs) * time.Millisecond
}

// hideAutomation masks the webdriver flag some portals check before serving
// the search form.
const hideAutomation = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// selectIndexScript selects option i of the <select> bound to this and fires
// change so the page reacts as it would to a user.
const selectIndexScript = `function(i) {
	this.selectedIndex = i;
	this.dispatchEvent(new Event('change', {bubbles: true}));
}`
