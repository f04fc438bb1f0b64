package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"courtsync/internal/browser"
	"courtsync/internal/logging"
	"courtsync/internal/portal"
	"courtsync/internal/store"
)

// DefaultPath is where the CLI looks for the config file.
const DefaultPath = "courtsync.yaml"

// Config holds all courtsync configuration.
type Config struct {
	Browser     browser.Config    `yaml:"browser"`
	Portals     PortalsConfig     `yaml:"portals"`
	Run         RunConfig         `yaml:"run"`
	Store       StoreConfig       `yaml:"store"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     logging.Config    `yaml:"logging"`
}

// PortalsConfig holds the entry address of each tribunal portal.
type PortalsConfig struct {
	STF PortalConfig `yaml:"stf"`
	STJ PortalConfig `yaml:"stj"`
}

// PortalConfig configures one portal.
type PortalConfig struct {
	BaseURL string `yaml:"base_url"`
}

// StoreConfig configures the record store.
type StoreConfig struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"` // sqlite (modernc) or sqlite3 (mattn)
}

// DiagnosticsConfig configures the screenshot and HTML dumps.
type DiagnosticsConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: browser.DefaultConfig(),
		Portals: PortalsConfig{
			STF: PortalConfig{BaseURL: "https://portal.stf.jus.br/"},
			STJ: PortalConfig{BaseURL: "https://processo.stj.jus.br/processo/pesquisa/?aplicacao=processos.ea"},
		},
		Run: RunConfig{
			ElementTimeout: "10s",
			ResultTimeout:  "15s",
			TypingDelay:    "100ms",
			PollInterval:   "500ms",
			SettleDelay:    "2s",
			RetryDelay:     "2s",
			MaxRetries:     3,
		},
		Store: StoreConfig{
			Path:   "data/courtsync.db",
			Driver: store.DriverModernc,
		},
		Diagnostics: DiagnosticsConfig{Dir: "diagnostics"},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("COURTSYNC_DB"); path != "" {
		c.Store.Path = path
	}
	if v := os.Getenv("COURTSYNC_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if backend := os.Getenv("COURTSYNC_BACKEND"); backend != "" {
		c.Browser.Backend = backend
	}
	if u := os.Getenv("COURTSYNC_DEBUGGER_URL"); u != "" {
		c.Browser.DebuggerURL = u
	}
	if level := os.Getenv("COURTSYNC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// BaseURL returns the configured entry address of t.
func (c *Config) BaseURL(t portal.Tribunal) string {
	switch t {
	case portal.TribunalSTF:
		return c.Portals.STF.BaseURL
	case portal.TribunalSTJ:
		return c.Portals.STJ.BaseURL
	}
	return ""
}

// BrowserConfig returns the browser section with the diagnostics directory
// filled in.
func (c *Config) BrowserConfig() browser.Config {
	b := c.Browser
	b.DiagnosticsDir = c.Diagnostics.Dir
	return b
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case "", browser.BackendRod, browser.BackendChromedp:
	default:
		return fmt.Errorf("invalid browser backend: %s (valid: %s, %s)", c.Browser.Backend, browser.BackendRod, browser.BackendChromedp)
	}
	switch c.Store.Driver {
	case "", store.DriverModernc, store.DriverMattn:
	default:
		return fmt.Errorf("invalid store driver: %s (valid: %s, %s)", c.Store.Driver, store.DriverModernc, store.DriverMattn)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path not configured (set store.path or COURTSYNC_DB)")
	}
	for _, t := range portal.Tribunals {
		u, err := url.Parse(c.BaseURL(t))
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("invalid %s base_url: %q", t, c.BaseURL(t))
		}
	}
	if c.Run.MaxRetries < 0 {
		return fmt.Errorf("run.max_retries must not be negative, got %d", c.Run.MaxRetries)
	}
	if err := c.Run.validate(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}
