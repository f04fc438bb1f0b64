package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"courtsync/internal/browser"
	"courtsync/internal/portal"
	"courtsync/internal/store"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"COURTSYNC_DB", "COURTSYNC_HEADLESS", "COURTSYNC_BACKEND", "COURTSYNC_DEBUGGER_URL", "COURTSYNC_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Browser.Backend != browser.BackendRod {
		t.Errorf("expected Backend=rod, got %s", cfg.Browser.Backend)
	}
	if cfg.Store.Driver != store.DriverModernc {
		t.Errorf("expected Driver=sqlite, got %s", cfg.Store.Driver)
	}
	if cfg.Run.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.Run.MaxRetries)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "courtsync.yaml")

	cfg := DefaultConfig()
	cfg.Browser.Headless = true
	cfg.Browser.Launch = []string{"/usr/bin/chromium", "--no-sandbox"}
	cfg.Run.RetryDelay = "250ms"
	cfg.Logging.Categories = map[string]bool{"store": false}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Browser.Headless || len(loaded.Browser.Launch) != 2 {
		t.Errorf("browser section not round-tripped: %+v", loaded.Browser)
	}
	if loaded.Run.GetRetryDelay() != 250*time.Millisecond {
		t.Errorf("expected RetryDelay=250ms, got %v", loaded.Run.GetRetryDelay())
	}
	if enabled, ok := loaded.Logging.Categories["store"]; !ok || enabled {
		t.Errorf("category switch lost: %v", loaded.Logging.Categories)
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Path != DefaultConfig().Store.Path {
		t.Errorf("expected default store path, got %s", cfg.Store.Path)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "courtsync.yaml")
	if err := os.WriteFile(path, []byte("run:\n  max_retries: 1\nportals:\n  stf:\n    base_url: http://localhost:9000/\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Run.MaxRetries != 1 {
		t.Errorf("expected MaxRetries=1, got %d", cfg.Run.MaxRetries)
	}
	if cfg.BaseURL(portal.TribunalSTF) != "http://localhost:9000/" {
		t.Errorf("STF base url = %s", cfg.BaseURL(portal.TribunalSTF))
	}
	if cfg.BaseURL(portal.TribunalSTJ) != DefaultConfig().Portals.STJ.BaseURL {
		t.Errorf("STJ base url should keep its default, got %s", cfg.BaseURL(portal.TribunalSTJ))
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courtsync.yaml")
	if err := os.WriteFile(path, []byte("run: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("COURTSYNC_DB", "/tmp/override.db")
	t.Setenv("COURTSYNC_HEADLESS", "true")
	t.Setenv("COURTSYNC_BACKEND", "chromedp")
	t.Setenv("COURTSYNC_DEBUGGER_URL", "ws://127.0.0.1:9222/devtools/browser/x")
	t.Setenv("COURTSYNC_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Path != "/tmp/override.db" {
		t.Errorf("expected store path override, got %s", cfg.Store.Path)
	}
	if !cfg.Browser.Headless {
		t.Error("expected headless override")
	}
	if cfg.Browser.Backend != browser.BackendChromedp {
		t.Errorf("expected backend override, got %s", cfg.Browser.Backend)
	}
	if cfg.Browser.DebuggerURL == "" {
		t.Error("expected debugger url override")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level override, got %s", cfg.Logging.Level)
	}

	t.Setenv("COURTSYNC_HEADLESS", "maybe")
	cfg = DefaultConfig()
	cfg.applyEnvOverrides()
	if cfg.Browser.Headless {
		t.Error("unparsable COURTSYNC_HEADLESS must be ignored")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Browser.Backend = "selenium" }},
		{"driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"store path", func(c *Config) { c.Store.Path = "" }},
		{"base url", func(c *Config) { c.Portals.STJ.BaseURL = "processo.stj.jus.br" }},
		{"retries", func(c *Config) { c.Run.MaxRetries = -1 }},
		{"duration", func(c *Config) { c.Run.SettleDelay = "soon" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Run = RunConfig{ElementTimeout: "bogus", ResultTimeout: "1s", MaxRetries: 5, RetryDelay: "-1s"}
	cfg.Diagnostics.Dir = "/var/tmp/diag"

	s := cfg.Settings(portal.TribunalSTJ)
	if s.ElementTimeout != 10*time.Second {
		t.Errorf("unparsable duration should fall back, got %v", s.ElementTimeout)
	}
	if s.ResultTimeout != time.Second {
		t.Errorf("ResultTimeout = %v", s.ResultTimeout)
	}
	if s.BaseURL != cfg.Portals.STJ.BaseURL {
		t.Errorf("BaseURL = %s", s.BaseURL)
	}

	opts := cfg.Options()
	if opts.MaxRetries != 5 || opts.RetryDelay != 2*time.Second || opts.Now == nil {
		t.Errorf("Options = %+v", opts)
	}
	if cfg.BrowserConfig().DiagnosticsDir != "/var/tmp/diag" {
		t.Error("BrowserConfig should carry the diagnostics dir")
	}
	if cfg.BaseURL("TST") != "" {
		t.Error("unknown tribunal should have no base url")
	}
}
