package config

import (
	"fmt"
	"time"

	"courtsync/internal/portal"
)

// RunConfig tunes the query loop. Durations are Go duration strings.
type RunConfig struct {
	ElementTimeout string `yaml:"element_timeout"`
	ResultTimeout  string `yaml:"result_timeout"`
	TypingDelay    string `yaml:"typing_delay"`
	PollInterval   string `yaml:"poll_interval"`
	SettleDelay    string `yaml:"settle_delay"`
	RetryDelay     string `yaml:"retry_delay"`
	MaxRetries     int    `yaml:"max_retries"`
}

func parseOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetElementTimeout returns how long to wait for a form element.
func (r RunConfig) GetElementTimeout() time.Duration { return parseOr(r.ElementTimeout, 10*time.Second) }

// GetResultTimeout returns how long to wait for a query outcome to render.
func (r RunConfig) GetResultTimeout() time.Duration { return parseOr(r.ResultTimeout, 15*time.Second) }

// GetTypingDelay returns the pause between typed characters.
func (r RunConfig) GetTypingDelay() time.Duration { return parseOr(r.TypingDelay, 100*time.Millisecond) }

// GetPollInterval returns the polling period of conditional waits.
func (r RunConfig) GetPollInterval() time.Duration { return parseOr(r.PollInterval, 500*time.Millisecond) }

// GetSettleDelay returns the wait before re-classifying an ambiguous page.
func (r RunConfig) GetSettleDelay() time.Duration { return parseOr(r.SettleDelay, 2*time.Second) }

// GetRetryDelay returns the pause between attempts of one case.
func (r RunConfig) GetRetryDelay() time.Duration { return parseOr(r.RetryDelay, 2*time.Second) }

func (r RunConfig) validate() error {
	for name, v := range map[string]string{
		"element_timeout": r.ElementTimeout,
		"result_timeout":  r.ResultTimeout,
		"typing_delay":    r.TypingDelay,
		"poll_interval":   r.PollInterval,
		"settle_delay":    r.SettleDelay,
		"retry_delay":     r.RetryDelay,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("invalid run.%s: %q", name, v)
		}
	}
	return nil
}

// Settings returns the adapter settings for t.
func (c *Config) Settings(t portal.Tribunal) portal.Settings {
	return portal.Settings{
		BaseURL:        c.BaseURL(t),
		ElementTimeout: c.Run.GetElementTimeout(),
		ResultTimeout:  c.Run.GetResultTimeout(),
		TypingDelay:    c.Run.GetTypingDelay(),
		PollInterval:   c.Run.GetPollInterval(),
	}
}

// Options returns the orchestrator options.
func (c *Config) Options() portal.Options {
	opts := portal.DefaultOptions()
	opts.MaxRetries = c.Run.MaxRetries
	opts.RetryDelay = c.Run.GetRetryDelay()
	opts.SettleDelay = c.Run.GetSettleDelay()
	return opts
}
