package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ActionKind is the interaction performed on an element.
type ActionKind int

const (
	ActionClick ActionKind = iota
	ActionInput
	ActionClear
	ActionSelectIndex
)

// Action is an interaction on the element matched by a selector.
type Action struct {
	Kind  ActionKind
	Text  string
	Index int
}

func Click() Action { return Action{Kind: ActionClick} }
func Input(text string) Action { return Action{Kind: ActionInput, Text: text} }
func Clear() Action { return Action{Kind: ActionClear} }
func SelectIndex(i int) Action { return Action{Kind: ActionSelectIndex, Index: i} }

func (a Action) String() string {
	switch a.Kind {
	case ActionClick:
		return "click"
	case ActionInput:
		return fmt.Sprintf("input(%q)", a.Text)
	case ActionClear:
		return "clear"
	case ActionSelectIndex:
		return fmt.Sprintf("select(%d)", a.Index)
	}
	return "unknown"
}

// Driver is the interactive session contract. Selectors are CSS selectors.
// Every call blocks at most for its timeout; expiry is reported as ErrTimeout.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Await(ctx context.Context, selector string, timeout time.Duration) error
	Act(ctx context.Context, selector string, action Action) error
	// Run evaluates a JavaScript function expression with args and returns its
	// JSON encoded value ("null" when it returns nothing).
	Run(ctx context.Context, script string, args ...any) (json.RawMessage, error)
	Snapshot(ctx context.Context, label string) (ArtifactRef, error)
	Content(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
}

// RunString evaluates script and decodes a string result. A null or
// non-string result yields "".
func RunString(ctx context.Context, d Driver, script string, args ...any) (string, error) {
	raw, err := d.Run(ctx, script, args...)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", nil
	}
	return s, nil
}

// RunBool evaluates script and decodes a boolean result.
func RunBool(ctx context.Context, d Driver, script string, args ...any) (bool, error) {
	raw, err := d.Run(ctx, script, args...)
	if err != nil {
		return false, err
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, nil
	}
	return b, nil
}

// LoadPage reads the rendered content and current address into a Page.
func LoadPage(ctx context.Context, d Driver) (*Page, error) {
	content, err := d.Content(ctx)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	url, err := d.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("read url: %w", err)
	}
	p, err := ParsePage(url, content)
	if err != nil {
		return nil, err
	}
	p.driver = d
	return p, nil
}

// WaitUntil polls cond every interval until it returns true or timeout expires.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Settings bound the interface waits of an adapter.
type Settings struct {
	BaseURL string
	// ElementTimeout bounds waits for single elements.
	ElementTimeout time.Duration
	// ResultTimeout bounds the wait for a query outcome to render.
	ResultTimeout time.Duration
	// TypingDelay is slept between typed characters.
	TypingDelay time.Duration
	// PollInterval paces condition polling.
	PollInterval time.Duration
}

// WithDefaults fills unset durations.
func (s Settings) WithDefaults() Settings {
	if s.ElementTimeout <= 0 {
		s.ElementTimeout = 10 * time.Second
	}
	if s.ResultTimeout <= 0 {
		s.ResultTimeout = 15 * time.Second
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 500 * time.Millisecond
	}
	return s
}

// ClickFirst clicks the first selector that appears within timeout, trying
// them in order. It returns the selector clicked.
func ClickFirst(ctx context.Context, d Driver, timeout time.Duration, selectors ...string) (string, error) {
	var errs []error
	for _, sel := range selectors {
		if err := d.Await(ctx, sel, timeout); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.Act(ctx, sel, Click()); err != nil {
			errs = append(errs, err)
			continue
		}
		return sel, nil
	}
	return "", fmt.Errorf("no clickable element among %v: %w", selectors, errors.Join(errs...))
}
