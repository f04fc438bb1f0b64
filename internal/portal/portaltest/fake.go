// Package portaltest provides in-memory doubles for the portal session and
// record store.
package portaltest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"courtsync/internal/portal"
)

// Call is one recorded driver interaction.
type Call struct {
	Method   string
	Selector string
	Action   portal.Action
	Script   string
	Args     []any
}

// ScriptHandler answers scripts containing Match.
type ScriptHandler struct {
	Match string
	Fn    func(args []any) (any, error)
}

// FakeDriver serves scripted HTML. Hooks can swap the page in response to
// navigation and actions.
type FakeDriver struct {
	mu        sync.Mutex
	html      string
	url       string
	calls     []Call
	snapshots []string

	scripts []ScriptHandler
	clicks  map[string]string

	// OnNavigate runs for every Navigate call.
	OnNavigate func(d *FakeDriver, url string) error
	// OnAct runs for every Act call, after click transitions are applied.
	OnAct func(d *FakeDriver, selector string, a portal.Action) error
	// OnContent runs after every Content call with the html it returned.
	OnContent func(d *FakeDriver, served string)
	// Err, when set, fails every call.
	Err error
}

// NewFakeDriver starts at url showing html.
func NewFakeDriver(url, html string) *FakeDriver {
	return &FakeDriver{url: url, html: html, clicks: make(map[string]string)}
}

// SetPage replaces the rendered content.
func (d *FakeDriver) SetPage(url, html string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if url != "" {
		d.url = url
	}
	d.html = html
}

// OnClick makes a click on selector render html.
func (d *FakeDriver) OnClick(selector, html string) *FakeDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicks[selector] = html
	return d
}

// HandleScript registers a script answer. Handlers are matched in order.
func (d *FakeDriver) HandleScript(match string, fn func(args []any) (any, error)) *FakeDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = append(d.scripts, ScriptHandler{Match: match, Fn: fn})
	return d
}

// ScriptValue registers a constant script answer.
func (d *FakeDriver) ScriptValue(match string, v any) *FakeDriver {
	return d.HandleScript(match, func([]any) (any, error) { return v, nil })
}

// Calls returns the recorded interactions.
func (d *FakeDriver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Called counts recorded calls of method, optionally restricted to a selector.
func (d *FakeDriver) Called(method, selector string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method && (selector == "" || c.Selector == selector) {
			n++
		}
	}
	return n
}

// Snapshots returns the labels of every snapshot taken.
func (d *FakeDriver) Snapshots() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.snapshots...)
}

func (d *FakeDriver) record(c Call) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	return d.Err
}

func (d *FakeDriver) Navigate(_ context.Context, url string) error {
	if err := d.record(Call{Method: "Navigate", Selector: url}); err != nil {
		return err
	}
	d.mu.Lock()
	d.url = url
	hook := d.OnNavigate
	d.mu.Unlock()
	if hook != nil {
		return hook(d, url)
	}
	return nil
}

func (d *FakeDriver) Await(ctx context.Context, selector string, _ time.Duration) error {
	if err := d.record(Call{Method: "Await", Selector: selector}); err != nil {
		return err
	}
	p, err := d.page()
	if err != nil {
		return err
	}
	if !p.Has(selector) {
		return fmt.Errorf("await %s: %w", selector, portal.ErrTimeout)
	}
	return nil
}

func (d *FakeDriver) Act(_ context.Context, selector string, a portal.Action) error {
	if err := d.record(Call{Method: "Act", Selector: selector, Action: a}); err != nil {
		return err
	}
	p, err := d.page()
	if err != nil {
		return err
	}
	if !p.Has(selector) {
		return fmt.Errorf("act %s on %s: %w", a, selector, portal.ErrTimeout)
	}
	d.mu.Lock()
	next, ok := d.clicks[selector]
	if ok && a.Kind == portal.ActionClick {
		d.html = next
	}
	hook := d.OnAct
	d.mu.Unlock()
	if hook != nil {
		return hook(d, selector, a)
	}
	return nil
}

func (d *FakeDriver) Run(_ context.Context, script string, args ...any) (json.RawMessage, error) {
	if err := d.record(Call{Method: "Run", Script: script, Args: args}); err != nil {
		return nil, err
	}
	d.mu.Lock()
	handlers := append([]ScriptHandler(nil), d.scripts...)
	d.mu.Unlock()
	for _, h := range handlers {
		if !strings.Contains(script, h.Match) {
			continue
		}
		v, err := h.Fn(args)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	return json.RawMessage("null"), nil
}

func (d *FakeDriver) Snapshot(_ context.Context, label string) (portal.ArtifactRef, error) {
	if err := d.record(Call{Method: "Snapshot", Selector: label}); err != nil {
		return portal.ArtifactRef{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots = append(d.snapshots, label)
	return portal.ArtifactRef{Label: label, HTML: "diagnostics/" + label + ".html"}, nil
}

func (d *FakeDriver) Content(context.Context) (string, error) {
	if err := d.record(Call{Method: "Content"}); err != nil {
		return "", err
	}
	d.mu.Lock()
	html, hook := d.html, d.OnContent
	d.mu.Unlock()
	if hook != nil {
		hook(d, html)
	}
	return html, nil
}

func (d *FakeDriver) URL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, d.Err
}

func (d *FakeDriver) page() (*portal.Page, error) {
	d.mu.Lock()
	url, html := d.url, d.html
	d.mu.Unlock()
	return portal.ParsePage(url, html)
}

var _ portal.Driver = (*FakeDriver)(nil)
