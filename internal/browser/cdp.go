package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"courtsync/internal/portal"
)

// CDPDriver implements portal.Driver over chromedp. It keeps one tab open for
// the whole run; every call derives a bounded context from that tab.
type CDPDriver struct {
	cfg    Config
	logger *zap.Logger
	diag   *Diagnostics

	mu          sync.Mutex
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

var _ portal.Driver = (*CDPDriver)(nil)

// NewCDPDriver creates a chromedp backed driver.
func NewCDPDriver(cfg Config, logger *zap.Logger) *CDPDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CDPDriver{cfg: cfg, logger: logger, diag: NewDiagnostics(cfg.DiagnosticsDir)}
}

// allocatorOptions mirrors the rod launch settings for chromedp.
func (d *CDPDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.IsHeadless()),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(d.cfg.GetViewportWidth(), d.cfg.GetViewportHeight()),
	)
	if d.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.cfg.UserAgent))
	}
	if len(d.cfg.Launch) > 0 {
		opts = append(opts, chromedp.ExecPath(d.cfg.Launch[0]))
		for _, rawFlag := range d.cfg.Launch[1:] {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				opts = append(opts, chromedp.Flag(name, val))
			} else {
				opts = append(opts, chromedp.Flag(name, true))
			}
		}
	}
	return opts
}

// Start allocates the browser and opens the tab.
func (d *CDPDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tab != nil {
		return nil
	}

	var alloc context.Context
	if d.cfg.DebuggerURL != "" {
		alloc, d.allocCancel = chromedp.NewRemoteAllocator(context.Background(), d.cfg.DebuggerURL)
	} else {
		alloc, d.allocCancel = chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	}
	tab, cancel := chromedp.NewContext(alloc)

	// The first Run allocates the browser and binds it to tab's lifetime.
	if err := chromedp.Run(tab); err != nil {
		cancel()
		d.allocCancel()
		return fmt.Errorf("start chrome: %w", err)
	}
	startCtx, stop := context.WithTimeout(tab, d.cfg.NavigationTimeout())
	defer stop()
	unhook := context.AfterFunc(ctx, stop)
	defer unhook()
	if err := chromedp.Run(startCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(hideAutomation).Do(ctx)
		return err
	})); err != nil {
		cancel()
		d.allocCancel()
		return fmt.Errorf("install init script: %w", err)
	}

	d.tab, d.tabCancel = tab, cancel
	d.logger.Info("Browser session started", zap.String("backend", BackendChromedp), zap.Bool("headless", d.cfg.IsHeadless()))
	return nil
}

// Shutdown closes the tab and the browser.
func (d *CDPDriver) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tabCancel != nil {
		d.tabCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.tab, d.tabCancel, d.allocCancel = nil, nil, nil
	return nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (d *CDPDriver) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	d.mu.Lock()
	tab := d.tab
	d.mu.Unlock()
	if tab == nil {
		return errors.New("browser session not started")
	}

	runCtx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()
	unhook := context.AfterFunc(ctx, cancel)
	defer unhook()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w (%v)", op, portal.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (d *CDPDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, "navigate", d.cfg.NavigationTimeout(), chromedp.Navigate(url))
}

func (d *CDPDriver) Await(ctx context.Context, selector string, timeout time.Duration) error {
	return d.run(ctx, "await "+selector, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (d *CDPDriver) Act(ctx context.Context, selector string, action portal.Action) error {
	op := action.String() + " " + selector
	var a chromedp.Action
	switch action.Kind {
	case portal.ActionClick:
		a = chromedp.Click(selector, chromedp.ByQuery)
	case portal.ActionInput:
		a = chromedp.SendKeys(selector, action.Text, chromedp.ByQuery)
	case portal.ActionClear:
		a = chromedp.Clear(selector, chromedp.ByQuery)
	case portal.ActionSelectIndex:
		expr, err := invocation(`(sel, i) => {
			const el = document.querySelector(sel);
			if (!el) return false;
			el.selectedIndex = i;
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		}`, selector, action.Index)
		if err != nil {
			return err
		}
		var ok bool
		if err := d.run(ctx, op, d.cfg.ActionTimeout(), chromedp.Evaluate(expr, &ok)); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", op, portal.ErrTimeout)
		}
		return nil
	default:
		return fmt.Errorf("unsupported action %d", action.Kind)
	}
	return d.run(ctx, op, d.cfg.ActionTimeout(), a)
}

// Run wraps script in an invocation that returns its JSON encoding, so null
// and undefined results come back as the string "null".
func (d *CDPDriver) Run(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	expr, err := invocation(script, args...)
	if err != nil {
		return nil, err
	}
	expr = `(async () => { const v = await ` + expr + `; return JSON.stringify(v === undefined ? null : v); })()`

	var out string
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams { return p.WithAwaitPromise(true) }
	if err := d.run(ctx, "run script", d.cfg.ActionTimeout(), chromedp.Evaluate(expr, &out, awaitPromise)); err != nil {
		return nil, err
	}
	if out == "" {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(out), nil
}

// invocation renders script applied to the JSON encoding of args.
func invocation(script string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	return "(" + script + ")(" + strings.Join(encoded, ", ") + ")", nil
}

func (d *CDPDriver) Snapshot(ctx context.Context, label string) (portal.ArtifactRef, error) {
	var png []byte
	var html string
	shotErr := d.run(ctx, "screenshot", d.cfg.ActionTimeout(), chromedp.FullScreenshot(&png, 100))
	htmlErr := d.run(ctx, "read html", d.cfg.ActionTimeout(), chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	ref, err := d.diag.Write(label, png, html)
	if err != nil {
		return ref, errors.Join(err, shotErr, htmlErr)
	}
	return ref, nil
}

func (d *CDPDriver) Content(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, "read html", d.cfg.ActionTimeout(), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (d *CDPDriver) URL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, "read location", d.cfg.ActionTimeout(), chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}
