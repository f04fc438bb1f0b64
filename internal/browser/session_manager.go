package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"courtsync/internal/portal"
)

// Session describes the public metadata for the active browser page.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// SessionManager owns the Chrome instance and the single incognito page the
// portal queries run on. It implements portal.Driver over rod.
type SessionManager struct {
	cfg    Config
	logger *zap.Logger
	diag   *Diagnostics

	mu         sync.RWMutex
	browser    *rod.Browser
	page       *rod.Page
	session    Session
	controlURL string // WebSocket URL for DevTools
}

var _ portal.Driver = (*SessionManager)(nil)

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		cfg:    cfg,
		logger: logger,
		diag:   NewDiagnostics(cfg.DiagnosticsDir),
	}
}

// Start connects to an existing Chrome or launches a new one, then opens the
// query page.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If we already have a browser, verify it's still alive
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.logger.Warn("Stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.page = nil
		m.controlURL = ""
	}

	controlURL, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	page, err := m.openPage(browser)
	if err != nil {
		_ = browser.Close()
		return err
	}

	m.browser = browser
	m.page = page
	m.controlURL = controlURL
	m.session = Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}
	m.logger.Info("Browser session started",
		zap.String("session", m.session.ID),
		zap.Bool("headless", m.cfg.IsHeadless()),
		zap.Bool("attached", m.cfg.DebuggerURL != ""))
	return nil
}

func (m *SessionManager) resolveControlURL() (string, error) {
	if m.cfg.DebuggerURL != "" {
		return m.cfg.DebuggerURL, nil
	}
	if len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
		for _, rawFlag := range m.cfg.Launch[1:] {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err == nil {
			return url, nil
		}
		// Retry the binary without the extra flags.
		alt, altErr := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless()).Launch()
		if altErr != nil {
			return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
		}
		return alt, nil
	}
	url, err := launcher.New().Headless(m.cfg.IsHeadless()).Launch()
	if err != nil {
		return "", fmt.Errorf("no debugger_url and failed to launch: %w", err)
	}
	return url, nil
}

func (m *SessionManager) openPage(browser *rod.Browser) (*rod.Page, error) {
	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		m.logger.Warn("Failed to set viewport", zap.Error(err))
	}
	if m.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: m.cfg.UserAgent}); err != nil {
			m.logger.Warn("Failed to set user agent", zap.Error(err))
		}
	}
	if _, err := page.EvalOnNewDocument(hideAutomation); err != nil {
		m.logger.Warn("Failed to install init script", zap.Error(err))
	}
	return page, nil
}

// ControlURL returns the WebSocket debugger URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Session returns the metadata of the active page.
func (m *SessionManager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Shutdown closes the page and the browser.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.page != nil {
		_ = m.page.Close()
		m.page = nil
	}
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	m.session.Status = "closed"
	return err
}

func (m *SessionManager) activePage(ctx context.Context) (*rod.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page == nil {
		return nil, errors.New("browser session not started")
	}
	m.session.LastActive = time.Now()
	return m.page.Context(ctx), nil
}

// Navigate loads url and waits for the load event.
func (m *SessionManager) Navigate(ctx context.Context, url string) error {
	page, err := m.activePage(ctx)
	if err != nil {
		return err
	}
	page = page.Timeout(m.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return driverErr("navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		return driverErr("wait load", err)
	}
	m.mu.Lock()
	m.session.URL = url
	m.mu.Unlock()
	return nil
}

// Await blocks until selector matches an element or timeout expires.
func (m *SessionManager) Await(ctx context.Context, selector string, timeout time.Duration) error {
	page, err := m.activePage(ctx)
	if err != nil {
		return err
	}
	if _, err := page.Timeout(timeout).Element(selector); err != nil {
		return driverErr("await "+selector, err)
	}
	return nil
}

// Act performs action on the element matched by selector.
func (m *SessionManager) Act(ctx context.Context, selector string, action portal.Action) error {
	page, err := m.activePage(ctx)
	if err != nil {
		return err
	}
	el, err := page.Timeout(m.cfg.ActionTimeout()).Element(selector)
	if err != nil {
		return driverErr(action.String()+" "+selector, err)
	}
	el = el.CancelTimeout()

	switch action.Kind {
	case portal.ActionClick:
		err = el.Click(proto.InputMouseButtonLeft, 1)
	case portal.ActionInput:
		err = el.Input(action.Text)
	case portal.ActionClear:
		if err = el.SelectAllText(); err == nil {
			err = el.Input("")
		}
	case portal.ActionSelectIndex:
		_, err = el.Eval(selectIndexScript, action.Index)
	default:
		err = fmt.Errorf("unsupported action %d", action.Kind)
	}
	return driverErr(action.String()+" "+selector, err)
}

// Run evaluates script (a function expression) with args.
func (m *SessionManager) Run(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	page, err := m.activePage(ctx)
	if err != nil {
		return nil, err
	}
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           script,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, driverErr("run script", err)
	}
	if res == nil || res.Value.Nil() {
		return json.RawMessage("null"), nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal script result: %w", err)
	}
	return raw, nil
}

// Snapshot captures a full page screenshot and an HTML dump.
func (m *SessionManager) Snapshot(ctx context.Context, label string) (portal.ArtifactRef, error) {
	page, err := m.activePage(ctx)
	if err != nil {
		return portal.ArtifactRef{Label: label}, err
	}
	png, shotErr := page.Screenshot(true, nil)
	html, htmlErr := page.HTML()
	ref, err := m.diag.Write(label, png, html)
	if err != nil {
		return ref, errors.Join(err, shotErr, htmlErr)
	}
	return ref, nil
}

// Content returns the rendered HTML of the page.
func (m *SessionManager) Content(ctx context.Context) (string, error) {
	page, err := m.activePage(ctx)
	if err != nil {
		return "", err
	}
	html, err := page.HTML()
	if err != nil {
		return "", driverErr("read html", err)
	}
	return html, nil
}

// URL returns the address of the page.
func (m *SessionManager) URL(ctx context.Context) (string, error) {
	page, err := m.activePage(ctx)
	if err != nil {
		return "", err
	}
	info, err := page.Info()
	if err != nil {
		return "", driverErr("page info", err)
	}
	return info.URL, nil
}

// driverErr maps element lookups that ran out of time onto portal.ErrTimeout
// so the orchestrator treats them as transient.
func driverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *rod.ElementNotFoundError
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w (%v)", op, portal.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
