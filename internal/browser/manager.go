// Package browser is the headless Chrome engine behind webtex surfaces.
// A Manager launches Chrome (or connects to a remote instance) through Rod
// and hands out one page per surface, sized to the surface viewport.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/webtex/engine"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin overrides the Chrome binary used by the launcher.
	Bin string

	// Stealth opens pages through go-rod/stealth.
	Stealth bool

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// NavigateTimeout bounds a single navigation. Default: 30s.
	NavigateTimeout time.Duration

	// SnapshotTimeout bounds a single screenshot. Default: 10s.
	SnapshotTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process and implements engine.Engine.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	widgets map[*Widget]struct{}
	closed  bool
}

var _ engine.Engine = (*Manager)(nil)

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, widgets: make(map[*Widget]struct{})}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return nil
	}

	b, err := m.launch(ctx)
	if err != nil {
		return err
	}
	m.browser = b
	return nil
}

// Browser returns the current Rod browser handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close closes every open widget, then Chrome.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	widgets := make([]*Widget, 0, len(m.widgets))
	for w := range m.widgets {
		widgets = append(widgets, w)
	}
	m.mu.Unlock()

	for _, w := range widgets {
		_ = w.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup()
	return nil
}

// NewWidget opens a page sized to opts and subscribes to its load events.
// The page is left blank; navigation happens through LoadURL.
func (m *Manager) NewWidget(ctx context.Context, opts engine.Options) (engine.Widget, error) {
	m.mu.RLock()
	b, closed := m.browser, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	w, err := openWidget(ctx, m, b, opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.widgets[w] = struct{}{}
	m.mu.Unlock()
	return w, nil
}

func (m *Manager) forget(w *Widget) {
	m.mu.Lock()
	delete(m.widgets, w)
	m.mu.Unlock()
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		// ctx bounds Start only; the process lives until Close kills it.
		l := launcher.New().Context(context.WithoutCancel(ctx)).Headless(true)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}

		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")
		// Keep rendering deterministic for screenshots.
		l = l.Set("hide-scrollbars").Set("force-device-scale-factor", "1")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	// Ignore certificate errors for dev/testing.
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
