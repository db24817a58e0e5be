package browser

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/webtex/engine"
	"github.com/hazyhaar/webtex/pixbuf"
)

// Widget wraps a Rod page as an off-screen web view.
type Widget struct {
	page    *rod.Page
	opts    engine.Options
	manager *Manager
	hijack  *rod.HijackRouter

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	url       string
	listeners map[int]func(engine.LoadEvent)
	nextKey   int
	closed    bool
}

var _ engine.Widget = (*Widget)(nil)

func openWidget(ctx context.Context, mgr *Manager, b *rod.Browser, opts engine.Options) (*Widget, error) {
	log := mgr.cfg.Logger

	var page *rod.Page
	var err error

	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page %s: %w", opts.ID, err)
	}

	err = page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(opts.Width),
		Height:            int(opts.Height),
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("browser: viewport %s: %w", opts.ID, err)
	}

	w := &Widget{
		page:      page,
		opts:      opts,
		manager:   mgr,
		listeners: make(map[int]func(engine.LoadEvent)),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	// Apply resource blocking.
	if len(mgr.cfg.ResourceBlocking) > 0 {
		router, err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
		if err != nil {
			log.Warn("browser: resource blocking failed", "surface", opts.ID, "error", err)
		}
		w.hijack = router
	}

	if err := (proto.PageEnable{}).Call(page); err != nil {
		log.Warn("browser: page domain enable failed", "surface", opts.ID, "error", err)
	}
	go w.listen()

	log.Debug("browser: widget opened", "surface", opts.ID, "width", opts.Width, "height", opts.Height)
	return w, nil
}

// listen turns main-frame CDP page events into load events until Close.
func (w *Widget) listen() {
	wait := w.page.Context(w.ctx).EachEvent(
		func(e *proto.PageFrameStartedLoading) {
			if e.FrameID == w.page.FrameID {
				w.emit(engine.LoadStarted)
			}
		},
		func(e *proto.NetworkRequestWillBeSent) {
			if e.RedirectResponse != nil && e.Type == proto.NetworkResourceTypeDocument {
				w.emit(engine.LoadRedirected)
			}
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			w.mu.Lock()
			w.url = e.Frame.URL
			w.mu.Unlock()
			w.emit(engine.LoadCommitted)
		},
		func(*proto.PageLoadEventFired) {
			w.emit(engine.LoadFinished)
		},
	)

	// EachEvent returns a wait function that blocks until context is cancelled.
	wait()
}

func (w *Widget) emit(ev engine.LoadEvent) {
	w.mu.Lock()
	fns := make([]func(engine.LoadEvent), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	w.manager.cfg.Logger.Debug("browser: load event", "surface", w.opts.ID, "event", ev.String())
	for _, fn := range fns {
		fn(ev)
	}
}

// URL returns the last committed main-frame URL.
func (w *Widget) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}

// LoadURL starts navigation in the background. Failures are logged; the
// surface learns about progress through load events only.
func (w *Widget) LoadURL(_ context.Context, url string) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return fmt.Errorf("browser: widget %s closed", w.opts.ID)
	}

	go func() {
		navCtx, cancel := context.WithTimeout(w.ctx, w.manager.cfg.NavigateTimeout)
		defer cancel()
		if err := w.page.Context(navCtx).Navigate(url); err != nil {
			w.manager.cfg.Logger.Warn("browser: navigate failed", "surface", w.opts.ID, "url", url, "error", err)
		}
	}()
	return nil
}

// OnLoadChanged subscribes fn to load events.
func (w *Widget) OnLoadChanged(fn func(engine.LoadEvent)) func() {
	w.mu.Lock()
	key := w.nextKey
	w.nextKey++
	w.listeners[key] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.listeners, key)
			w.mu.Unlock()
		})
	}
}

// Snapshot captures the viewport as PNG in the background and decodes it
// into a premultiplied RGBA snapshot of the configured size. CDP only hands
// out encoded images, so the format is always pixbuf.FormatRGBAPremul; the
// BGRA and ARGB32 conversions serve engines that expose raw surfaces.
func (w *Widget) Snapshot(ctx context.Context, done engine.SnapshotDone) {
	go func() {
		snap, err := w.capture(ctx)
		done(snap, err)
	}()
}

func (w *Widget) capture(ctx context.Context) (pixbuf.Snapshot, error) {
	shotCtx, cancel := context.WithTimeout(ctx, w.manager.cfg.SnapshotTimeout)
	defer cancel()

	data, err := w.page.Context(shotCtx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return pixbuf.Snapshot{}, fmt.Errorf("browser: screenshot %s: %w", w.opts.ID, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return pixbuf.Snapshot{}, fmt.Errorf("browser: decode screenshot %s: %w", w.opts.ID, err)
	}
	return pixbuf.FromImage(img, w.opts.Width, w.opts.Height)
}

// Close stops event delivery and closes the page.
func (w *Widget) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.listeners = make(map[int]func(engine.LoadEvent))
	w.mu.Unlock()

	w.cancel()
	w.manager.forget(w)
	if w.hijack != nil {
		if err := w.hijack.Stop(); err != nil {
			w.manager.cfg.Logger.Debug("browser: hijack stop", "surface", w.opts.ID, "error", err)
		}
	}
	if err := w.page.Close(); err != nil {
		return fmt.Errorf("browser: close page %s: %w", w.opts.ID, err)
	}
	return nil
}
