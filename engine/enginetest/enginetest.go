// Package enginetest provides an in-memory engine.Engine for tests.
//
// In manual mode (the default) widgets never emit events or finish
// snapshots on their own: tests call Fire and Complete. In auto mode a
// LoadURL plays started, committed and finished, and every snapshot
// completes with a solid frame of the widget size.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/hazyhaar/webtex/engine"
	"github.com/hazyhaar/webtex/pixbuf"
)

// ErrRefused is returned by NewWidget for the FailOn identifier.
var ErrRefused = errors.New("enginetest: widget refused")

// Engine records every widget it creates, by surface id.
type Engine struct {
	// Auto makes widgets load and snapshot by themselves.
	Auto bool
	// FailOn makes NewWidget fail for this surface id.
	FailOn string
	// Started, when set, receives the surface id as NewWidget is entered.
	Started chan string
	// Hold, when set, blocks NewWidget until it is closed.
	Hold chan struct{}

	mu      sync.Mutex
	widgets map[string]*Widget
}

// New returns a manual-mode engine.
func New() *Engine {
	return &Engine{widgets: make(map[string]*Widget)}
}

// NewAuto returns an auto-mode engine.
func NewAuto() *Engine {
	e := New()
	e.Auto = true
	return e
}

func (e *Engine) NewWidget(_ context.Context, opts engine.Options) (engine.Widget, error) {
	if e.Started != nil {
		e.Started <- opts.ID
	}
	if e.Hold != nil {
		<-e.Hold
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailOn != "" && opts.ID == e.FailOn {
		return nil, ErrRefused
	}
	w := &Widget{opts: opts, auto: e.Auto, listeners: make(map[int]func(engine.LoadEvent))}
	e.widgets[opts.ID] = w
	return w, nil
}

// Widget returns the last widget created for id.
func (e *Engine) Widget(id string) *Widget {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.widgets[id]
}

// Widget is an in-memory engine.Widget.
type Widget struct {
	opts engine.Options
	auto bool

	mu        sync.Mutex
	url       string
	loads     []string
	listeners map[int]func(engine.LoadEvent)
	nextKey   int
	pending   []engine.SnapshotDone
	closed    int
}

// Options returns the options the widget was created with.
func (w *Widget) Options() engine.Options { return w.opts }

func (w *Widget) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}

func (w *Widget) LoadURL(_ context.Context, url string) error {
	w.mu.Lock()
	w.url = url
	w.loads = append(w.loads, url)
	w.mu.Unlock()
	if w.auto {
		go func() {
			w.Fire(engine.LoadStarted)
			w.Fire(engine.LoadCommitted)
			w.Fire(engine.LoadFinished)
		}()
	}
	return nil
}

func (w *Widget) OnLoadChanged(fn func(engine.LoadEvent)) func() {
	w.mu.Lock()
	key := w.nextKey
	w.nextKey++
	w.listeners[key] = fn
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.listeners, key)
		w.mu.Unlock()
	}
}

func (w *Widget) Snapshot(_ context.Context, done engine.SnapshotDone) {
	if w.auto {
		snap := BGRA(w.opts.Width, w.opts.Height, 0, 128, 255, 255)
		go done(snap, nil)
		return
	}
	w.mu.Lock()
	w.pending = append(w.pending, done)
	w.mu.Unlock()
}

func (w *Widget) Close() error {
	w.mu.Lock()
	w.closed++
	w.mu.Unlock()
	return nil
}

// Fire delivers ev to every subscriber from the calling goroutine.
func (w *Widget) Fire(ev engine.LoadEvent) {
	w.mu.Lock()
	fns := make([]func(engine.LoadEvent), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Requests returns the number of snapshot requests received in manual mode.
func (w *Widget) Requests() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Complete resolves the i-th manual snapshot request.
func (w *Widget) Complete(i int, snap pixbuf.Snapshot, err error) {
	w.mu.Lock()
	done := w.pending[i]
	w.mu.Unlock()
	done(snap, err)
}

// Loads returns every URL passed to LoadURL.
func (w *Widget) Loads() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.loads...)
}

// Subscribers returns the number of live load subscriptions.
func (w *Widget) Subscribers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners)
}

// Closed returns how many times Close was called.
func (w *Widget) Closed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// BGRA builds an engine-native snapshot where every pixel is (b, g, r, a)
// in memory order.
func BGRA(width, height int32, b, g, r, a byte) pixbuf.Snapshot {
	data := make([]byte, int(width)*int(height)*4)
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = b, g, r, a
	}
	return pixbuf.Snapshot{
		Data:   data,
		Width:  width,
		Height: height,
		Stride: int(width) * 4,
		Format: pixbuf.FormatBGRAPremul,
	}
}
