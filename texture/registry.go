// Package texture is the compositor side of the bridge: an arena of pull-based
// texture sources addressed by generated integer handles.
//
// A source registers once and gets a handle. The producer calls
// MarkFrameAvailable after committing new pixels; the compositor pulls them
// with Frame from whatever goroutine it renders on.
//
//	reg := texture.NewRegistry(texture.WithLogger(logger))
//	id, err := reg.Register(surface)
//	events, cancel := reg.Subscribe(16)
//	defer cancel()
//	for ev := range events {
//		frame, _ := reg.Frame(ev.ID)
//		upload(frame)
//	}
package texture

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/webtex/pixbuf"
)

// Unregistered is the handle reported when registration did not happen.
const Unregistered int64 = 0

// Source is the texture-supply contract. CopyPixels must return immediately
// and never return an invalid frame; it may be called from any goroutine.
type Source interface {
	CopyPixels() pixbuf.Frame
}

// FrameEvent tells subscribers that a texture has a new frame.
type FrameEvent struct {
	ID    int64
	Frame uint64 // per-texture sequence, starting at 1
}

// Info describes a registered texture.
type Info struct {
	ID     int64  `json:"id"`
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
	Frames uint64 `json:"frames"`
}

type entry struct {
	src    Source
	frames uint64
}

// Registry maps handles to sources. Thread-safe: pulls use RLock,
// registration and notification use the full Lock.
type Registry struct {
	mu      sync.RWMutex
	counter atomic.Int64
	entries map[int64]*entry
	subs    map[int]chan FrameEvent
	nextSub int
	closed  bool
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a custom logger for the registry.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[int64]*entry),
		subs:    make(map[int]chan FrameEvent),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds src and returns its handle. Handles start at 1 and are
// never reused.
func (r *Registry) Register(src Source) (int64, error) {
	if src == nil {
		return Unregistered, fmt.Errorf("texture: register: nil source")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Unregistered, ErrClosed
	}
	id := r.counter.Add(1)
	r.entries[id] = &entry{src: src}
	r.logger.Debug("texture registered", "texture_id", id)
	return id, nil
}

// Unregister removes a handle. It reports whether the handle was present.
func (r *Registry) Unregister(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	r.logger.Debug("texture unregistered", "texture_id", id)
	return true
}

// MarkFrameAvailable bumps the frame counter of id and notifies subscribers.
// Slow subscribers miss events rather than block the producer.
func (r *Registry) MarkFrameAvailable(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.frames++
	ev := FrameEvent{ID: id, Frame: e.frames}
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.logger.Debug("texture event dropped", "texture_id", id, "frame", e.frames)
		}
	}
	return true
}

// Frame pulls the current pixels of id.
func (r *Registry) Frame(id int64) (pixbuf.Frame, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return pixbuf.Frame{}, false
	}
	return e.src.CopyPixels(), true
}

// Info returns the size and frame count of id.
func (r *Registry) Info(id int64) (Info, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	var frames uint64
	if ok {
		frames = e.frames
	}
	r.mu.RUnlock()
	if !ok {
		return Info{}, false
	}
	f := e.src.CopyPixels()
	return Info{ID: id, Width: f.Width, Height: f.Height, Frames: frames}, true
}

// Len returns the number of registered textures.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Subscribe returns a channel of frame events with the given buffer size and
// a cancel func that closes it.
func (r *Registry) Subscribe(buffer int) (<-chan FrameEvent, func()) {
	ch := make(chan FrameEvent, buffer)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	key := r.nextSub
	r.nextSub++
	r.subs[key] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			if c, ok := r.subs[key]; ok {
				delete(r.subs, key)
				close(c)
			}
			r.mu.Unlock()
		})
	}
}

// Close drops every texture and closes all subscriptions.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for key, ch := range r.subs {
		close(ch)
		delete(r.subs, key)
	}
	r.entries = make(map[int64]*entry)
	return nil
}

// EncodePNG writes f as a PNG image.
func EncodePNG(w io.Writer, f pixbuf.Frame) error {
	if !f.Valid() {
		return fmt.Errorf("texture: encode: invalid frame %dx%d", f.Width, f.Height)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		return fmt.Errorf("texture: encode: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
