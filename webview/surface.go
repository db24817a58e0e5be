// Package webview turns off-screen web widgets into compositor textures.
//
// A Surface owns one widget, its pixel buffer, its channel and its texture
// handle. Every page load that finishes triggers an asynchronous snapshot;
// the converted frame is committed in one swap and announced to the
// compositor, which pulls it through CopyPixels from its own goroutine.
//
// Everything except CopyPixels runs on the main loop.
package webview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/webtex/engine"
	"github.com/hazyhaar/webtex/pixbuf"
	"github.com/hazyhaar/webtex/texture"
)

// Surface is one web view exposed as a texture.
type Surface struct {
	opts *Options

	id        string
	channel   string
	widget    engine.Widget
	buf       *pixbuf.Buffer
	textureID int64

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	disposed atomic.Bool
	inflight sync.WaitGroup
	pending  atomic.Int32

	// Loop-owned snapshot sequencing.
	requested uint64
	committed uint64
}

// NewSurface builds the surface for id: placeholder buffer, widget, channel,
// load subscription and texture registration, in that order. A texture
// registration failure is not fatal; a widget failure is, and the partial
// surface is disposed before returning.
func NewSurface(ctx context.Context, opts Options, id string) (*Surface, error) {
	opts.defaults()
	return newSurface(ctx, &opts, id)
}

func newSurface(ctx context.Context, opts *Options, id string) (*Surface, error) {
	if id == "" {
		return nil, fmt.Errorf("webview: empty surface id")
	}
	if opts.Engine == nil || opts.Loop == nil || opts.Router == nil {
		return nil, fmt.Errorf("webview: engine, loop and router are required")
	}
	log := opts.Logger

	placeholder, err := pixbuf.Fill(opts.Width, opts.Height, *opts.PlaceholderColor)
	if err != nil {
		return nil, fmt.Errorf("webview: placeholder: %w", err)
	}

	s := &Surface{
		opts: opts,
		id:   id,
		buf:  pixbuf.NewBuffer(placeholder),
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	w, err := opts.Engine.NewWidget(ctx, engine.Options{ID: id, Width: opts.Width, Height: opts.Height})
	if err != nil {
		s.Dispose()
		opts.Events.SurfaceEvent(ctx, id, "create", false, err.Error())
		return nil, fmt.Errorf("webview: create widget %s: %w", id, err)
	}
	s.widget = w

	s.channel = opts.ChannelName(id)
	opts.Router.Register(s.channel, s.methods())

	s.unsubscribe = w.OnLoadChanged(func(ev engine.LoadEvent) {
		opts.Loop.Post(func() { s.onLoadChanged(ev) })
	})

	if opts.Textures == nil {
		log.Warn("webview: no texture registry, surface unregistered", "surface", id)
	} else if tid, err := opts.Textures.Register(s); err != nil {
		log.Warn("webview: texture registration failed", "surface", id, "error", err)
	} else {
		s.textureID = tid
	}

	log.Info("webview: surface created",
		"surface", id, "channel", s.channel, "texture_id", s.textureID,
		"width", opts.Width, "height", opts.Height)
	opts.Events.SurfaceEvent(ctx, id, "create", true, fmt.Sprintf(`{"texture_id":%d}`, s.textureID))
	return s, nil
}

// ID returns the surface identifier.
func (s *Surface) ID() string { return s.id }

// Channel returns the per-surface channel name.
func (s *Surface) Channel() string { return s.opts.ChannelName(s.id) }

// TextureID returns the compositor handle, or texture.Unregistered.
func (s *Surface) TextureID() int64 { return s.textureID }

// CopyPixels serves the current frame. It never blocks on a pending snapshot
// and never returns an invalid frame. Safe from any goroutine.
func (s *Surface) CopyPixels() pixbuf.Frame {
	return s.buf.View()
}

// Disposed reports whether Dispose has run.
func (s *Surface) Disposed() bool { return s.disposed.Load() }

// Pending returns the number of snapshots in flight.
func (s *Surface) Pending() int { return int(s.pending.Load()) }

// Wait blocks until no snapshot is in flight. Completions run on the loop,
// so the loop must keep running until Wait returns: a completion still
// queued when the loop stops is dropped and never releases its request.
func (s *Surface) Wait() { s.inflight.Wait() }

// onLoadChanged runs on the loop. Only a finished load triggers a snapshot.
func (s *Surface) onLoadChanged(ev engine.LoadEvent) {
	if ev != engine.LoadFinished || s.disposed.Load() {
		return
	}
	s.requestSnapshot()
}

// requestSnapshot runs on the loop. The in-flight request holds a reference
// on the surface until its completion has run.
func (s *Surface) requestSnapshot() {
	s.requested++
	seq := s.requested
	s.retain()

	s.widget.Snapshot(s.ctx, func(snap pixbuf.Snapshot, err error) {
		if !s.opts.Loop.Post(func() { s.completeSnapshot(seq, snap, err) }) {
			s.release()
		}
	})
}

// completeSnapshot runs on the loop, once per request.
func (s *Surface) completeSnapshot(seq uint64, snap pixbuf.Snapshot, err error) {
	defer s.release()
	log := s.opts.Logger

	if s.disposed.Load() {
		log.Debug("webview: snapshot after dispose discarded", "seq", seq, "error", err)
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("webview: snapshot failed", "surface", s.id, "seq", seq, "error", err)
		}
		s.opts.Events.SurfaceEvent(s.ctx, s.id, "snapshot", false, err.Error())
		return
	}
	if seq < s.committed {
		log.Debug("webview: stale snapshot discarded", "surface", s.id, "seq", seq, "committed", s.committed)
		return
	}

	frame, err := pixbuf.Convert(snap)
	if err != nil {
		log.Warn("webview: snapshot conversion failed", "surface", s.id, "seq", seq, "error", err)
		s.opts.Events.SurfaceEvent(s.ctx, s.id, "snapshot", false, err.Error())
		return
	}

	s.buf.Replace(frame)
	s.committed = seq
	if s.textureID != texture.Unregistered {
		s.opts.Textures.MarkFrameAvailable(s.textureID)
	}
	log.Debug("webview: frame committed", "surface", s.id, "seq", seq,
		"width", frame.Width, "height", frame.Height)
	s.opts.Events.SurfaceEvent(s.ctx, s.id, "snapshot", true,
		fmt.Sprintf(`{"width":%d,"height":%d}`, frame.Width, frame.Height))
}

func (s *Surface) retain() {
	s.inflight.Add(1)
	s.pending.Add(1)
	if s.opts.drain != nil {
		s.opts.drain.Add(1)
	}
}

func (s *Surface) release() {
	s.pending.Add(-1)
	s.inflight.Done()
	if s.opts.drain != nil {
		s.opts.drain.Done()
	}
}

// Dispose releases the texture handle, then the widget, channel, buffer and
// identifier. Each step tolerates a field that was never set, so a partially
// built surface can be disposed. Later calls are no-ops.
func (s *Surface) Dispose() {
	if !s.disposed.CompareAndSwap(false, true) {
		return
	}
	id := s.id
	log := s.opts.Logger

	if s.textureID != texture.Unregistered && s.opts.Textures != nil {
		s.opts.Textures.Unregister(s.textureID)
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.widget != nil {
		if err := s.widget.Close(); err != nil {
			log.Warn("webview: widget close failed", "surface", id, "error", err)
		}
		s.widget = nil
	}
	if s.channel != "" {
		s.opts.Router.Unregister(s.channel)
		s.channel = ""
	}
	if s.buf != nil {
		s.buf.Release()
	}
	s.id = ""

	log.Info("webview: surface disposed", "surface", id, "pending_snapshots", s.pending.Load())
	s.opts.Events.SurfaceEvent(context.Background(), id, "dispose", true, "")
}
