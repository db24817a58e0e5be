package webview

import (
	"context"
	"image/color"
	"log/slog"
	"sync"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/engine"
	"github.com/hazyhaar/webtex/mainloop"
	"github.com/hazyhaar/webtex/texture"
)

// DefaultNamespace prefixes every per-surface channel name.
const DefaultNamespace = "webtex/view"

// Placeholder defaults: the frame served before the first snapshot.
const (
	DefaultWidth  int32 = 1280
	DefaultHeight int32 = 720
)

// DefaultPlaceholderColor is opaque blue.
var DefaultPlaceholderColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}

// TextureRegistrar is the compositor's texture registry as seen by a surface.
type TextureRegistrar interface {
	Register(src texture.Source) (int64, error)
	Unregister(id int64) bool
	MarkFrameAvailable(id int64) bool
}

// EventSink records surface lifecycle events. Implementations must not block.
type EventSink interface {
	SurfaceEvent(ctx context.Context, surfaceID, action string, success bool, details string)
}

// Options wires a Registry (and its surfaces) to the rest of the bridge.
type Options struct {
	// Engine creates widgets. Required.
	Engine engine.Engine

	// Loop runs engine callbacks. Required.
	Loop *mainloop.Loop

	// Router receives one channel per surface. Required.
	Router *channel.Router

	// Textures receives one texture per surface. Nil leaves every surface
	// unregistered (texture id 0).
	Textures TextureRegistrar

	// Events records lifecycle events. Optional.
	Events EventSink

	// Namespace prefixes per-surface channels. Default: DefaultNamespace.
	Namespace string

	// Width and Height size the widget viewport and the placeholder.
	// Default: 1280×720.
	Width  int32
	Height int32

	// PlaceholderColor fills the placeholder. Default: opaque blue.
	PlaceholderColor *color.RGBA

	Logger *slog.Logger

	// drain counts snapshots in flight across every surface built with these
	// options, disposed ones included. Set by NewRegistry.
	drain *sync.WaitGroup
}

func (o *Options) defaults() {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Width < 1 {
		o.Width = DefaultWidth
	}
	if o.Height < 1 {
		o.Height = DefaultHeight
	}
	if o.PlaceholderColor == nil {
		c := DefaultPlaceholderColor
		o.PlaceholderColor = &c
	}
	if o.Events == nil {
		o.Events = nopEvents{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// ChannelName returns the per-surface channel for id.
func (o *Options) ChannelName(id string) string {
	ns := o.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + "/" + id
}

type nopEvents struct{}

func (nopEvents) SurfaceEvent(context.Context, string, string, bool, string) {}
