// Package engine is the contract between the bridge and the web engine that
// renders its surfaces. The bridge only needs three capabilities from a
// widget: navigate, report load progress, and produce a pixel snapshot of
// the current frame.
package engine

import (
	"context"

	"github.com/hazyhaar/webtex/pixbuf"
)

// LoadEvent is a navigation progress signal.
type LoadEvent int

const (
	LoadStarted LoadEvent = iota
	LoadRedirected
	LoadCommitted
	LoadFinished
)

func (e LoadEvent) String() string {
	switch e {
	case LoadStarted:
		return "started"
	case LoadRedirected:
		return "redirected"
	case LoadCommitted:
		return "committed"
	case LoadFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Options configures a new widget.
type Options struct {
	// ID is the surface identifier, for logs.
	ID string
	// Width and Height are the viewport size in pixels.
	Width  int32
	Height int32
}

// SnapshotDone receives the outcome of a snapshot request. It is called
// exactly once per request, from any goroutine.
type SnapshotDone func(pixbuf.Snapshot, error)

// Engine creates off-screen widgets.
type Engine interface {
	NewWidget(ctx context.Context, opts Options) (Widget, error)
}

// Widget is one off-screen web view.
type Widget interface {
	// URL returns the current location, or "" before any navigation.
	URL() string

	// LoadURL requests navigation. It does not wait for the page to load;
	// progress is reported through OnLoadChanged.
	LoadURL(ctx context.Context, url string) error

	// OnLoadChanged subscribes fn to load events. fn may be called from any
	// goroutine. The returned func unsubscribes.
	OnLoadChanged(fn func(LoadEvent)) (unsubscribe func())

	// Snapshot captures the current frame asynchronously.
	Snapshot(ctx context.Context, done SnapshotDone)

	// Close releases the widget.
	Close() error
}
