package webview

import (
	"context"
	"errors"

	"github.com/hazyhaar/webtex/channel"
)

var errSurfaceDisposed = errors.New("webview: surface disposed")

func (s *Surface) methods() channel.Handler {
	return channel.NewEndpoint(map[string]channel.MethodFunc{
		"getUrl":  s.handleGetURL,
		"loadUrl": s.handleLoadURL,
	})
}

// handleGetURL answers the current location, or null before any navigation.
func (s *Surface) handleGetURL(_ context.Context, _ *channel.MethodCall) (any, error) {
	if s.disposed.Load() || s.widget == nil {
		return nil, errSurfaceDisposed
	}
	u := s.widget.URL()
	if u == "" || u == "about:blank" {
		return nil, nil
	}
	return u, nil
}

// handleLoadURL expects {"urlRequest": {"url": "<string>"}}.
func (s *Surface) handleLoadURL(ctx context.Context, call *channel.MethodCall) (any, error) {
	args, err := call.ArgsMap()
	if err != nil {
		return nil, err
	}
	req, ok := channel.MapField(args, "urlRequest")
	if !ok {
		return nil, channel.InvalidArguments()
	}
	url, ok := channel.StringField(req, "url")
	if !ok {
		return nil, channel.InvalidArguments()
	}

	if s.disposed.Load() || s.widget == nil {
		return nil, errSurfaceDisposed
	}
	if err := s.widget.LoadURL(ctx, url); err != nil {
		s.opts.Logger.Warn("webview: load failed", "surface", s.id, "url", url, "error", err)
		return nil, err
	}
	s.opts.Logger.Debug("webview: load requested", "surface", s.id, "url", url)
	s.opts.Events.SurfaceEvent(ctx, s.id, "load", true, url)
	return true, nil
}
