// Package plugin exposes the surface registry on the fixed webtex channels.
//
//	webtex            getPlatformVersion, create {id}, dispose {id}
//	webtex/headless   createHeadless {id}
//	webtex/browser    (nothing implemented yet)
//
// Each surface additionally serves its own channel, see package webview.
package plugin

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/webview"
)

// Fixed channel names.
const (
	MainChannel     = "webtex"
	HeadlessChannel = "webtex/headless"
	BrowserChannel  = "webtex/browser"
)

// Plugin binds a webview.Registry to the fixed channels of a Router.
type Plugin struct {
	router   *channel.Router
	registry *webview.Registry
	logger   *slog.Logger
	platform func() string
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Plugin) { p.logger = l }
}

// WithPlatformVersion overrides the getPlatformVersion answer.
func WithPlatformVersion(fn func() string) Option {
	return func(p *Plugin) { p.platform = fn }
}

// New registers the fixed channels on router.
func New(router *channel.Router, registry *webview.Registry, opts ...Option) *Plugin {
	p := &Plugin{
		router:   router,
		registry: registry,
		logger:   slog.Default(),
		platform: platformVersion,
	}
	for _, o := range opts {
		o(p)
	}

	router.Register(MainChannel, channel.NewEndpoint(map[string]channel.MethodFunc{
		"getPlatformVersion": p.handlePlatformVersion,
		"create":             p.handleCreate,
		"dispose":            p.handleDispose,
	}))
	router.Register(HeadlessChannel, channel.NewEndpoint(map[string]channel.MethodFunc{
		"createHeadless": p.handleCreateHeadless,
	}))
	router.Register(BrowserChannel, channel.Unimplemented())

	p.logger.Info("plugin: channels registered",
		"main", MainChannel, "headless", HeadlessChannel, "browser", BrowserChannel)
	return p
}

// Registry returns the underlying surface registry.
func (p *Plugin) Registry() *webview.Registry { return p.registry }

// Close unregisters the fixed channels and disposes every surface.
func (p *Plugin) Close() error {
	for _, name := range []string{MainChannel, HeadlessChannel, BrowserChannel} {
		p.router.Unregister(name)
	}
	return p.registry.Close()
}

func (p *Plugin) handlePlatformVersion(context.Context, *channel.MethodCall) (any, error) {
	return p.platform(), nil
}

func (p *Plugin) handleCreate(ctx context.Context, call *channel.MethodCall) (any, error) {
	id, err := surfaceID(call)
	if err != nil {
		return nil, err
	}
	tid, err := p.registry.Create(ctx, id)
	if err != nil {
		p.logger.Warn("plugin: create failed", "surface", id, "error", err)
		return nil, err
	}
	return tid, nil
}

func (p *Plugin) handleCreateHeadless(ctx context.Context, call *channel.MethodCall) (any, error) {
	id, err := surfaceID(call)
	if err != nil {
		return nil, err
	}
	ok, err := p.registry.CreateHeadless(ctx, id)
	if err != nil {
		p.logger.Warn("plugin: createHeadless failed", "surface", id, "error", err)
		return nil, err
	}
	return ok, nil
}

func (p *Plugin) handleDispose(_ context.Context, call *channel.MethodCall) (any, error) {
	id, err := surfaceID(call)
	if err != nil {
		return nil, err
	}
	return p.registry.Destroy(id), nil
}

// surfaceID extracts a non-empty string "id" from a map payload.
func surfaceID(call *channel.MethodCall) (string, error) {
	args, err := call.ArgsMap()
	if err != nil {
		return "", err
	}
	id, ok := channel.StringField(args, "id")
	if !ok || id == "" {
		return "", channel.InvalidArguments()
	}
	return id, nil
}
