// Package channel carries method calls between the host application and the
// bridge. A channel is a named endpoint; callers send an encoded MethodCall
// and get back an encoded Response, whatever the transport (in-process,
// HTTP, MCP).
//
//	router := channel.New(channel.WithLogger(logger))
//	router.Register("webtex", channel.NewEndpoint(map[string]channel.MethodFunc{
//		"create": p.handleCreate,
//	}))
//	resp, err := router.Invoke(ctx, "webtex", "create", map[string]any{"id": "a"})
//
// Envelope-level failures (bad arguments, unknown method) travel inside the
// Response; only an unknown channel name is a transport error.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hazyhaar/webtex/kit"
)

// Handler is a transport-agnostic channel function: encoded call in,
// encoded response out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Router dispatches calls to channels by name.
// Thread-safe: calls use RLock, registration uses full Lock.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	mws      []HandlerMiddleware
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every registered channel with mws, outermost first.
func WithMiddleware(mws ...HandlerMiddleware) Option {
	return func(r *Router) { r.mws = append(r.mws, mws...) }
}

// New creates a Router with no channels.
func New(opts ...Option) *Router {
	r := &Router{
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register installs h under name, replacing any previous handler.
func (r *Router) Register(name string, h Handler) {
	if len(r.mws) > 0 {
		h = Chain(r.mws...)(h)
	}
	r.mu.Lock()
	_, replaced := r.handlers[name]
	r.handlers[name] = h
	r.mu.Unlock()
	r.logger.Debug("channel registered", "channel", name, "replaced", replaced)
}

// Unregister removes name. It reports whether the channel existed.
func (r *Router) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.handlers[name]
	delete(r.handlers, name)
	r.mu.Unlock()
	if ok {
		r.logger.Debug("channel unregistered", "channel", name)
	}
	return ok
}

// Has reports whether name is registered.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered channel names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Call dispatches an encoded call to name.
func (r *Router) Call(ctx context.Context, name string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrChannelNotFound{Channel: name}
	}
	return h(kit.WithChannel(ctx, name), payload)
}

// Invoke encodes method and args, calls name and decodes the response.
func (r *Router) Invoke(ctx context.Context, name, method string, args any) (*Response, error) {
	payload, err := EncodeCall(method, args)
	if err != nil {
		return nil, err
	}
	out, err := r.Call(ctx, name, payload)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("channel: decode response: %w", err)
	}
	return &resp, nil
}

// Close removes every channel.
func (r *Router) Close() error {
	r.mu.Lock()
	r.handlers = make(map[string]Handler)
	r.mu.Unlock()
	return nil
}
