package webview

import (
	"context"
	"testing"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/engine/enginetest"
	"github.com/hazyhaar/webtex/mainloop"
	"github.com/hazyhaar/webtex/texture"
)

type harness struct {
	t        *testing.T
	loop     *mainloop.Loop
	router   *channel.Router
	textures *texture.Registry
	engine   *enginetest.Engine
	registry *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	lp := mainloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go lp.Run(ctx)

	h := &harness{
		t:        t,
		loop:     lp,
		router:   channel.New(channel.WithMiddleware(channel.OnLoop(lp))),
		textures: texture.NewRegistry(),
		engine:   enginetest.New(),
	}
	h.registry = NewRegistry(Options{
		Engine:   h.engine,
		Loop:     lp,
		Router:   h.router,
		Textures: h.textures,
	})
	t.Cleanup(func() {
		_ = lp.Invoke(context.Background(), func() { _ = h.registry.Close() })
		cancel()
	})
	return h
}

// onLoop runs fn on the loop and waits. It also flushes everything posted
// before it.
func (h *harness) onLoop(fn func()) {
	h.t.Helper()
	if err := h.loop.Invoke(context.Background(), fn); err != nil {
		h.t.Fatalf("loop invoke: %v", err)
	}
}

func (h *harness) flush() { h.onLoop(func() {}) }

func (h *harness) create(id string) int64 {
	h.t.Helper()
	var (
		tid int64
		err error
	)
	h.onLoop(func() { tid, err = h.registry.Create(context.Background(), id) })
	if err != nil {
		h.t.Fatalf("create %s: %v", id, err)
	}
	return tid
}

func (h *harness) invoke(ch, method string, args any) *channel.Response {
	h.t.Helper()
	resp, err := h.router.Invoke(context.Background(), ch, method, args)
	if err != nil {
		h.t.Fatalf("invoke %s.%s: %v", ch, method, err)
	}
	return resp
}
