package plugin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/engine/enginetest"
	"github.com/hazyhaar/webtex/mainloop"
	"github.com/hazyhaar/webtex/texture"
	"github.com/hazyhaar/webtex/webview"
)

type fixture struct {
	router   *channel.Router
	textures *texture.Registry
	engine   *enginetest.Engine
	plugin   *Plugin
}

func setup(t *testing.T, eng *enginetest.Engine) *fixture {
	t.Helper()
	lp := mainloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go lp.Run(ctx)

	f := &fixture{
		router:   channel.New(channel.WithMiddleware(channel.OnLoop(lp))),
		textures: texture.NewRegistry(),
		engine:   eng,
	}
	reg := webview.NewRegistry(webview.Options{
		Engine:   eng,
		Loop:     lp,
		Router:   f.router,
		Textures: f.textures,
	})
	f.plugin = New(f.router, reg, WithPlatformVersion(func() string { return "Linux 6.1.0-test" }))
	t.Cleanup(func() {
		_ = lp.Invoke(context.Background(), func() { _ = f.plugin.Close() })
		cancel()
	})
	return f
}

func (f *fixture) invoke(t *testing.T, ch, method string, args any) *channel.Response {
	t.Helper()
	resp, err := f.router.Invoke(context.Background(), ch, method, args)
	if err != nil {
		t.Fatalf("invoke %s.%s: %v", ch, method, err)
	}
	return resp
}

func TestPlatformVersion(t *testing.T) {
	f := setup(t, enginetest.New())
	var v string
	if err := f.invoke(t, MainChannel, "getPlatformVersion", nil).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v != "Linux 6.1.0-test" {
		t.Fatalf("got %q", v)
	}
}

func TestPlatformVersion_Real(t *testing.T) {
	v := platformVersion()
	if v == "" || strings.HasPrefix(v, " ") {
		t.Fatalf("got %q", v)
	}
}

func TestCreate_ReturnsStableTextureID(t *testing.T) {
	f := setup(t, enginetest.New())

	var a, b int64
	if err := f.invoke(t, MainChannel, "create", map[string]any{"id": "a"}).Decode(&a); err != nil {
		t.Fatal(err)
	}
	if err := f.invoke(t, MainChannel, "create", map[string]any{"id": "b"}).Decode(&b); err != nil {
		t.Fatal(err)
	}
	if a < 1 || b < 1 || a == b {
		t.Fatalf("ids: %d %d", a, b)
	}
	s, ok := f.plugin.Registry().Get("a")
	if !ok || s.TextureID() != a {
		t.Fatal("registry surface does not carry the returned id")
	}
}

func TestInvalidArguments(t *testing.T) {
	f := setup(t, enginetest.New())

	bad := []any{
		nil,
		"a",
		[]any{"a"},
		7,
		map[string]any{},
		map[string]any{"id": 1},
		map[string]any{"id": ""},
		map[string]any{"name": "a"},
	}
	checks := []struct{ ch, method string }{
		{MainChannel, "create"},
		{MainChannel, "dispose"},
		{HeadlessChannel, "createHeadless"},
	}
	for _, c := range checks {
		for _, args := range bad {
			resp := f.invoke(t, c.ch, c.method, args)
			if resp.Error == nil || resp.Error.Code != channel.CodeInvalidArguments || resp.Error.Message != "Invalid arguments" {
				t.Fatalf("%s.%s(%v): got %+v", c.ch, c.method, args, resp.Error)
			}
		}
	}
	if f.plugin.Registry().Len() != 0 {
		t.Fatal("invalid create built a surface")
	}
}

func TestCreateHeadless(t *testing.T) {
	f := setup(t, enginetest.New())
	var ok bool
	if err := f.invoke(t, HeadlessChannel, "createHeadless", map[string]any{"id": "h"}).Decode(&ok); err != nil || !ok {
		t.Fatalf("got %v, %v", ok, err)
	}
	if !f.router.Has(webview.DefaultNamespace + "/h") {
		t.Fatal("headless surface channel missing")
	}
}

func TestBrowserChannelNotImplemented(t *testing.T) {
	f := setup(t, enginetest.New())
	for _, m := range []string{"open", "create", "getUrl"} {
		resp := f.invoke(t, BrowserChannel, m, map[string]any{"id": "a"})
		if resp.Error == nil || resp.Error.Code != channel.CodeNotImplemented {
			t.Fatalf("%s: got %+v", m, resp.Error)
		}
	}
}

func TestUnknownMainMethod(t *testing.T) {
	f := setup(t, enginetest.New())
	resp := f.invoke(t, MainChannel, "destroyAll", nil)
	if resp.Error == nil || resp.Error.Code != channel.CodeNotImplemented {
		t.Fatalf("got %+v", resp.Error)
	}
}

func TestDispose(t *testing.T) {
	f := setup(t, enginetest.New())
	f.invoke(t, MainChannel, "create", map[string]any{"id": "a"})

	var ok bool
	if err := f.invoke(t, MainChannel, "dispose", map[string]any{"id": "a"}).Decode(&ok); err != nil || !ok {
		t.Fatalf("first dispose: %v %v", ok, err)
	}
	if err := f.invoke(t, MainChannel, "dispose", map[string]any{"id": "a"}).Decode(&ok); err != nil || ok {
		t.Fatalf("second dispose: %v %v", ok, err)
	}
	if f.engine.Widget("a").Closed() != 1 {
		t.Fatal("widget not closed exactly once")
	}
	if _, err := f.router.Call(context.Background(), webview.DefaultNamespace+"/a", nil); err == nil {
		t.Fatal("surface channel survived dispose")
	}
}

func TestCreateEngineFailure(t *testing.T) {
	eng := enginetest.New()
	eng.FailOn = "bad"
	f := setup(t, eng)
	resp := f.invoke(t, MainChannel, "create", map[string]any{"id": "bad"})
	if resp.Error == nil || resp.Error.Code != channel.CodeError {
		t.Fatalf("got %+v", resp.Error)
	}
}

func TestEndToEnd(t *testing.T) {
	f := setup(t, enginetest.NewAuto())
	events, cancel := f.textures.Subscribe(8)
	defer cancel()

	var tid int64
	if err := f.invoke(t, MainChannel, "create", map[string]any{"id": "a"}).Decode(&tid); err != nil || tid < 1 {
		t.Fatalf("create: %d %v", tid, err)
	}

	view := webview.DefaultNamespace + "/a"
	if resp := f.invoke(t, view, "getUrl", nil); !resp.IsNull() {
		t.Fatalf("getUrl before load: %s", resp.Result)
	}

	var ok bool
	args := map[string]any{"urlRequest": map[string]any{"url": "http://example.com"}}
	if err := f.invoke(t, view, "loadUrl", args).Decode(&ok); err != nil || !ok {
		t.Fatalf("loadUrl: %v %v", ok, err)
	}

	select {
	case ev := <-events:
		if ev.ID != tid {
			t.Fatalf("event for %d, want %d", ev.ID, tid)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame after navigation finished")
	}

	frame, found := f.textures.Frame(tid)
	if !found {
		t.Fatal("texture gone")
	}
	if frame.Width != webview.DefaultWidth || frame.Height != webview.DefaultHeight {
		t.Fatalf("frame %dx%d", frame.Width, frame.Height)
	}
	// Source pixel (b=0, g=128, r=255) lands as RGBA (255, 128, 0).
	if px := frame.Pix[:4]; px[0] != 255 || px[1] != 128 || px[2] != 0 || px[3] != 255 {
		t.Fatalf("pixel %v", px)
	}

	var u string
	if err := f.invoke(t, view, "getUrl", nil).Decode(&u); err != nil || u != "http://example.com" {
		t.Fatalf("getUrl: %q %v", u, err)
	}
}

func TestClose_UnregistersChannels(t *testing.T) {
	lp := mainloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lp.Run(ctx)

	router := channel.New()
	reg := webview.NewRegistry(webview.Options{Engine: enginetest.New(), Loop: lp, Router: router})
	p := New(router, reg)
	if len(router.Names()) != 3 {
		t.Fatalf("names: %v", router.Names())
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if len(router.Names()) != 0 {
		t.Fatalf("names after close: %v", router.Names())
	}
}
