package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/kit"
	"github.com/hazyhaar/webtex/pixbuf"
	"github.com/hazyhaar/webtex/texture"
)

type staticSource struct{ f pixbuf.Frame }

func (s staticSource) CopyPixels() pixbuf.Frame { return s.f }

type fixture struct {
	router   *channel.Router
	textures *texture.Registry
	srv      *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{router: channel.New(), textures: texture.NewRegistry()}
	s := New(f.router, f.textures, WithRequestIDGenerator(func() string { return "req_test" }))
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	f := setup(t)
	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("got %d %v", resp.StatusCode, body)
	}
}

func TestCall_NestedChannelName(t *testing.T) {
	f := setup(t)
	var seen struct{ channel, transport, requestID string }
	f.router.Register("webtex/view/a", channel.NewEndpoint(map[string]channel.MethodFunc{
		"getUrl": func(ctx context.Context, _ *channel.MethodCall) (any, error) {
			seen.channel = kit.GetChannel(ctx)
			seen.transport = kit.GetTransport(ctx)
			seen.requestID = kit.GetRequestID(ctx)
			return "http://example.com", nil
		},
	}))

	resp := post(t, f.srv.URL+"/channels/webtex/view/a", `{"method":"getUrl"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") != "req_test" {
		t.Fatalf("request id header %q", resp.Header.Get("X-Request-ID"))
	}
	var env channel.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	var u string
	if err := env.Decode(&u); err != nil || u != "http://example.com" {
		t.Fatalf("result %q %v", u, err)
	}
	if seen.channel != "webtex/view/a" || seen.transport != "http" || seen.requestID != "req_test" {
		t.Fatalf("context: %+v", seen)
	}
}

func TestCall_EnvelopeErrorsAreOK(t *testing.T) {
	f := setup(t)
	f.router.Register("webtex/browser", channel.Unimplemented())

	resp := post(t, f.srv.URL+"/channels/webtex/browser", `{"method":"open","args":{"id":"a"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var env channel.Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error == nil || env.Error.Code != channel.CodeNotImplemented {
		t.Fatalf("envelope: %+v", env)
	}
}

func TestCall_UnknownChannel(t *testing.T) {
	f := setup(t)
	resp := post(t, f.srv.URL+"/channels/nope", `{"method":"x"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCall_ForwardedRequestID(t *testing.T) {
	f := setup(t)
	var got string
	f.router.Register("webtex", channel.NewEndpoint(map[string]channel.MethodFunc{
		"ping": func(ctx context.Context, _ *channel.MethodCall) (any, error) {
			got = kit.GetRequestID(ctx)
			return true, nil
		},
	}))
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/channels/webtex", strings.NewReader(`{"method":"ping"}`))
	req.Header.Set("X-Request-ID", "req_upstream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got != "req_upstream" {
		t.Fatalf("request id %q", got)
	}
}

func TestTextures(t *testing.T) {
	f := setup(t)
	frame, err := pixbuf.Fill(4, 2, color.RGBA{R: 255, A: 255})
	if err != nil {
		t.Fatal(err)
	}
	id, err := f.textures.Register(staticSource{frame})
	if err != nil {
		t.Fatal(err)
	}
	f.textures.MarkFrameAvailable(id)
	base := f.srv.URL + "/textures/" + strconv.FormatInt(id, 10)

	resp, err := http.Get(base)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("frame: %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Fatalf("bounds %v", b)
	}
	if r, _, _, _ := img.At(0, 0).RGBA(); r>>8 != 255 {
		t.Fatalf("pixel red %d", r>>8)
	}

	infoResp, err := http.Get(base + "/info")
	if err != nil {
		t.Fatal(err)
	}
	defer infoResp.Body.Close()
	var info texture.Info
	if err := json.NewDecoder(infoResp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.ID != id || info.Width != 4 || info.Height != 2 || info.Frames != 1 {
		t.Fatalf("info: %+v", info)
	}
}

func TestTextures_NotFoundAndBadID(t *testing.T) {
	f := setup(t)
	cases := map[string]int{
		"/textures/9":      http.StatusNotFound,
		"/textures/9/info": http.StatusNotFound,
		"/textures/0":      http.StatusBadRequest,
		"/textures/abc":    http.StatusBadRequest,
	}
	for path, want := range cases {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("%s: got %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestDefaultStack(t *testing.T) {
	f := setup(t)
	req, _ := http.NewRequest(http.MethodHead, f.srv.URL+"/health", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("HEAD /health: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
	if resp.Header.Get("X-Request-ID") != "req_test" {
		t.Fatalf("request id %q", resp.Header.Get("X-Request-ID"))
	}
}
