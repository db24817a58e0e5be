package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/webtex/engine"
	"github.com/hazyhaar/webtex/pixbuf"
)

func TestBlockList(t *testing.T) {
	bl := newBlockList([]string{"Images", " fonts ", "script"})

	cases := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Script", true},
		{"Stylesheet", false},
		{"Media", false},
		{"Document", false},
		{"XHR", false},
	}
	for _, c := range cases {
		if got := bl.blocks(c.resType); got != c.want {
			t.Errorf("blocks(%q) = %v, want %v", c.resType, got, c.want)
		}
	}
}

func TestBlockList_DocumentNeverBlocked(t *testing.T) {
	bl := newBlockList([]string{"document"})
	if bl.blocks("Document") {
		t.Fatal("document blocked")
	}
}

func TestManager_NewWidgetBeforeStart(t *testing.T) {
	m := NewManager(Config{})
	if _, err := m.NewWidget(context.Background(), engine.Options{ID: "a", Width: 8, Height: 8}); err == nil {
		t.Fatal("expected error without a browser")
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("start after close accepted")
	}
}

// TestWidget_LoadAndSnapshot drives a real headless Chrome. It runs only
// when WEBTEX_CHROME_TEST=1 and a browser binary is available.
func TestWidget_LoadAndSnapshot(t *testing.T) {
	if os.Getenv("WEBTEX_CHROME_TEST") != "1" {
		t.Skip("set WEBTEX_CHROME_TEST=1 to run against Chrome")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome binary found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body style="margin:0;background:#ff0000"></body></html>`))
	}))
	defer srv.Close()

	m := NewManager(Config{Bin: bin, ResourceBlocking: []string{"images"}})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Close()

	w, err := m.NewWidget(ctx, engine.Options{ID: "t", Width: 64, Height: 48})
	if err != nil {
		t.Fatalf("new widget: %v", err)
	}
	defer w.Close()

	finished := make(chan struct{}, 1)
	unsub := w.OnLoadChanged(func(ev engine.LoadEvent) {
		if ev == engine.LoadFinished {
			select {
			case finished <- struct{}{}:
			default:
			}
		}
	})
	defer unsub()

	if err := w.LoadURL(ctx, srv.URL); err != nil {
		t.Fatal(err)
	}
	select {
	case <-finished:
	case <-ctx.Done():
		t.Fatal("load never finished")
	}
	if w.URL() == "" {
		t.Fatal("url not tracked")
	}

	type result struct {
		snap pixbuf.Snapshot
		err  error
	}
	got := make(chan result, 1)
	w.Snapshot(ctx, func(s pixbuf.Snapshot, err error) { got <- result{s, err} })
	r := <-got
	if r.err != nil {
		t.Fatalf("snapshot: %v", r.err)
	}
	if r.snap.Width != 64 || r.snap.Height != 48 || r.snap.Format != pixbuf.FormatRGBAPremul {
		t.Fatalf("snapshot: %dx%d %s", r.snap.Width, r.snap.Height, r.snap.Format)
	}
	frame, err := pixbuf.Convert(r.snap)
	if err != nil {
		t.Fatal(err)
	}
	if px := frame.Pix[:4]; px[0] < 200 || px[1] > 50 || px[2] > 50 {
		t.Fatalf("expected red, got %v", px)
	}
}

// TestManager_OutlivesStartContext checks that Chrome keeps running once the
// context given to Start is cancelled. Gated like TestWidget_LoadAndSnapshot.
func TestManager_OutlivesStartContext(t *testing.T) {
	if os.Getenv("WEBTEX_CHROME_TEST") != "1" {
		t.Skip("set WEBTEX_CHROME_TEST=1 to run against Chrome")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chrome binary found")
	}

	m := NewManager(Config{Bin: bin})
	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	if err := m.Start(startCtx); err != nil {
		cancelStart()
		t.Fatalf("start: %v", err)
	}
	defer m.Close()
	cancelStart()
	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	w, err := m.NewWidget(ctx, engine.Options{ID: "late", Width: 16, Height: 16})
	if err != nil {
		t.Fatalf("new widget after start ctx cancelled: %v", err)
	}
	defer w.Close()

	got := make(chan error, 1)
	w.Snapshot(ctx, func(_ pixbuf.Snapshot, err error) { got <- err })
	if err := <-got; err != nil {
		t.Fatalf("snapshot after start ctx cancelled: %v", err)
	}
}
