package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/dbopen"
	"github.com/hazyhaar/webtex/kit"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func TestInit_CreatesAllTables(t *testing.T) {
	db := setupObsDB(t)
	if err := Init(db); err != nil {
		t.Fatalf("Init is not idempotent: %v", err)
	}
	for _, table := range []string{"surface_events", "metrics_timeseries", "daemon_heartbeats"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

// --- EventLogger ---

func TestEventLogger_RecordsWithContext(t *testing.T) {
	db := setupObsDB(t)
	n := 0
	l := NewEventLogger(db, WithEventIDGenerator(func() string {
		n++
		return "evt_" + string(rune('a'+n))
	}))

	ctx := kit.WithTransport(kit.WithRequestID(context.Background(), "req_1"), "http")
	l.SurfaceEvent(ctx, "a", "create", true, `{"texture_id":1}`)
	l.SurfaceEvent(context.Background(), "a", "snapshot", false, "capture failed")
	l.SurfaceEvent(context.Background(), "b", "create", true, "")
	l.Close()

	all, err := QueryEvents(context.Background(), db, EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("events: got %d", len(all))
	}

	created, err := QueryEvents(context.Background(), db, EventFilter{SurfaceID: "a", Action: "create"})
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 1 {
		t.Fatalf("filtered: got %d", len(created))
	}
	ev := created[0]
	if !ev.Success || ev.RequestID != "req_1" || ev.Transport != "http" || ev.Details != `{"texture_id":1}` {
		t.Fatalf("event: %+v", ev)
	}

	failed, _ := QueryEvents(context.Background(), db, EventFilter{Action: "snapshot"})
	if len(failed) != 1 || failed[0].Success || failed[0].Transport != "inproc" {
		t.Fatalf("snapshot event: %+v", failed)
	}

	limited, _ := QueryEvents(context.Background(), db, EventFilter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limit: got %d", len(limited))
	}
}

func TestEventLogger_AfterCloseIgnored(t *testing.T) {
	db := setupObsDB(t)
	l := NewEventLogger(db)
	l.Close()
	l.Close()
	l.SurfaceEvent(context.Background(), "a", "dispose", true, "")

	all, _ := QueryEvents(context.Background(), db, EventFilter{})
	if len(all) != 0 {
		t.Fatalf("event recorded after close: %+v", all)
	}
}

// --- MetricsManager ---

func TestMetricsManager_RecordAndQuery(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	mm.Record(&Metric{
		Name:      "frames_committed",
		Timestamp: time.Now(),
		Value:     3,
		Unit:      "count",
		Labels:    map[string]string{"surface": "a"},
	})
	mm.Close()

	got, err := mm.Query(context.Background(), "frames_committed", time.Time{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Value != 3 || got[0].Labels["surface"] != "a" {
		t.Fatalf("metrics: %+v", got)
	}
}

func TestMetricsManager_FlushOnBufferFull(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 2, time.Hour)
	defer mm.Close()

	mm.Record(&Metric{Name: "m", Timestamp: time.Now(), Value: 1})
	mm.Record(&Metric{Name: "m", Timestamp: time.Now(), Value: 2})

	var count int
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&count)
	if count != 2 {
		t.Fatalf("rows after full buffer: %d", count)
	}
}

func TestMetricsManager_ChannelMiddleware(t *testing.T) {
	db := setupObsDB(t)
	mm := NewMetricsManager(db, 100, time.Hour)

	r := channel.New(channel.WithMiddleware(mm.ChannelMiddleware()))
	r.Register("webtex", channel.Unimplemented())
	if _, err := r.Invoke(kit.WithTransport(context.Background(), "mcp"), "webtex", "x", nil); err != nil {
		t.Fatal(err)
	}
	mm.Flush()

	got, err := mm.Query(context.Background(), MetricChannelCallMs, time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("metrics: %d", len(got))
	}
	l := got[0].Labels
	if l["channel"] != "webtex" || l["transport"] != "mcp" || l["status"] != "ok" || got[0].Unit != "milliseconds" {
		t.Fatalf("labels: %+v unit %q", l, got[0].Unit)
	}
	mm.Close()
}

// --- Heartbeat ---

func TestHeartbeat_WriteAndLatest(t *testing.T) {
	db := setupObsDB(t)
	ctx := context.Background()

	if hs, err := LatestHeartbeat(ctx, db, "webtexd", time.Minute); err != nil || hs != nil {
		t.Fatalf("before any beat: %+v %v", hs, err)
	}

	hw := NewHeartbeatWriter(db, "webtexd", time.Hour, Gauges{
		Surfaces: func() int { return 2 },
		Textures: func() int { return 3 },
	})
	hw.Start(ctx)
	hw.Stop()

	hs, err := LatestHeartbeat(ctx, db, "webtexd", time.Minute)
	if err != nil || hs == nil {
		t.Fatalf("latest: %+v %v", hs, err)
	}
	if !hs.Alive || hs.Surfaces != 2 || hs.Textures != 3 {
		t.Fatalf("status: %+v", hs)
	}

	stale, _ := LatestHeartbeat(ctx, db, "webtexd", -time.Second)
	if stale.Alive {
		t.Fatal("negative threshold reported alive")
	}
}

// --- Retention ---

func TestCleanup(t *testing.T) {
	db := setupObsDB(t)
	old := time.Now().AddDate(0, 0, -10).Unix()
	db.Exec(`INSERT INTO surface_events (event_id, surface_id, action, created_at) VALUES ('e1','a','create',?)`, old)
	db.Exec(`INSERT INTO surface_events (event_id, surface_id, action, created_at) VALUES ('e2','a','create',?)`, time.Now().Unix())
	db.Exec(`INSERT INTO metrics_timeseries (metric_name, timestamp, value) VALUES ('m', ?, 1)`, old)

	if err := Cleanup(context.Background(), db, RetentionConfig{EventsDays: 7}); err != nil {
		t.Fatal(err)
	}

	var events, metrics int
	db.QueryRow("SELECT COUNT(*) FROM surface_events").Scan(&events)
	db.QueryRow("SELECT COUNT(*) FROM metrics_timeseries").Scan(&metrics)
	if events != 1 || metrics != 1 {
		t.Fatalf("after cleanup: events=%d metrics=%d", events, metrics)
	}
}
