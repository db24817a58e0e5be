package observability

import "database/sql"

// Schema holds the DDL of the webtexd event database. Pass it to
// dbopen.WithSchema or call Init.
const Schema = `
-- Surface lifecycle and snapshot outcomes
CREATE TABLE IF NOT EXISTS surface_events (
    event_id TEXT PRIMARY KEY,
    surface_id TEXT NOT NULL,
    action TEXT NOT NULL,
    success INTEGER NOT NULL DEFAULT 1,
    details TEXT,
    request_id TEXT,
    transport TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_surface_events_surface
    ON surface_events(surface_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_surface_events_action
    ON surface_events(action, created_at DESC);

-- Channel call timings
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);

-- Daemon liveness
CREATE TABLE IF NOT EXISTS daemon_heartbeats (
    heartbeat_id TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
    daemon_name TEXT NOT NULL,
    hostname TEXT NOT NULL,
    pid INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    surfaces_count INTEGER,
    textures_count INTEGER,
    goroutines_count INTEGER,
    memory_alloc_mb REAL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_daemon_time
    ON daemon_heartbeats(daemon_name, timestamp DESC);
`

// Init applies Schema to db.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
