package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Gauges reports live counts at heartbeat time. Nil funcs record 0.
type Gauges struct {
	Surfaces func() int
	Textures func() int
}

// HeartbeatWriter writes periodic liveness rows to daemon_heartbeats.
type HeartbeatWriter struct {
	db       *sql.DB
	name     string
	hostname string
	pid      int
	interval time.Duration
	gauges   Gauges
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeatWriter creates a writer. Recommended interval: 15s.
func NewHeartbeatWriter(db *sql.DB, name string, interval time.Duration, gauges Gauges) *HeartbeatWriter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatWriter{
		db:       db,
		name:     name,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		gauges:   gauges,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the heartbeat goroutine. It writes one heartbeat immediately,
// then repeats at the configured interval until Stop or context cancellation.
func (hw *HeartbeatWriter) Start(ctx context.Context) {
	go hw.loop(ctx)
}

// WriteHeartbeat writes a single heartbeat row.
func (hw *HeartbeatWriter) WriteHeartbeat(ctx context.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, err := hw.db.ExecContext(ctx, `
		INSERT INTO daemon_heartbeats (
			daemon_name, hostname, pid, timestamp,
			surfaces_count, textures_count, goroutines_count, memory_alloc_mb
		) VALUES (?,?,?,?,?,?,?,?)`,
		hw.name, hw.hostname, hw.pid, time.Now().Unix(),
		gauge(hw.gauges.Surfaces), gauge(hw.gauges.Textures),
		runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

func gauge(fn func() int) int {
	if fn == nil {
		return 0
	}
	return fn()
}

// Stop signals the heartbeat goroutine to exit and waits for it.
func (hw *HeartbeatWriter) Stop() {
	select {
	case <-hw.stop:
	default:
		close(hw.stop)
	}
	<-hw.done
}

func (hw *HeartbeatWriter) loop(ctx context.Context) {
	defer close(hw.done)
	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()

	if err := hw.WriteHeartbeat(ctx); err != nil {
		slog.Error("heartbeat write failed", "error", err, "daemon", hw.name)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hw.stop:
			return
		case <-ticker.C:
			if err := hw.WriteHeartbeat(ctx); err != nil {
				slog.Error("heartbeat write failed", "error", err, "daemon", hw.name)
			}
		}
	}
}

// HeartbeatStatus is the latest heartbeat of a daemon with a staleness check.
type HeartbeatStatus struct {
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
	Surfaces  int       `json:"surfaces"`
	Textures  int       `json:"textures"`
	Alive     bool      `json:"alive"`
}

// LatestHeartbeat returns the most recent heartbeat for name, or nil, nil if
// none was recorded. A beat older than staleAfter is reported not alive.
func LatestHeartbeat(ctx context.Context, db *sql.DB, name string, staleAfter time.Duration) (*HeartbeatStatus, error) {
	row := db.QueryRowContext(ctx, `
		SELECT daemon_name, hostname, pid, timestamp,
		       COALESCE(surfaces_count, 0), COALESCE(textures_count, 0)
		FROM daemon_heartbeats
		WHERE daemon_name = ?
		ORDER BY timestamp DESC, rowid DESC LIMIT 1`, name)

	var hs HeartbeatStatus
	var ts int64
	err := row.Scan(&hs.Name, &hs.Hostname, &hs.PID, &ts, &hs.Surfaces, &hs.Textures)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest heartbeat: %w", err)
	}
	hs.Timestamp = time.Unix(ts, 0)
	hs.Alive = time.Since(hs.Timestamp) <= staleAfter
	return &hs, nil
}
