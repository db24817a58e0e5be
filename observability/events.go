package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/webtex/dbopen"
	"github.com/hazyhaar/webtex/idgen"
	"github.com/hazyhaar/webtex/kit"
)

// SurfaceEvent is one recorded lifecycle or snapshot outcome.
type SurfaceEvent struct {
	ID        string    `json:"id"`
	SurfaceID string    `json:"surface_id"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Transport string    `json:"transport,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventLogger writes surface events. It satisfies webview.EventSink.
type EventLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	events chan SurfaceEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithEventLogger sets the slog logger used for write failures.
func WithEventLogger(lg *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = lg }
}

// WithEventBuffer sets the queue size. Default 256.
func WithEventBuffer(n int) EventLoggerOption {
	return func(l *EventLogger) {
		if n > 0 {
			l.events = make(chan SurfaceEvent, n)
		}
	}
}

// NewEventLogger starts a writer backed by db. Close stops it.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
		events: make(chan SurfaceEvent, 256),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.writeLoop()
	return l
}

// SurfaceEvent queues an event. Never blocks: a full queue drops the event,
// so a slow store cannot stall the main loop.
func (l *EventLogger) SurfaceEvent(ctx context.Context, surfaceID, action string, success bool, details string) {
	ev := SurfaceEvent{
		ID:        l.newID(),
		SurfaceID: surfaceID,
		Action:    action,
		Success:   success,
		Details:   details,
		RequestID: kit.GetRequestID(ctx),
		Transport: kit.GetTransport(ctx),
		CreatedAt: time.Now(),
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.events <- ev:
	default:
		l.logger.Warn("observability: event dropped", "surface", surfaceID, "action", action)
	}
}

// Close drains queued events and stops the writer. Later events are ignored.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.events)
	l.mu.Unlock()
	<-l.done
	return nil
}

func (l *EventLogger) writeLoop() {
	defer close(l.done)
	for ev := range l.events {
		if err := l.insert(ev); err != nil {
			l.logger.Error("observability: event write failed",
				"error", err, "surface", ev.SurfaceID, "action", ev.Action)
		}
	}
}

func (l *EventLogger) insert(ev SurfaceEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO surface_events (
			event_id, surface_id, action, success, details,
			request_id, transport, created_at
		) VALUES (?,?,?,?,?,?,?,?)`,
		ev.ID, ev.SurfaceID, ev.Action, ev.Success, ev.Details,
		ev.RequestID, ev.Transport, ev.CreatedAt.Unix())
	return err
}

// EventFilter narrows QueryEvents. Zero fields match everything.
type EventFilter struct {
	SurfaceID string
	Action    string
	Since     time.Time
	Limit     int
}

// QueryEvents returns matching events, newest first.
func QueryEvents(ctx context.Context, db *sql.DB, f EventFilter) ([]SurfaceEvent, error) {
	q := `SELECT event_id, surface_id, action, success, COALESCE(details, ''),
		COALESCE(request_id, ''), COALESCE(transport, ''), created_at
		FROM surface_events WHERE 1=1`
	var args []any
	if f.SurfaceID != "" {
		q += " AND surface_id = ?"
		args = append(args, f.SurfaceID)
	}
	if f.Action != "" {
		q += " AND action = ?"
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, f.Since.Unix())
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query surface events: %w", err)
	}
	defer rows.Close()

	var out []SurfaceEvent
	for rows.Next() {
		var ev SurfaceEvent
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.SurfaceID, &ev.Action, &ev.Success, &ev.Details,
			&ev.RequestID, &ev.Transport, &ts); err != nil {
			return nil, fmt.Errorf("scan surface event: %w", err)
		}
		ev.CreatedAt = time.Unix(ts, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	EventsDays     int
	MetricsDays    int
	HeartbeatsDays int
}

// Cleanup deletes rows past their retention in one transaction.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().Unix()
	targets := []struct {
		query string
		days  int
	}{
		{"DELETE FROM surface_events WHERE created_at < ?", cfg.EventsDays},
		{"DELETE FROM metrics_timeseries WHERE timestamp < ?", cfg.MetricsDays},
		{"DELETE FROM daemon_heartbeats WHERE timestamp < ?", cfg.HeartbeatsDays},
	}
	return dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		for _, t := range targets {
			if t.days <= 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, t.query, now-int64(t.days*86400)); err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
		}
		return nil
	})
}
