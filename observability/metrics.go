// Package observability records what webtexd does into SQLite: surface
// events, channel call timings and daemon heartbeats. It uses one database,
// separate from anything the host application owns.
//
// Writes are async and non-blocking: a full buffer drops datapoints rather
// than applying backpressure to the main loop.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/dbopen"
	"github.com/hazyhaar/webtex/kit"
)

// Metric names.
const (
	MetricChannelCallMs = "channel_call_ms"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string
}

// MetricsManager buffers metrics and flushes them to SQLite in batches.
type MetricsManager struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	buffer        []*Metric
	mu            sync.Mutex
	stop          chan struct{}
	done          chan struct{}
	once          sync.Once
}

// NewMetricsManager creates a manager that flushes when bufferSize metrics
// are queued or every flushInterval, whichever comes first.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration) *MetricsManager {
	if bufferSize < 1 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	mm := &MetricsManager{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues a metric. A full buffer is written out by the caller.
func (mm *MetricsManager) Record(m *Metric) {
	mm.mu.Lock()
	mm.buffer = append(mm.buffer, m)
	var batch []*Metric
	if len(mm.buffer) >= mm.bufferSize {
		batch = mm.takeLocked()
	}
	mm.mu.Unlock()
	mm.write(batch)
}

// Flush writes everything queued so far.
func (mm *MetricsManager) Flush() {
	mm.mu.Lock()
	batch := mm.takeLocked()
	mm.mu.Unlock()
	mm.write(batch)
}

func (mm *MetricsManager) takeLocked() []*Metric {
	batch := mm.buffer
	mm.buffer = make([]*Metric, 0, mm.bufferSize)
	return batch
}

// ChannelMiddleware times every call of a channel and records it as
// channel_call_ms, labelled with the channel, transport and outcome.
func (mm *MetricsManager) ChannelMiddleware() channel.HandlerMiddleware {
	return func(next channel.Handler) channel.Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			out, err := next(ctx, payload)
			status := "ok"
			if err != nil {
				status = "error"
			}
			mm.Record(&Metric{
				Name:      MetricChannelCallMs,
				Timestamp: start,
				Value:     float64(time.Since(start).Microseconds()) / 1000,
				Unit:      "milliseconds",
				Labels: map[string]string{
					"channel":   kit.GetChannel(ctx),
					"transport": kit.GetTransport(ctx),
					"status":    status,
				},
			})
			return out, err
		}
	}
}

// Query retrieves metrics by name (empty for all), newest first.
func (mm *MetricsManager) Query(ctx context.Context, metricName string, since time.Time, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	var args []any

	if metricName != "" {
		q += " AND metric_name = ?"
		args = append(args, metricName)
	}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.Unix())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var name string
		var unit, labelsJSON sql.NullString
		var ts int64
		var value float64

		if err := rows.Scan(&name, &ts, &value, &labelsJSON, &unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m := &Metric{Name: name, Timestamp: time.Unix(ts, 0), Value: value, Unit: unit.String}
		if labelsJSON.Valid {
			var labels map[string]string
			if json.Unmarshal([]byte(labelsJSON.String), &labels) == nil {
				m.Labels = labels
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close flushes remaining metrics and stops the background goroutine.
func (mm *MetricsManager) Close() error {
	mm.once.Do(func() { close(mm.stop) })
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stop:
			mm.Flush()
			return
		case <-ticker.C:
			mm.Flush()
		}
	}
}

func (mm *MetricsManager) write(batch []*Metric) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := dbopen.RunTx(ctx, mm.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, m := range batch {
			var labels sql.NullString
			if len(m.Labels) > 0 {
				if b, err := json.Marshal(m.Labels); err == nil {
					labels = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.Unix(), m.Value, labels, m.Unit); err != nil {
				return fmt.Errorf("insert %s: %w", m.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("observability metrics: batch dropped", "error", err, "size", len(batch))
	}
}
