// Package recorder persists decoded feed events to Postgres.
//
// The recorder registers as a global engine listener, accumulates rows
// in memory, and writes them in batches on a size threshold or flush
// interval. It is optional: the engine runs identically without it.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hstoklosa/sentix-sub000/internal/codec"
	"github.com/hstoklosa/sentix-sub000/internal/config"
	"github.com/hstoklosa/sentix-sub000/internal/dispatch"
)

// EventSource is the engine surface the recorder attaches to.
type EventSource interface {
	OnAll(h dispatch.Handler) func()
}

// Metrics counts recorder activity.
type Metrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Skipped int64
}

// eventRow is one persisted event.
type eventRow struct {
	ReceivedAt    int64 // unix micros
	Kind          string
	Topic         string
	Symbol        string
	LastPrice     string
	PercentChange string
	Feed          string
	Headline      string
	Source        string
	URL           string
	PublishedAt   int64
}

// Recorder batches decoded events into the stream_events table.
type Recorder struct {
	cfg    config.RecorderConfig
	db     *pgxpool.Pool
	logger *slog.Logger

	unregister func()

	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// New creates a recorder.
func New(cfg config.RecorderConfig, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start attaches to the event source and begins flushing.
func (r *Recorder) Start(ctx context.Context, source EventSource) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)
	r.unregister = source.OnAll(r.handleEvent)

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop detaches, drains, and shuts down.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	if r.unregister != nil {
		r.unregister()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
	}

	// Final flush
	r.flush()
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// handleEvent runs on the dispatch path; it must stay cheap, so it
// only transforms and appends.
func (r *Recorder) handleEvent(ev codec.Event) {
	if !ev.Kind.Data() {
		r.batchMu.Lock()
		r.metrics.Skipped++
		r.batchMu.Unlock()
		return
	}

	row := transform(ev, time.Now())

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush()
	}
}

// transform converts a decoded event to a row.
func transform(ev codec.Event, receivedAt time.Time) eventRow {
	row := eventRow{
		ReceivedAt: receivedAt.UnixMicro(),
		Kind:       string(ev.Kind),
		Topic:      ev.Topic,
	}
	if ev.Ticker != nil {
		row.Symbol = ev.Ticker.Symbol
		row.LastPrice = ev.Ticker.LastPrice
		row.PercentChange = ev.Ticker.PercentChange
	}
	if ev.News != nil {
		row.Feed = ev.News.Feed
		row.Headline = ev.News.Headline
		row.Source = ev.News.Source
		row.URL = ev.News.URL
		row.PublishedAt = ev.News.PublishedAt
	}
	return row
}

// flushLoop periodically flushes the batch.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush()
		}
	}
}

// flush writes the current batch to the database.
func (r *Recorder) flush() {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]eventRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	if err := r.batchInsert(batch); err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch))
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (r *Recorder) batchInsert(rows []eventRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO stream_events (received_at, kind, topic, symbol, last_price, percent_change, feed, headline, source, url, published_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, row.ReceivedAt, row.Kind, row.Topic, row.Symbol, row.LastPrice, row.PercentChange, row.Feed, row.Headline, row.Source, row.URL, row.PublishedAt)
	}

	results := r.db.SendBatch(r.ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
