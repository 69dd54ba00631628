package recorder

import (
	"testing"
	"time"

	"github.com/hstoklosa/sentix-sub000/internal/codec"
	"github.com/hstoklosa/sentix-sub000/internal/config"
)

func TestTransform_TickerEvent(t *testing.T) {
	receivedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := codec.Event{
		Topic: "btcusdt@miniticker",
		Kind:  codec.KindTicker,
		Ticker: &codec.TickerUpdate{
			Symbol:        "BTCUSDT",
			LastPrice:     "64123.50",
			PercentChange: "-1.24",
		},
	}

	row := transform(ev, receivedAt)

	if row.ReceivedAt != receivedAt.UnixMicro() {
		t.Errorf("received_at = %d", row.ReceivedAt)
	}
	if row.Kind != string(codec.KindTicker) {
		t.Errorf("kind = %q", row.Kind)
	}
	if row.Topic != "btcusdt@miniticker" {
		t.Errorf("topic = %q", row.Topic)
	}
	if row.Symbol != "BTCUSDT" || row.LastPrice != "64123.50" || row.PercentChange != "-1.24" {
		t.Errorf("ticker columns = %q %q %q", row.Symbol, row.LastPrice, row.PercentChange)
	}
	if row.Headline != "" || row.Feed != "" {
		t.Error("news columns must stay empty for a ticker event")
	}
}

func TestTransform_NewsEvent(t *testing.T) {
	ev := codec.Event{
		Topic: "energy",
		Kind:  codec.KindNews,
		News: &codec.NewsItem{
			Feed:        "energy",
			ID:          "n-42",
			Headline:    "Refinery back online",
			Source:      "newswire",
			URL:         "https://news.example.com/n-42",
			PublishedAt: 1767225600000,
		},
	}

	row := transform(ev, time.Now())

	if row.Kind != string(codec.KindNews) {
		t.Errorf("kind = %q", row.Kind)
	}
	if row.Feed != "energy" || row.Headline != "Refinery back online" {
		t.Errorf("news columns = %q %q", row.Feed, row.Headline)
	}
	if row.URL != "https://news.example.com/n-42" || row.PublishedAt != 1767225600000 {
		t.Errorf("news columns = %q %d", row.URL, row.PublishedAt)
	}
	if row.Symbol != "" {
		t.Error("ticker columns must stay empty for a news event")
	}
}

func TestRecorder_SkipsControlEvents(t *testing.T) {
	rec := New(config.RecorderConfig{BatchSize: 100, FlushInterval: time.Minute}, nil, nil)

	rec.handleEvent(codec.Event{Kind: codec.KindAck})
	rec.handleEvent(codec.Event{Kind: codec.KindPong})
	rec.handleEvent(codec.Event{Kind: codec.KindSubscribed, Topic: "energy"})
	rec.handleEvent(codec.Event{
		Kind:   codec.KindTicker,
		Topic:  "btcusdt@miniticker",
		Ticker: &codec.TickerUpdate{Symbol: "BTCUSDT"},
	})

	stats := rec.Stats()
	if stats.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", stats.Skipped)
	}
	if stats.Inserts != 0 {
		t.Errorf("inserts = %d, want 0 before any flush", stats.Inserts)
	}

	rec.batchMu.Lock()
	pending := len(rec.batch)
	rec.batchMu.Unlock()
	if pending != 1 {
		t.Errorf("pending rows = %d, want 1", pending)
	}
}

func TestRecorder_AccumulatesBelowBatchSize(t *testing.T) {
	// No pool is wired; staying below the batch threshold must not
	// attempt a database flush.
	rec := New(config.RecorderConfig{BatchSize: 10, FlushInterval: time.Minute}, nil, nil)

	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		rec.handleEvent(codec.Event{
			Kind:   codec.KindTicker,
			Topic:  sym,
			Ticker: &codec.TickerUpdate{Symbol: sym},
		})
	}

	stats := rec.Stats()
	if stats.Flushes != 0 || stats.Errors != 0 {
		t.Errorf("stats = %+v, want no flush activity", stats)
	}

	rec.batchMu.Lock()
	pending := len(rec.batch)
	rec.batchMu.Unlock()
	if pending != 3 {
		t.Errorf("pending rows = %d, want 3", pending)
	}
}
