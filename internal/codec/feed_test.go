package codec

import (
	"encoding/json"
	"testing"
)

func TestFeedCodec_Canonical(t *testing.T) {
	c := NewFeedCodec()

	if got := c.Canonical(" Top-Stories "); got != "top-stories" {
		t.Errorf("Canonical = %q, want top-stories", got)
	}
}

func TestFeedCodec_EncodeSubscribe(t *testing.T) {
	c := NewFeedCodec()

	frames, err := c.EncodeSubscribe([]string{"markets", "crypto"})
	if err != nil {
		t.Fatalf("EncodeSubscribe failed: %v", err)
	}
	// The feed protocol keys control frames by one feed name.
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}

	var req struct {
		Type string `json:"type"`
		Feed string `json:"feed"`
	}
	if err := json.Unmarshal(frames[0], &req); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if req.Type != "subscribe" || req.Feed != "markets" {
		t.Errorf("frame = %+v, want subscribe/markets", req)
	}
}

func TestFeedCodec_EncodeUnsubscribe(t *testing.T) {
	c := NewFeedCodec()

	frames, err := c.EncodeUnsubscribe([]string{"markets"})
	if err != nil {
		t.Fatalf("EncodeUnsubscribe failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}

	var req struct {
		Type string `json:"type"`
		Feed string `json:"feed"`
	}
	if err := json.Unmarshal(frames[0], &req); err != nil {
		t.Fatal(err)
	}
	if req.Type != "unsubscribe" || req.Feed != "markets" {
		t.Errorf("frame = %+v, want unsubscribe/markets", req)
	}
}

func TestFeedCodec_Ping(t *testing.T) {
	c := NewFeedCodec()

	frame, ok := c.Ping()
	if !ok {
		t.Fatal("feed protocol has an application-level ping")
	}

	var req struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &req); err != nil {
		t.Fatal(err)
	}
	if req.Type != "ping" {
		t.Errorf("type = %q, want ping", req.Type)
	}
}

func TestFeedCodec_DecodeNews(t *testing.T) {
	c := NewFeedCodec()

	events, err := c.Decode([]byte(`{"type":"news","feed":"Crypto","id":"n1","headline":"BTC rallies","source":"wire","url":"https://example.com/n1","published_at":1717243200}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	ev := events[0]
	if ev.Kind != KindNews {
		t.Errorf("kind = %q, want %q", ev.Kind, KindNews)
	}
	if ev.Topic != "crypto" {
		t.Errorf("topic = %q, want crypto", ev.Topic)
	}
	if ev.News == nil || ev.News.Headline != "BTC rallies" || ev.News.PublishedAt != 1717243200 {
		t.Errorf("news payload = %+v", ev.News)
	}
}

func TestFeedCodec_DecodeControlFrames(t *testing.T) {
	c := NewFeedCodec()

	tests := []struct {
		frame string
		kind  EventKind
		topic string
	}{
		{`{"type":"pong"}`, KindPong, ""},
		{`{"type":"subscribed","feed":"Crypto"}`, KindSubscribed, "crypto"},
		{`{"type":"unsubscribed","feed":"crypto"}`, KindUnsubscribed, "crypto"},
		{`{"type":"error","message":"unknown feed"}`, KindError, ""},
	}

	for _, tt := range tests {
		events, err := c.Decode([]byte(tt.frame))
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", tt.frame, err)
		}
		if len(events) != 1 {
			t.Fatalf("Decode(%s): events = %d, want 1", tt.frame, len(events))
		}
		if events[0].Kind != tt.kind {
			t.Errorf("Decode(%s): kind = %q, want %q", tt.frame, events[0].Kind, tt.kind)
		}
		if events[0].Topic != tt.topic {
			t.Errorf("Decode(%s): topic = %q, want %q", tt.frame, events[0].Topic, tt.topic)
		}
	}
}

func TestFeedCodec_DecodeAvailableFeeds(t *testing.T) {
	c := NewFeedCodec()

	events, err := c.Decode([]byte(`{"type":"available_feeds","feeds":["crypto","markets","top-stories"]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindFeeds {
		t.Fatalf("events = %+v, want one feeds event", events)
	}
	if len(events[0].Feeds) != 3 {
		t.Errorf("feeds = %v, want 3 entries", events[0].Feeds)
	}
}

func TestFeedCodec_DecodeUnknown(t *testing.T) {
	c := NewFeedCodec()

	if _, err := c.Decode([]byte(`{"type":"mystery"}`)); err == nil {
		t.Error("expected error for unknown envelope type")
	}
	if _, err := c.Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
}
