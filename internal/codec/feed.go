package codec

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/hstoklosa/sentix-sub000/internal/topic"
)

// feedRequest is the outbound control frame of the news feed variant.
// The protocol keys control frames by a single feed name, so a flush of
// several feeds produces one frame per feed.
type feedRequest struct {
	Type string `json:"type"`
	Feed string `json:"feed"`
}

// feedEnvelope is the typed inbound envelope of the feed protocol.
type feedEnvelope struct {
	Type    string          `json:"type"`
	Feed    string          `json:"feed,omitempty"`
	Feeds   []string        `json:"feeds,omitempty"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FeedCodec speaks the news feed variant: {"type":"subscribe","feed":f}
// outbound and a typed {"type":...} envelope inbound.
type FeedCodec struct{}

func NewFeedCodec() *FeedCodec {
	return &FeedCodec{}
}

// Canonical is plain normalization; feed names carry no stream suffix.
func (c *FeedCodec) Canonical(raw string) string {
	return topic.Normalize(raw)
}

func (c *FeedCodec) EncodeSubscribe(topics []string) ([][]byte, error) {
	return c.encode("subscribe", topics)
}

func (c *FeedCodec) EncodeUnsubscribe(topics []string) ([][]byte, error) {
	return c.encode("unsubscribe", topics)
}

func (c *FeedCodec) encode(typ string, topics []string) ([][]byte, error) {
	if len(topics) == 0 {
		return nil, nil
	}

	frames := make([][]byte, 0, len(topics))
	for _, t := range topics {
		data, err := json.Marshal(feedRequest{Type: typ, Feed: t})
		if err != nil {
			return nil, fmt.Errorf("encode %s frame: %w", typ, err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}

// Ping returns the protocol heartbeat frame.
func (c *FeedCodec) Ping() ([]byte, bool) {
	return []byte(`{"type":"ping"}`), true
}

// Decode parses one inbound envelope.
func (c *FeedCodec) Decode(data []byte) ([]Event, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var env feedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode feed envelope: %w", err)
	}

	switch env.Type {
	case "news":
		var item NewsItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("decode news item: %w", err)
		}
		if item.Feed == "" {
			item.Feed = env.Feed
		}
		return []Event{{
			Topic: c.Canonical(item.Feed),
			Kind:  KindNews,
			News:  &item,
		}}, nil

	case "pong":
		return []Event{{Kind: KindPong}}, nil

	case "subscribed":
		return []Event{{Topic: c.Canonical(env.Feed), Kind: KindSubscribed}}, nil

	case "unsubscribed":
		return []Event{{Topic: c.Canonical(env.Feed), Kind: KindUnsubscribed}}, nil

	case "available_feeds":
		return []Event{{Kind: KindFeeds, Feeds: env.Feeds}}, nil

	case "error":
		return []Event{{Kind: KindError, Err: env.Message}}, nil
	}

	return nil, ErrUnknownFrame
}
