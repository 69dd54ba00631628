package codec

import "errors"

// Decode errors. ErrUnknownFrame marks frames the codec does not
// recognize; callers log and drop them without touching the connection.
var (
	ErrUnknownFrame = errors.New("unknown frame")
	ErrEmptyFrame   = errors.New("empty frame")
)

// EventKind classifies a decoded inbound frame.
type EventKind string

const (
	KindTicker       EventKind = "ticker"
	KindNews         EventKind = "news"
	KindAck          EventKind = "ack"
	KindPong         EventKind = "pong"
	KindSubscribed   EventKind = "subscribed"
	KindUnsubscribed EventKind = "unsubscribed"
	KindFeeds        EventKind = "available_feeds"
	KindError        EventKind = "error"
)

// Data reports whether the kind carries consumer-facing payload, as
// opposed to protocol housekeeping.
func (k EventKind) Data() bool {
	return k == KindTicker || k == KindNews
}

// TickerUpdate is a per-symbol price update.
type TickerUpdate struct {
	Symbol        string `json:"s"`
	LastPrice     string `json:"c"`
	PercentChange string `json:"P"`
}

// NewsItem is a single story from a news feed.
type NewsItem struct {
	Feed        string `json:"feed"`
	ID          string `json:"id"`
	Headline    string `json:"headline"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt int64  `json:"published_at"`
}

// Event is one decoded inbound frame. Topic is the canonical key the
// event belongs to; empty for global/protocol events.
type Event struct {
	Topic  string
	Kind   EventKind
	Ticker *TickerUpdate
	News   *NewsItem
	Feeds  []string
	Err    string
}

// Codec converts between canonical topics and protocol frames. One
// engine instance holds exactly one codec; the two upstream protocol
// variants are separate implementations behind this interface.
type Codec interface {
	// Canonical normalizes a raw topic key. Applied before every
	// registry or dispatch lookup so aliases collapse to one key.
	Canonical(raw string) string

	// EncodeSubscribe builds the outbound frames for a batch of topics.
	// Implementations batch at the protocol level; a frame per topic is
	// only produced where the protocol admits nothing wider.
	EncodeSubscribe(topics []string) ([][]byte, error)

	// EncodeUnsubscribe is the removal counterpart of EncodeSubscribe.
	EncodeUnsubscribe(topics []string) ([][]byte, error)

	// Ping returns the application-level heartbeat frame. ok is false
	// when the protocol has none and the transport ping should be used.
	Ping() (frame []byte, ok bool)

	// Decode parses one inbound frame into events. A frame the codec
	// cannot make sense of yields ErrUnknownFrame.
	Decode(data []byte) ([]Event, error)
}
