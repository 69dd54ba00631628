package codec

import (
	"fmt"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/hstoklosa/sentix-sub000/internal/topic"
)

// DefaultTickerStream is the stream suffix assumed when a bare symbol
// is acquired, so "BTCUSDT" and "btcusdt@miniticker" land on one key.
const DefaultTickerStream = "miniticker"

// maxParamsPerFrame bounds the streams carried by one control frame.
// The upstream rejects oversized control messages, so wide batches are
// chunked rather than sent whole.
const maxParamsPerFrame = 100

// tickerRequest is the outbound control frame of the ticker protocol.
type tickerRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// tickerAck is the upstream acknowledgement for a control frame.
type tickerAck struct {
	Result *json.RawMessage `json:"result"`
	ID     *int64           `json:"id"`
	Error  *tickerError     `json:"error,omitempty"`
}

type tickerError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// TickerCodec speaks the crypto ticker variant:
// {"method":"SUBSCRIBE"|"UNSUBSCRIBE","params":[...],"id":n} outbound,
// per-symbol update objects (single or array) inbound.
type TickerCodec struct {
	stream string
	nextID atomic.Int64
}

// NewTickerCodec creates a ticker codec. stream is the suffix appended
// to bare symbols; empty selects DefaultTickerStream.
func NewTickerCodec(stream string) *TickerCodec {
	if stream == "" {
		stream = DefaultTickerStream
	}
	return &TickerCodec{stream: stream}
}

// Canonical lowercases the key and pins the stream suffix.
func (c *TickerCodec) Canonical(raw string) string {
	key := topic.Normalize(raw)
	if key == "" {
		return ""
	}
	symbol, stream := topic.SplitStream(key)
	if stream == "" {
		stream = c.stream
	}
	return topic.WithStream(symbol, stream)
}

// EncodeSubscribe builds combined SUBSCRIBE frames, chunked at
// maxParamsPerFrame.
func (c *TickerCodec) EncodeSubscribe(topics []string) ([][]byte, error) {
	return c.encode("SUBSCRIBE", topics)
}

// EncodeUnsubscribe builds combined UNSUBSCRIBE frames.
func (c *TickerCodec) EncodeUnsubscribe(topics []string) ([][]byte, error) {
	return c.encode("UNSUBSCRIBE", topics)
}

func (c *TickerCodec) encode(method string, topics []string) ([][]byte, error) {
	if len(topics) == 0 {
		return nil, nil
	}

	frames := make([][]byte, 0, (len(topics)+maxParamsPerFrame-1)/maxParamsPerFrame)
	for start := 0; start < len(topics); start += maxParamsPerFrame {
		end := start + maxParamsPerFrame
		if end > len(topics) {
			end = len(topics)
		}

		data, err := json.Marshal(tickerRequest{
			Method: method,
			Params: topics[start:end],
			ID:     c.nextID.Add(1),
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s frame: %w", method, err)
		}
		frames = append(frames, data)
	}

	return frames, nil
}

// Ping reports no application-level heartbeat; the ticker upstream is
// kept alive with transport ping control frames.
func (c *TickerCodec) Ping() ([]byte, bool) {
	return nil, false
}

// Decode parses an inbound frame: a control ack, one update object, or
// an array of update objects.
func (c *TickerCodec) Decode(data []byte) ([]Event, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	if data[0] == '[' {
		var updates []TickerUpdate
		if err := json.Unmarshal(data, &updates); err != nil {
			return nil, fmt.Errorf("decode ticker array: %w", err)
		}
		events := make([]Event, 0, len(updates))
		for i := range updates {
			if ev, ok := c.updateEvent(&updates[i]); ok {
				events = append(events, ev)
			}
		}
		return events, nil
	}

	// Control acks carry "id"; probe for one before assuming an update.
	var ack tickerAck
	if err := json.Unmarshal(data, &ack); err == nil && ack.ID != nil {
		if ack.Error != nil {
			return []Event{{Kind: KindError, Err: fmt.Sprintf("%d: %s", ack.Error.Code, ack.Error.Msg)}}, nil
		}
		return []Event{{Kind: KindAck}}, nil
	}

	var update TickerUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("decode ticker update: %w", err)
	}
	ev, ok := c.updateEvent(&update)
	if !ok {
		return nil, ErrUnknownFrame
	}
	return []Event{ev}, nil
}

func (c *TickerCodec) updateEvent(u *TickerUpdate) (Event, bool) {
	if u.Symbol == "" {
		return Event{}, false
	}
	return Event{
		Topic:  c.Canonical(u.Symbol),
		Kind:   KindTicker,
		Ticker: u,
	}, true
}
