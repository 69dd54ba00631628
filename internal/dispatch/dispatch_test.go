package dispatch

import (
	"testing"

	"github.com/hstoklosa/sentix-sub000/internal/codec"
)

func tickerEvent(topic string) codec.Event {
	return codec.Event{Topic: topic, Kind: codec.KindTicker, Ticker: &codec.TickerUpdate{Symbol: topic}}
}

func TestDispatcher_TopicFanOut(t *testing.T) {
	d := New(nil)

	var a, b, other int
	d.On("btcusdt@miniticker", func(codec.Event) { a++ })
	d.On("btcusdt@miniticker", func(codec.Event) { b++ })
	d.On("ethusdt@miniticker", func(codec.Event) { other++ })

	d.Dispatch(tickerEvent("btcusdt@miniticker"))

	if a != 1 || b != 1 {
		t.Errorf("matching listeners = (%d,%d), want (1,1)", a, b)
	}
	if other != 0 {
		t.Errorf("non-matching listener called %d times", other)
	}
}

func TestDispatcher_GlobalListener(t *testing.T) {
	d := New(nil)

	var events []codec.Event
	d.OnAll(func(ev codec.Event) { events = append(events, ev) })

	d.Dispatch(tickerEvent("btcusdt@miniticker"))
	d.Dispatch(codec.Event{Kind: codec.KindPong})

	if len(events) != 2 {
		t.Errorf("global listener saw %d events, want 2", len(events))
	}
}

func TestDispatcher_Unregister(t *testing.T) {
	d := New(nil)

	var calls int
	off := d.On("btcusdt@miniticker", func(codec.Event) { calls++ })

	d.Dispatch(tickerEvent("btcusdt@miniticker"))
	off()
	off() // double unregister is a no-op
	d.Dispatch(tickerEvent("btcusdt@miniticker"))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if d.Listeners("btcusdt@miniticker") != 0 {
		t.Errorf("Listeners = %d, want 0", d.Listeners("btcusdt@miniticker"))
	}
}

func TestDispatcher_UnregisterFromWithinCallback(t *testing.T) {
	d := New(nil)

	var calls int
	var off func()
	off = d.On("btcusdt@miniticker", func(codec.Event) {
		calls++
		off()
	})

	// Must not deadlock, and the second dispatch finds no listener.
	d.Dispatch(tickerEvent("btcusdt@miniticker"))
	d.Dispatch(tickerEvent("btcusdt@miniticker"))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDispatcher_RegisterFromWithinCallback(t *testing.T) {
	d := New(nil)

	var late int
	d.On("btcusdt@miniticker", func(codec.Event) {
		d.On("btcusdt@miniticker", func(codec.Event) { late++ })
	})

	d.Dispatch(tickerEvent("btcusdt@miniticker"))
	if late != 0 {
		t.Error("listener registered during dispatch must not see the same event")
	}

	d.Dispatch(tickerEvent("btcusdt@miniticker"))
	if late != 1 {
		t.Errorf("late listener calls = %d, want 1", late)
	}
}
