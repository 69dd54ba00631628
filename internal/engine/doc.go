// Package engine implements the realtime subscription multiplexer.
//
// One Engine instance owns exactly one websocket to an upstream push
// feed and is shared by every consumer of that feed. Consumers acquire
// and release interest in topics; the engine reference-counts them,
// debounces the resulting subscribe/unsubscribe traffic into batched
// frames, fans inbound events out to listeners, and keeps the
// wire-subscribed set equal to live consumer demand across reconnects.
//
// The wire protocol is a strategy: the same engine drives the crypto
// ticker feed and the news feed through different codec.Codec
// implementations.
package engine
