// Package topic provides canonical topic keys.
//
// A topic is the unit of upstream streaming interest (a symbol+stream
// pair for market data, a feed name for news). Aliases must collapse to
// one key before any registry or dispatch lookup, so all normalization
// lives here and in the per-protocol codecs.
package topic

import "strings"

// Normalize lowercases and trims a raw topic key.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// SplitStream splits a "symbol@stream" key into its parts. The stream
// part is empty when the key carries no suffix.
func SplitStream(key string) (symbol, stream string) {
	if i := strings.IndexByte(key, '@'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return key, ""
}

// WithStream joins a symbol and a stream suffix into one key.
func WithStream(symbol, stream string) string {
	if stream == "" {
		return symbol
	}
	return symbol + "@" + stream
}
