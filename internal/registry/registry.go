// Package registry implements the refcounted subscription registry.
//
// The registry holds the canonical desired topic set: every topic maps
// to the number of distinct consumers currently holding it. Entries
// appear on first acquire and vanish when the count returns to zero.
// The map is reachable only through Acquire/Release; callers receive
// snapshots, never the map itself.
package registry

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry reference-counts topics across consumers. Topics must be
// canonicalized before they reach the registry.
type Registry struct {
	mu     sync.Mutex
	counts map[string]int
	pinned map[string]struct{}
	logger *slog.Logger
}

// New creates a registry. Pinned topics are pre-acquired with a floor
// refcount of 1: ordinary release can never drive them to zero.
func New(pinned []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		counts: make(map[string]int),
		pinned: make(map[string]struct{}, len(pinned)),
		logger: logger,
	}
	for _, t := range pinned {
		if t == "" {
			continue
		}
		r.pinned[t] = struct{}{}
		r.counts[t] = 1
	}
	return r
}

// Acquire increments the refcount for topic. It reports whether this
// was the 0→1 transition, i.e. the topic newly needs a wire subscribe.
func (r *Registry) Acquire(topic string) bool {
	if topic == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[topic]++
	return r.counts[topic] == 1
}

// Release decrements the refcount for topic. It reports whether this
// was the 1→0 transition, i.e. the topic newly needs a wire
// unsubscribe. Releasing an untracked topic, or below a pin floor, is
// a logged no-op: consumer teardown ordering cannot be guaranteed.
func (r *Registry) Release(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, ok := r.counts[topic]
	if !ok {
		r.logger.Warn("release of untracked topic", "topic", topic)
		return false
	}

	if _, pin := r.pinned[topic]; pin && count == 1 {
		r.logger.Debug("release ignored for pinned topic", "topic", topic)
		return false
	}

	count--
	if count > 0 {
		r.counts[topic] = count
		return false
	}

	delete(r.counts, topic)
	return true
}

// Count returns the current refcount for topic.
func (r *Registry) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[topic]
}

// Pinned reports whether topic carries a pin floor.
func (r *Registry) Pinned(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pinned[topic]
	return ok
}

// Topics returns a sorted snapshot of the desired topic set. The
// lifecycle manager sends exactly this set after every reconnect.
func (r *Registry) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := make([]string, 0, len(r.counts))
	for t := range r.counts {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Len returns the number of tracked topics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counts)
}

// Reset drops every entry, pins included. A manual disconnect is a full
// reset; consumers re-acquire after reconnecting.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = make(map[string]int)
	r.pinned = make(map[string]struct{})
}
