// Package batch coalesces rapid subscribe/unsubscribe requests into
// infrequent network sends.
//
// Enqueues land in two disjoint pending sets; a debounce timer fires
// the flush after a quiet period with no new enqueue, bounded by a
// maximum wait so continuous churn cannot starve flushing. Enqueuing
// one direction cancels a pending entry in the other, so interest that
// appears and disappears within one window nets to zero traffic.
package batch

import (
	"log/slog"
	"sync"
	"time"
)

// Flush is the atomic result of one debounce window: the topics to
// subscribe and the topics to unsubscribe, disjoint by construction.
type Flush struct {
	Subscribe   []string
	Unsubscribe []string
}

// Empty reports whether the flush carries no work.
func (f Flush) Empty() bool {
	return len(f.Subscribe) == 0 && len(f.Unsubscribe) == 0
}

// FlushFunc consumes a flush. Returning false means the batch could
// not be sent (socket not open); the scheduler then retains the
// entries for a later flush instead of dropping them.
type FlushFunc func(Flush) bool

// Config tunes the scheduler.
type Config struct {
	// Quiet is the debounce window at zero churn.
	Quiet time.Duration

	// QuietMax caps the adaptive window at full churn.
	QuietMax time.Duration

	// MaxWait bounds the total time a pending entry can be postponed
	// by fresh enqueues.
	MaxWait time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Quiet:    150 * time.Millisecond,
		QuietMax: 600 * time.Millisecond,
		MaxWait:  2 * time.Second,
	}
}

// Scheduler debounces subscribe/unsubscribe traffic.
type Scheduler struct {
	cfg    Config
	clock  Clock
	flush  FlushFunc
	logger *slog.Logger

	mu       sync.Mutex
	toSub    map[string]struct{}
	toUnsub  map[string]struct{}
	timer    Timer
	deadline time.Time // hard flush bound for the oldest pending entry
	churn    float64
	stopped  bool
}

// NewScheduler creates a scheduler. clock may be nil for the real
// clock; flush is invoked outside the scheduler lock.
func NewScheduler(cfg Config, clock Clock, flush FlushFunc, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		clock:   clock,
		flush:   flush,
		logger:  logger,
		toSub:   make(map[string]struct{}),
		toUnsub: make(map[string]struct{}),
	}
}

// EnqueueSubscribe schedules a wire subscribe for topic. A pending
// unsubscribe for the same topic is cancelled instead: the wire still
// holds the subscription, so nothing needs to be sent.
func (s *Scheduler) EnqueueSubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if _, pending := s.toUnsub[topic]; pending {
		delete(s.toUnsub, topic)
		s.restartLocked()
		return
	}
	s.toSub[topic] = struct{}{}
	s.restartLocked()
}

// EnqueueUnsubscribe schedules a wire unsubscribe for topic. A pending
// subscribe for the same topic is cancelled instead, netting the pair
// to zero network traffic.
func (s *Scheduler) EnqueueUnsubscribe(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if _, pending := s.toSub[topic]; pending {
		delete(s.toSub, topic)
		s.restartLocked()
		return
	}
	s.toUnsub[topic] = struct{}{}
	s.restartLocked()
}

// SetChurn supplies the observed consumer churn level in [0,1]. Higher
// churn widens the quiet window up to QuietMax, avoiding subscribes
// for topics that will be gone from view within milliseconds.
func (s *Scheduler) SetChurn(level float64) {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	s.mu.Lock()
	s.churn = level
	s.mu.Unlock()
}

// Pending returns the sizes of the two pending sets.
func (s *Scheduler) Pending() (subs, unsubs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.toSub), len(s.toUnsub)
}

// Clear drops all pending entries and cancels the debounce timer. Used
// when the desired set is re-sent wholesale on (re)connect, which
// supersedes anything still pending.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// Stop cancels the timer and rejects further enqueues.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.clearLocked()
}

func (s *Scheduler) clearLocked() {
	s.toSub = make(map[string]struct{})
	s.toUnsub = make(map[string]struct{})
	s.deadline = time.Time{}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// restartLocked restarts the debounce timer, clamped to the max-wait
// deadline of the oldest pending entry.
func (s *Scheduler) restartLocked() {
	if len(s.toSub) == 0 && len(s.toUnsub) == 0 {
		s.deadline = time.Time{}
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		return
	}

	now := s.clock.Now()
	if s.deadline.IsZero() {
		s.deadline = now.Add(s.cfg.MaxWait)
	}

	delay := s.window()
	if remaining := s.deadline.Sub(now); remaining < delay {
		delay = remaining
	}
	if delay < 0 {
		delay = 0
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(delay, s.fire)
}

// window returns the effective quiet window for the current churn.
func (s *Scheduler) window() time.Duration {
	w := s.cfg.Quiet
	if s.cfg.QuietMax > s.cfg.Quiet {
		w += time.Duration(s.churn * float64(s.cfg.QuietMax-s.cfg.Quiet))
	}
	return w
}

// fire collects the pending batch and hands it to the flush callback
// outside the lock. An unconsumed batch is merged back so the next
// open connection picks it up.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	f := Flush{
		Subscribe:   keys(s.toSub),
		Unsubscribe: keys(s.toUnsub),
	}
	s.toSub = make(map[string]struct{})
	s.toUnsub = make(map[string]struct{})
	s.deadline = time.Time{}
	s.timer = nil
	s.mu.Unlock()

	if f.Empty() {
		return
	}

	if s.flush(f) {
		return
	}

	// Not consumed; retain entries that were not superseded meanwhile.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for _, t := range f.Subscribe {
		if _, opposite := s.toUnsub[t]; !opposite {
			s.toSub[t] = struct{}{}
		}
	}
	for _, t := range f.Unsubscribe {
		if _, opposite := s.toSub[t]; !opposite {
			s.toUnsub[t] = struct{}{}
		}
	}
}

func keys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}
