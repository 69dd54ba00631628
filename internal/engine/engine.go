package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/hstoklosa/sentix-sub000/internal/auth"
	"github.com/hstoklosa/sentix-sub000/internal/batch"
	"github.com/hstoklosa/sentix-sub000/internal/codec"
	"github.com/hstoklosa/sentix-sub000/internal/conn"
	"github.com/hstoklosa/sentix-sub000/internal/dispatch"
	"github.com/hstoklosa/sentix-sub000/internal/registry"
)

// Engine multiplexes many consumers over one upstream socket.
type Engine struct {
	cfg    Config
	codec  codec.Codec
	dial   Dialer
	clock  batch.Clock
	logger *slog.Logger

	registry *registry.Registry
	sched    *batch.Scheduler
	disp     *dispatch.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes connection state with socket callbacks and timer
	// firings. Listener and status callbacks always run outside it.
	mu             sync.Mutex
	state          Status
	client         conn.Client
	gen            uint64 // connection generation; bumps invalidate stale callbacks
	attempts       int
	boff           *backoff.ExponentialBackOff
	reconnectTimer batch.Timer
	heartbeatTimer batch.Timer
	watchers       map[uuid.UUID]func(Status)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock injects the clock driving debounce, heartbeat, and backoff
// timers.
func WithClock(clock batch.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// New creates an engine for one upstream feed. The engine starts
// Disconnected; the first flush (or an explicit Connect) opens the
// socket.
func New(cfg Config, c codec.Codec, dial Dialer, opts ...Option) *Engine {
	cfg.applyDefaults()

	e := &Engine{
		cfg:      cfg,
		codec:    c,
		dial:     dial,
		clock:    batch.RealClock{},
		logger:   slog.Default(),
		state:    StatusDisconnected,
		watchers: make(map[uuid.UUID]func(Status)),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())

	pinned := make([]string, 0, len(cfg.Pinned))
	for _, raw := range cfg.Pinned {
		if t := c.Canonical(raw); t != "" {
			pinned = append(pinned, t)
		}
	}

	e.registry = registry.New(pinned, e.logger)
	e.sched = batch.NewScheduler(cfg.Batch, e.clock, e.onFlush, e.logger)
	e.disp = dispatch.New(e.logger)

	e.boff = backoff.NewExponentialBackOff()
	e.boff.InitialInterval = cfg.ReconnectBase
	e.boff.MaxInterval = cfg.ReconnectMax
	e.boff.Multiplier = 2.0
	e.boff.RandomizationFactor = 0

	return e
}

// Subscribe acquires interest in topics for one call-site. The 0→1
// transition of a topic enqueues a debounced wire subscribe.
func (e *Engine) Subscribe(topics ...string) {
	for _, raw := range topics {
		t := e.codec.Canonical(raw)
		if t == "" {
			continue
		}
		if e.registry.Acquire(t) {
			e.sched.EnqueueSubscribe(t)
		}
	}
}

// Unsubscribe releases interest in topics. The 1→0 transition enqueues
// a debounced wire unsubscribe; imbalanced releases are tolerated.
func (e *Engine) Unsubscribe(topics ...string) {
	for _, raw := range topics {
		t := e.codec.Canonical(raw)
		if t == "" {
			continue
		}
		if e.registry.Release(t) {
			e.sched.EnqueueUnsubscribe(t)
		}
	}
}

// On registers an event listener for one topic. The returned func
// unregisters it and is safe to call from within a callback.
func (e *Engine) On(rawTopic string, h dispatch.Handler) func() {
	return e.disp.On(e.codec.Canonical(rawTopic), h)
}

// OnAll registers a listener for every event regardless of topic.
func (e *Engine) OnAll(h dispatch.Handler) func() {
	return e.disp.OnAll(h)
}

// Topics returns a snapshot of the current desired topic set.
func (e *Engine) Topics() []string {
	return e.registry.Topics()
}

// SetChurn supplies the consumer churn signal in [0,1] widening the
// debounce window.
func (e *Engine) SetChurn(level float64) {
	e.sched.SetChurn(level)
}

// Status returns the current connection status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnStatus registers a connection-status watcher and returns its
// unregister func.
func (e *Engine) OnStatus(fn func(Status)) func() {
	id := uuid.New()
	e.mu.Lock()
	e.watchers[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.watchers, id)
		})
	}
}

// Connect opens the socket if needed. Idempotent while Connecting or
// Open; never blocks — completion is observed through status
// notifications. An explicit Connect clears the terminal states.
func (e *Engine) Connect() {
	e.mu.Lock()
	if e.state == StatusConnecting || e.state == StatusOpen {
		e.mu.Unlock()
		return
	}
	e.attempts = 0
	e.boff.Reset()
	e.gen++
	gen := e.gen
	e.state = StatusConnecting
	e.mu.Unlock()

	e.notify(StatusConnecting)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dialAttempt(gen)
	}()
}

// Disconnect closes the socket, cancels every engine-owned timer, and
// clears the registry and pending batch. A manual disconnect is a full
// reset: consumers must re-acquire after reconnecting.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	if e.state == StatusDisconnected {
		e.mu.Unlock()
		return
	}
	e.gen++
	e.stopTimersLocked()
	client := e.client
	e.client = nil
	e.state = StatusClosing
	e.mu.Unlock()

	e.notify(StatusClosing)

	if client != nil {
		client.Close()
	}
	e.sched.Clear()
	e.registry.Reset()

	e.mu.Lock()
	e.state = StatusDisconnected
	e.mu.Unlock()
	e.notify(StatusDisconnected)
}

// Close tears the engine down: disconnect, stop the scheduler, and
// join the engine-owned goroutines.
func (e *Engine) Close() {
	e.Disconnect()
	e.sched.Stop()
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) stopTimersLocked() {
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
		e.reconnectTimer = nil
	}
	if e.heartbeatTimer != nil {
		e.heartbeatTimer.Stop()
		e.heartbeatTimer = nil
	}
}

// notify fans a status change out to watchers, outside the engine
// lock so watchers may reenter the public API.
func (e *Engine) notify(s Status) {
	e.mu.Lock()
	watchers := make([]func(Status), 0, len(e.watchers))
	for _, fn := range e.watchers {
		watchers = append(watchers, fn)
	}
	e.mu.Unlock()

	e.logger.Info("connection status", "status", s)
	for _, fn := range watchers {
		fn(s)
	}
}

// dialAttempt performs one connection attempt for generation gen.
func (e *Engine) dialAttempt(gen uint64) {
	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.DialTimeout)
	client, err := e.dial(ctx)
	cancel()

	if err != nil {
		e.connectFailed(gen, err)
		return
	}
	e.opened(gen, client)
}

// connectFailed routes a dial failure: auth errors are terminal,
// transport errors feed the backoff.
func (e *Engine) connectFailed(gen uint64, err error) {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		e.mu.Lock()
		if gen != e.gen {
			e.mu.Unlock()
			return
		}
		e.stopTimersLocked()
		e.state = StatusAuthFailed
		e.mu.Unlock()

		e.logger.Error("connect authentication failed", "error", err)
		e.notify(StatusAuthFailed)
		return
	}

	e.logger.Warn("connect failed", "error", err)
	e.scheduleReconnect(gen)
}

// opened installs a freshly connected client: reset backoff, start the
// heartbeat, and resubscribe to the registry's current topic set so
// wire state matches live demand rather than pre-disconnect history.
func (e *Engine) opened(gen uint64, client conn.Client) {
	e.mu.Lock()
	if gen != e.gen || e.state != StatusConnecting {
		e.mu.Unlock()
		client.Close()
		return
	}
	e.client = client
	e.state = StatusOpen
	e.attempts = 0
	e.boff.Reset()
	e.armHeartbeatLocked(gen)
	e.mu.Unlock()

	// The full desired set goes out now; anything still pending in the
	// scheduler is superseded by it.
	topics := e.registry.Topics()
	e.sched.Clear()

	e.wg.Add(1)
	go e.pump(gen, client)

	e.notify(StatusOpen)

	if len(topics) > 0 {
		e.sendFrames(client, "SUBSCRIBE", mustEncode(e.codec.EncodeSubscribe(topics)))
	}
}

// pump consumes inbound frames and failures for one client until the
// connection dies or is superseded.
func (e *Engine) pump(gen uint64, client conn.Client) {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return

		case err := <-client.Errors():
			e.socketLost(gen, client, err)
			return

		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			events, err := e.codec.Decode(msg.Data)
			if err != nil {
				// Malformed frames are dropped per-frame; they never
				// terminate the connection.
				e.logger.Warn("dropping undecodable frame", "error", err)
				continue
			}
			for _, ev := range events {
				if ev.Kind == codec.KindError {
					e.logger.Warn("upstream error frame", "message", ev.Err)
				}
				e.disp.Dispatch(ev)
			}
		}
	}
}

// socketLost handles an unrequested close: back off and reconnect.
func (e *Engine) socketLost(gen uint64, client conn.Client, err error) {
	client.Close()

	e.mu.Lock()
	if gen != e.gen || e.state != StatusOpen {
		e.mu.Unlock()
		return
	}
	e.client = nil
	if e.heartbeatTimer != nil {
		e.heartbeatTimer.Stop()
		e.heartbeatTimer = nil
	}
	e.mu.Unlock()

	e.logger.Warn("connection lost", "error", err)
	e.scheduleReconnect(gen)
}

// scheduleReconnect arms the next attempt with exponential backoff, or
// parks the engine once the attempt budget is spent.
func (e *Engine) scheduleReconnect(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}

	e.attempts++
	if e.attempts > e.cfg.ReconnectAttempts {
		e.stopTimersLocked()
		e.state = StatusReconnectExhausted
		attempts := e.attempts - 1
		e.mu.Unlock()

		e.logger.Error("reconnect attempts exhausted", "attempts", attempts)
		e.notify(StatusReconnectExhausted)
		return
	}

	wasOpen := e.state == StatusOpen
	e.state = StatusConnecting

	delay := e.boff.NextBackOff()
	if delay == backoff.Stop || delay > e.cfg.ReconnectMax {
		delay = e.cfg.ReconnectMax
	}

	// Bump the generation so callbacks from the dead client cannot
	// race the retry.
	e.gen++
	next := e.gen
	attempt := e.attempts
	e.reconnectTimer = e.clock.AfterFunc(delay, func() {
		e.redial(next)
	})
	e.mu.Unlock()

	e.logger.Info("reconnect scheduled", "attempt", attempt, "delay", delay)
	if wasOpen {
		e.notify(StatusConnecting)
	}
}

// redial fires from the backoff timer.
func (e *Engine) redial(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != StatusConnecting {
		e.mu.Unlock()
		return
	}
	e.reconnectTimer = nil
	e.mu.Unlock()

	e.dialAttempt(gen)
}

// armHeartbeatLocked schedules the next liveness frame.
func (e *Engine) armHeartbeatLocked(gen uint64) {
	if e.cfg.Heartbeat <= 0 {
		return
	}
	e.heartbeatTimer = e.clock.AfterFunc(e.cfg.Heartbeat, func() {
		e.heartbeat(gen)
	})
}

// heartbeat sends one fire-and-forget liveness frame while Open. A
// missing reply is not fatal here; the transport watchdog recycles a
// silent socket through the normal reconnect path.
func (e *Engine) heartbeat(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != StatusOpen || e.client == nil {
		e.mu.Unlock()
		return
	}
	client := e.client
	e.armHeartbeatLocked(gen)
	e.mu.Unlock()

	var err error
	if frame, ok := e.codec.Ping(); ok {
		err = client.Send(frame)
	} else {
		err = client.Ping()
	}
	if err != nil {
		e.logger.Debug("heartbeat send failed", "error", err)
	}
}

// onFlush consumes one debounce batch. If the socket is not open the
// batch is retained and a connect is triggered instead; the eventual
// Open supersedes it with the full desired set.
func (e *Engine) onFlush(f batch.Flush) bool {
	e.mu.Lock()
	if e.state != StatusOpen || e.client == nil {
		state := e.state
		e.mu.Unlock()
		if state == StatusDisconnected {
			e.Connect()
		}
		return false
	}
	client := e.client
	e.mu.Unlock()

	sort.Strings(f.Subscribe)
	sort.Strings(f.Unsubscribe)

	if len(f.Subscribe) > 0 {
		e.sendFrames(client, "SUBSCRIBE", mustEncode(e.codec.EncodeSubscribe(f.Subscribe)))
	}
	if len(f.Unsubscribe) > 0 {
		e.sendFrames(client, "UNSUBSCRIBE", mustEncode(e.codec.EncodeUnsubscribe(f.Unsubscribe)))
	}
	return true
}

// sendFrames writes encoded frames. Send failures are logged only: the
// dying socket's reconnect resends the full desired set, which heals
// whatever was lost here.
func (e *Engine) sendFrames(client conn.Client, direction string, frames [][]byte) {
	for _, frame := range frames {
		if err := client.Send(frame); err != nil {
			e.logger.Warn("frame send failed", "direction", direction, "error", err)
			return
		}
	}
}

func mustEncode(frames [][]byte, err error) [][]byte {
	if err != nil {
		// Encoding canonical string topics cannot fail with either
		// codec; treat it as a programming error.
		panic(err)
	}
	return frames
}
