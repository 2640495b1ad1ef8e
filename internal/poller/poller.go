// Package poller runs a bounded, restartable refresh loop. A Poller calls its
// fetch function once per interval until a tick count or wall clock bound is
// reached, the key goes empty, or it is stopped.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/threadsync/internal/metrics"
)

const (
	// DefaultInterval is the delay between two ticks.
	DefaultInterval = 3 * time.Second

	// DefaultMaxDuration bounds a window when no other bound is set.
	DefaultMaxDuration = 60 * time.Second
)

// ErrInvalidInterval is returned by New for a non-positive interval.
var ErrInvalidInterval = errors.New("poll interval must be positive")

// Config bounds a polling window.
type Config struct {
	// Interval is the delay before the first tick and between ticks.
	Interval time.Duration

	// MaxTicks ends the window after this many fetches.
	MaxTicks fn.Option[int]

	// MaxDuration ends the window once this much time has passed since
	// Start.
	MaxDuration fn.Option[time.Duration]
}

// DefaultConfig returns a 3s interval bounded to 60s.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		MaxTicks:    fn.None[int](),
		MaxDuration: fn.Some(DefaultMaxDuration),
	}
}

// State is the lifecycle state of a Poller.
type State uint8

const (
	// StateIdle means no window is running.
	StateIdle State = iota

	// StatePolling means a window is running and a tick is scheduled or
	// in progress.
	StatePolling
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// FetchFunc is called on every tick. fromPoll is always true for calls made
// by the Poller and lets a shared fetch path tell them apart from user
// initiated loads. The context is canceled when the window is stopped.
type FetchFunc func(ctx context.Context, key string, fromPoll bool) error

// Option customizes a Poller.
type Option func(*Poller)

// WithRecorder reports tick outcomes to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Poller) {
		p.recorder = metrics.OrNoop(r)
	}
}

// WithIdleHook calls fn whenever a window ends on its own, after the state
// has moved to idle. It is not called for Stop or Close.
func WithIdleHook(fn func()) Option {
	return func(p *Poller) {
		p.onIdle = fn
	}
}

// Poller owns at most one loop goroutine. Ticks of one window never
// overlap: the next tick is scheduled only after the fetch returns.
type Poller struct {
	cfg      Config
	fetch    FetchFunc
	recorder metrics.Recorder
	onIdle   func()

	mu     sync.Mutex
	state  State
	key    string
	ticks  int
	run    uint64
	cancel context.CancelFunc
	closed bool

	wg sync.WaitGroup
}

// New builds an idle Poller. When cfg sets neither bound the default
// duration applies, so a window always ends on its own.
func New(cfg Config, fetch FetchFunc, opts ...Option) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if fetch == nil {
		return nil, errors.New("fetch function required")
	}
	if cfg.MaxTicks.IsNone() && cfg.MaxDuration.IsNone() {
		cfg.MaxDuration = fn.Some(DefaultMaxDuration)
	}

	p := &Poller{
		cfg:      cfg,
		fetch:    fetch,
		recorder: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Start begins a new window for key, restarting if one is running. The
// first fetch happens one interval from now, never immediately.
func (p *Poller) Start(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())

	p.run++
	p.state = StatePolling
	p.key = key
	p.ticks = 0
	p.cancel = cancel

	log.DebugS(ctx, "Polling started", "key", key,
		"interval", p.cfg.Interval)

	p.wg.Add(1)
	go p.loop(ctx, p.run, key)
}

// Stop ends the running window. It is safe to call at any time, also from
// inside the fetch function, and does not wait for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
}

// Trigger restarts the window for key. It is Stop followed by Start.
func (p *Poller) Trigger(key string) {
	p.Stop()
	p.Start(key)
}

// Close stops polling and waits for every loop goroutine to exit, including
// ones still returning from a canceled fetch. It must not be called from
// inside the fetch function. Start is a no-op afterwards.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()

	p.wg.Wait()
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// IsPolling reports whether a window is running.
func (p *Poller) IsPolling() bool {
	return p.State() == StatePolling
}

// Key returns the key of the current or last window.
func (p *Poller) Key() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.key
}

// Ticks returns the number of fetches made in the current or last window.
func (p *Poller) Ticks() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ticks
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.state == StatePolling {
		log.DebugS(context.Background(), "Polling stopped", "key", p.key,
			"ticks", p.ticks)
	}
	p.state = StateIdle
}

// finish moves to idle if run is still the current window.
func (p *Poller) finish(run uint64) {
	p.mu.Lock()
	if p.run != run {
		p.mu.Unlock()
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state = StateIdle
	p.mu.Unlock()

	if p.onIdle != nil {
		p.onIdle()
	}
}

// countTick records a fetch for run and reports whether run is current.
func (p *Poller) countTick(run uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != run || p.state != StatePolling {
		return false
	}
	p.ticks++

	return true
}

func (p *Poller) exhausted(started time.Time, ticks int) bool {
	var done bool
	p.cfg.MaxTicks.WhenSome(func(n int) {
		done = done || ticks >= n
	})
	p.cfg.MaxDuration.WhenSome(func(d time.Duration) {
		done = done || time.Since(started) >= d
	})

	return done
}

func (p *Poller) loop(ctx context.Context, run uint64, key string) {
	defer p.wg.Done()

	started := time.Now()
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
		}

		if p.exhausted(started, ticks) {
			log.DebugS(ctx, "Polling window exhausted", "key", key,
				"ticks", ticks, "elapsed", time.Since(started))

			p.recorder.ObserveTick(metrics.TickExhausted)
			p.finish(run)

			return
		}

		if key == "" {
			log.DebugS(ctx, "Polling without key, going idle")

			p.recorder.ObserveTick(metrics.TickNoKey)
			p.finish(run)

			return
		}

		if !p.countTick(run) {
			return
		}
		ticks++

		err := p.fetch(ctx, key, true)
		switch {
		case ctx.Err() != nil:
			return

		case err != nil:
			log.WarnS(ctx, "Poll fetch failed", err, "key", key,
				"tick", ticks)

			p.recorder.ObserveTick(metrics.TickFailed)

		default:
			log.TraceS(ctx, "Poll fetch complete", "key", key,
				"tick", ticks)

			p.recorder.ObserveTick(metrics.TickFetched)
		}

		timer.Reset(p.cfg.Interval)
	}
}
