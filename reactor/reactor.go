// Package reactor is the single-threaded event demultiplexer spec.md
// section 4.1 describes: it owns dispatch of transport readiness,
// timers, and "manual wake" tokens, serializing all of it onto one
// goroutine so the transaction engine and dialog table never need
// locks (spec.md section 5). The original implementation
// (_examples/original_source, esip.c) wraps libevent's event_base; Go
// has no portable single-thread fd multiplexer outside the stdlib
// netpoller, so this is a channel-fed run loop instead - functionally
// the same contract (register once, callbacks run to completion on the
// loop goroutine, priority preempts only between callbacks).
package reactor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sipcore/sipreactor/logging"
)

// Priority controls which queue a posted callback lands in. IO always
// drains ahead of Engine work within one Run iteration, matching
// spec.md's "higher priority preempts lower only between callbacks".
type Priority int

const (
	PriorityIO Priority = iota
	PriorityEngine
)

// Reactor is a single run-loop goroutine with two FIFO work queues and
// a timer set. Run must be called from the goroutine that will own the
// loop; every other method is safe to call from any goroutine.
type Reactor struct {
	mu      sync.Mutex
	io      []func()
	engine  []func()
	wake    chan struct{}
	exit    chan struct{}
	exited  chan struct{}
	once    sync.Once
	log     zerolog.Logger
	timers  map[*Timer]struct{}
	timerMu sync.Mutex
}

// Timer is a handle returned by Schedule; Cancel stops it if it hasn't
// fired yet.
type Timer struct {
	t *time.Timer
	r *Reactor
}

func (tm *Timer) Cancel() bool {
	if tm == nil || tm.t == nil {
		return false
	}
	stopped := tm.t.Stop()
	tm.r.timerMu.Lock()
	delete(tm.r.timers, tm)
	tm.r.timerMu.Unlock()
	return stopped
}

func New() *Reactor {
	return &Reactor{
		wake:   make(chan struct{}, 1),
		exit:   make(chan struct{}),
		exited: make(chan struct{}),
		log:    logging.Default().With().Str("component", "reactor").Logger(),
		timers: make(map[*Timer]struct{}),
	}
}

func (r *Reactor) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// PostIO schedules fn to run on the reactor goroutine at I/O priority.
// Used by the transport's read goroutine to hand a datagram to the
// single mutator goroutine (spec.md 4.2/5).
func (r *Reactor) PostIO(fn func()) {
	r.mu.Lock()
	r.io = append(r.io, fn)
	r.mu.Unlock()
	r.signal()
}

// PostEngine schedules fn to run on the reactor goroutine at engine
// priority - this is the "wake token" of spec.md section 3/4.4.
func (r *Reactor) PostEngine(fn func()) {
	r.mu.Lock()
	r.engine = append(r.engine, fn)
	r.mu.Unlock()
	r.signal()
}

// Schedule arms a one-shot timer that, on expiry, posts fn at engine
// priority rather than invoking it from the timer's own goroutine -
// every timer fire still only mutates state on the reactor goroutine.
func (r *Reactor) Schedule(d time.Duration, fn func()) *Timer {
	tm := &Timer{r: r}
	tm.t = time.AfterFunc(d, func() {
		r.PostEngine(fn)
	})
	r.timerMu.Lock()
	r.timers[tm] = struct{}{}
	r.timerMu.Unlock()
	return tm
}

func (r *Reactor) popIO() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.io) == 0 {
		return nil, false
	}
	fn := r.io[0]
	r.io = r.io[1:]
	return fn, true
}

func (r *Reactor) popEngine() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.engine) == 0 {
		return nil, false
	}
	fn := r.engine[0]
	r.engine = r.engine[1:]
	return fn, true
}

func (r *Reactor) hasWork() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.io) > 0 || len(r.engine) > 0
}

// Run drives callbacks until RequestExit is called. It must run on a
// single dedicated goroutine - that goroutine becomes "the reactor
// thread" every other component's invariants are stated in terms of.
func (r *Reactor) Run() {
	defer close(r.exited)
	for {
		// Drain all ready I/O work first (spec.md 4.1 priority rule),
		// then at most one engine callback before rechecking I/O.
		for {
			fn, ok := r.popIO()
			if !ok {
				break
			}
			fn()
		}

		if fn, ok := r.popEngine(); ok {
			fn()
			continue
		}

		if r.hasWork() {
			continue
		}

		select {
		case <-r.exit:
			return
		case <-r.wake:
			continue
		}
	}
}

// RunPending executes every callback currently queued (I/O before
// engine, per the usual priority rule) and returns without blocking.
// Production code always drives the reactor through Run on a single
// goroutine; this exists so tests can act as that goroutine without
// spinning up a real background loop - call it after a real timer had a
// chance to fire and post its callback.
func (r *Reactor) RunPending() {
	for {
		for {
			fn, ok := r.popIO()
			if !ok {
				break
			}
			fn()
		}
		fn, ok := r.popEngine()
		if !ok {
			return
		}
		fn()
	}
}

// RequestExit causes a running Run loop to return once the current
// callback (if any) completes.
func (r *Reactor) RequestExit() {
	r.once.Do(func() { close(r.exit) })
}

// Done is closed once Run has returned.
func (r *Reactor) Done() <-chan struct{} {
	return r.exited
}
