package proctor

import (
	"sync"
	"time"
)

// Registered cancelable names. Question-scoped activities share the
// "question." prefix so a question transition can tear them down in one
// pass; session-scoped loops are released only by the full cleanup.
const (
	taskIntro         = "intro.delay"
	taskPrep          = "question.prep"
	taskAutoStop      = "question.autostop"
	taskCountdown     = "question.countdown"
	taskMeter         = "audio.meter"
	taskGazeFeed      = "gaze.feed"
	taskGazeViolation = "gaze.violation"

	questionTaskPrefix = "question."
)

// Registry holds every scheduled activity (one-shot timers, tickers, frame
// loops) as a named cancelable, so teardown is a single loop instead of an
// enumerated list of clears. Cancel of an absent or already-cancelled entry
// is a no-op.
type Registry struct {
	mu      sync.Mutex
	entries map[string]func()
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]func())}
}

// Register installs a cancelable under name, cancelling any previous entry
// with the same name first.
func (r *Registry) Register(name string, cancel func()) {
	r.mu.Lock()
	prev := r.entries[name]
	r.entries[name] = cancel
	r.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Cancel removes and cancels one entry. No-op when absent.
func (r *Registry) Cancel(name string) {
	r.mu.Lock()
	cancel := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// CancelPrefix cancels every entry whose name starts with prefix.
func (r *Registry) CancelPrefix(prefix string) {
	r.mu.Lock()
	var cancels []func()
	for name, cancel := range r.entries {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			cancels = append(cancels, cancel)
			delete(r.entries, name)
		}
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// CancelAll cancels everything. Idempotent; order-independent.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	cancels := make([]func(), 0, len(r.entries))
	for name, cancel := range r.entries {
		cancels = append(cancels, cancel)
		delete(r.entries, name)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Len reports the number of live cancelables (used by tests).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// afterFunc wraps time.AfterFunc as a registry cancelable.
func (r *Registry) afterFunc(name string, d time.Duration, fn func()) {
	t := time.AfterFunc(d, fn)
	r.Register(name, func() { t.Stop() })
}

// tickerLoop runs fn at the given interval until cancelled. fn runs on its
// own goroutine; cancellation is idempotent.
func (r *Registry) tickerLoop(name string, interval time.Duration, fn func()) {
	done := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	r.Register(name, cancel)
}
