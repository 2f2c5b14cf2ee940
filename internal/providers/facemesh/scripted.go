package facemesh

import (
	"context"
	"errors"
	"image"
	"sync"
)

// Scripted is an in-process Engine used by the dev CLI and tests. Each
// submitted frame produces the next scripted result, or the output of
// ResultFn when set.
type Scripted struct {
	mu       sync.Mutex
	opts     Options
	onResult func(Result)
	queue    []Result
	resultFn func() Result
	closed   bool
}

func NewScripted() *Scripted {
	return &Scripted{opts: DefaultOptions()}
}

// Enqueue appends scripted results consumed one per submitted frame.
func (s *Scripted) Enqueue(results ...Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, results...)
}

// SetResultFn makes every frame produce fn()'s result, ignoring the queue.
func (s *Scripted) SetResultFn(fn func() Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultFn = fn
}

func (s *Scripted) Configure(opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.MaxNumFaces <= 0 {
		return errors.New("MaxNumFaces must be positive")
	}
	s.opts = opts
	return nil
}

func (s *Scripted) OnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

func (s *Scripted) SubmitFrame(_ context.Context, frame image.Image) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("engine is closed")
	}
	if frame == nil {
		s.mu.Unlock()
		return errors.New("nil frame")
	}

	var res Result
	switch {
	case s.resultFn != nil:
		res = s.resultFn()
	case len(s.queue) > 0:
		res = s.queue[0]
		s.queue = s.queue[1:]
	default:
		res = Result{} // no face
	}
	cb := s.onResult
	s.mu.Unlock()

	if cb != nil {
		cb(res)
	}
	return nil
}

func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
