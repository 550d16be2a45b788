package handshake

import (
	"context"
	"sync"
	"sync/atomic"
)

// Cause records which trigger ended a run.
type Cause int32

const (
	CauseNone Cause = iota
	CauseComplete
	CauseInterrupt
	CauseTimeout
	CauseFailure
)

func (c Cause) String() string {
	switch c {
	case CauseComplete:
		return "complete"
	case CauseInterrupt:
		return "interrupt"
	case CauseTimeout:
		return "timeout"
	case CauseFailure:
		return "failure"
	default:
		return "none"
	}
}

// Shutdown is a one-shot broadcast observed by every task of a run. The first
// Fire wins and records its cause; later calls are no-ops.
type Shutdown struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	cause  atomic.Int32
}

func NewShutdown() *Shutdown {
	ctx, cancel := context.WithCancel(context.Background())
	return &Shutdown{ctx: ctx, cancel: cancel}
}

// Fire broadcasts the signal. It reports whether this call was the one that fired.
func (s *Shutdown) Fire(cause Cause) bool {
	if cause == CauseNone {
		return false
	}
	fired := false
	s.once.Do(func() {
		s.cause.Store(int32(cause))
		s.cancel()
		fired = true
	})
	return fired
}

func (s *Shutdown) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context is cancelled when the signal fires.
func (s *Shutdown) Context() context.Context {
	return s.ctx
}

func (s *Shutdown) Fired() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Shutdown) Cause() Cause {
	return Cause(s.cause.Load())
}
