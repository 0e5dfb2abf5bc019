package homeloop

import (
	"sync/atomic"
)

// LoopState represents the current state of a Loop.
//
// State Machine:
//
//	StateAwake → StateRunning            [Run()]
//	StateAwake → StateTerminating        [Shutdown() / Close() before Run()]
//	StateRunning → StateTerminating      [Shutdown() / Close() / ctx canceled]
//	StateTerminating → StateTerminated   [drain complete]
//	StateTerminated → (terminal)
//
// Use TryTransition (CAS) for every transition other than the final Store of
// StateTerminated, which is irreversible.
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop goroutine is processing or waiting.
	StateRunning
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has fully stopped.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state cell with cache-line padding.
type fastState struct { // betteralign:ignore
	_ [64]byte      //nolint:unused
	v atomic.Uint64 // LoopState
	_ [56]byte      //nolint:unused
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *fastState) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *fastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

func (s *fastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}
