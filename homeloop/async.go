package homeloop

import (
	"sync/atomic"
)

const (
	asyncActive uint32 = iota
	asyncClosing
	asyncClosed
)

// Async is a cross-goroutine notification handle, bound to a Loop.
//
// Sends are coalesced: any number of Send calls before the loop services the
// handle result in a single call of its function. The pending flag is cleared
// immediately before each call, so a Send that happens after a call has begun
// always results in another call.
type Async struct {
	loop     *Loop
	fn       func()
	onClosed func() // guarded by loop.mu until handed to the loop goroutine
	pending  atomic.Uint32
	state    atomic.Uint32
	sends    atomic.Uint64
	calls    atomic.Uint64
}

// Send signals the handle. Safe to call from any goroutine.
//
// Returns ErrAsyncClosed once Close has been called, and ErrLoopTerminated if
// the loop has stopped.
func (a *Async) Send() error {
	if a.state.Load() != asyncActive {
		return ErrAsyncClosed
	}
	a.sends.Add(1)
	if a.pending.Swap(1) != 0 {
		// not yet serviced, the loop has already been woken
		return nil
	}
	return a.loop.wakeup()
}

// Close stops the handle. Its function will not be called again, and, if
// non-nil, onClosed will be called on the loop goroutine, after any call of
// the handle's function that is already in progress.
//
// If the loop has terminated, the handle is closed, but onClosed is not
// called, and ErrLoopTerminated is returned.
func (a *Async) Close(onClosed func()) error {
	l := a.loop

	l.mu.Lock()
	if !a.state.CompareAndSwap(asyncActive, asyncClosing) {
		l.mu.Unlock()
		return ErrAsyncClosed
	}
	if l.state.Load() == StateTerminated {
		a.state.Store(asyncClosed)
		l.removeHandleLocked(a)
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	a.onClosed = onClosed
	l.closing = append(l.closing, a)
	l.mu.Unlock()

	_ = l.wakeup()

	return nil
}

// Closed reports whether the handle has been closed, or is closing.
func (a *Async) Closed() bool {
	return a.state.Load() != asyncActive
}

// Sends returns the number of accepted Send calls.
func (a *Async) Sends() uint64 {
	return a.sends.Load()
}

// Calls returns the number of times the handle's function has been called.
func (a *Async) Calls() uint64 {
	return a.calls.Load()
}
