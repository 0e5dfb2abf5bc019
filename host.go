package loopbridge

import (
	"github.com/joeycumines/go-loopbridge/homeloop"
)

type (
	// Loop is the home loop, as seen by a Bridge.
	Loop interface {
		// NewSignal registers a Signal which, once sent, causes pump to be
		// called on the home goroutine at least once, after the send.
		NewSignal(pump func()) (Signal, error)
	}

	// Signal is a coalescing, cross-goroutine wake-up, bound to a Loop.
	Signal interface {
		// Send may be called from any goroutine.
		Send() error
		// Close unregisters the signal. On success, onClosed must be called
		// on the home goroutine, after which the pump is never called again.
		Close(onClosed func()) error
	}

	homeLoop struct {
		loop *homeloop.Loop
	}
)

var _ Signal = (*homeloop.Async)(nil)

// OnHomeLoop adapts a homeloop.Loop, such that the goroutine that runs it
// becomes the home goroutine of any Bridge created with it.
func OnHomeLoop(loop *homeloop.Loop) Loop {
	return homeLoop{loop: loop}
}

func (x homeLoop) NewSignal(pump func()) (Signal, error) {
	if x.loop == nil {
		return nil, ErrNilLoop
	}
	async, err := x.loop.NewAsync(pump)
	if err != nil {
		return nil, err
	}
	return async, nil
}
