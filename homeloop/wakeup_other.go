//go:build !linux

package homeloop

// chanWaker is the portable wake-up primitive, a single-slot channel.
type chanWaker struct {
	ch chan struct{}
}

func newWaker() (waker, error) {
	return &chanWaker{ch: make(chan struct{}, 1)}, nil
}

func (w *chanWaker) signal() error {
	select {
	case w.ch <- struct{}{}:
	default:
	}
	return nil
}

func (w *chanWaker) wait() error {
	<-w.ch
	return nil
}

func (w *chanWaker) close() error {
	return nil
}
