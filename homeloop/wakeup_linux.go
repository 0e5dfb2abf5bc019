//go:build linux

package homeloop

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// eventfdWaker wakes the loop goroutine through an eventfd, which coalesces
// any number of writes into a single readable state.
type eventfdWaker struct {
	fd  int
	buf [8]byte
}

func newWaker() (waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdWaker{fd: fd}, nil
}

func (w *eventfdWaker) signal() error {
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, err := unix.Write(w.fd, buf)
	if errors.Is(err, unix.EAGAIN) {
		// counter saturated, the loop is already readable
		return nil
	}
	return err
}

func (w *eventfdWaker) wait() error {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
	for {
		if _, err := unix.Read(w.fd, w.buf[:]); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				return nil
			}
			return err
		}
		return nil
	}
}

func (w *eventfdWaker) close() error {
	return unix.Close(w.fd)
}
