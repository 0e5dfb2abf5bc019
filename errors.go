package loopbridge

import (
	"errors"
)

// Standard errors.
//
// ErrBridgeReleased, ErrPendingOnRelease and ErrNilCallback indicate misuse,
// and are raised as (wrapped) panic values, rather than returned.
var (
	// ErrBridgeReleased indicates a Bridge was used after Release was called.
	ErrBridgeReleased = errors.New("loopbridge: bridge has been released")

	// ErrPendingOnRelease indicates Release was called while callbacks were
	// still pending, under ReleaseRequireEmpty.
	ErrPendingOnRelease = errors.New("loopbridge: release with pending callbacks")

	// ErrNilLoop is returned by New when no home loop was provided.
	ErrNilLoop = errors.New("loopbridge: nil loop")

	// ErrNilCallback indicates Enqueue was called with a nil callback.
	ErrNilCallback = errors.New("loopbridge: nil callback")

	// ErrInvalidOption is returned by New when an option has an invalid value.
	ErrInvalidOption = errors.New("loopbridge: invalid option")
)
