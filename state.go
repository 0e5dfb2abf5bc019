package loopbridge

// BridgeState is the lifecycle state of a Bridge.
//
// State Machine:
//
//	StateActive → StateClosing   [Release()]
//	StateClosing → StateClosed   [signal closed, on the home goroutine]
//	StateClosed → (terminal)
type BridgeState uint32

const (
	// StateActive indicates the bridge accepts callbacks.
	StateActive BridgeState = iota
	// StateClosing indicates Release was called, and the bridge is waiting
	// for the home loop to unregister its signal.
	StateClosing
	// StateClosed indicates all resources have been released.
	StateClosed
)

// String returns a human-readable representation of the state.
func (s BridgeState) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
