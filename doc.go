// Package loopbridge hands work from any number of producer goroutines to a
// single "home" goroutine, which runs a cooperative event loop.
//
// # Architecture
//
// A [Bridge] owns a pending queue, a pool of callback slots, and exactly one
// [Signal] registered on the home [Loop]. [Bridge.Enqueue] stores the
// callback in a pooled slot, appends it to the queue, then sends the signal.
// Sends coalesce, so a burst of enqueues costs a single wake-up of the home
// goroutine.
//
// When the signal fires, the bridge swaps the entire queue out, under its
// lock, then runs each callback in order, with the lock released. Producers
// never wait on callbacks. A callback that enqueues more work is served by a
// later drain.
//
// # Ordering
//
//   - callbacks enqueued by one goroutine run in that order
//   - every callback runs exactly once, on the home goroutine
//   - the queue is drained at least once after every Enqueue returns
//
// # Lifecycle
//
// Teardown is two-phase. [Bridge.Release] moves the bridge from
// [StateActive] to [StateClosing], and asks the home loop to unregister the
// signal. The home loop later confirms, on the home goroutine, at which
// point the bridge becomes [StateClosed] and [Bridge.Done] is closed.
//
// By default, releasing with callbacks still pending is misuse. See
// [WithReleasePolicy] to drain them instead.
//
// # Usage
//
// The bundled [homeloop] package provides a home loop, via [OnHomeLoop]:
//
//	loop, err := homeloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go loop.Run(ctx)
//
//	bridge, err := loopbridge.New(loopbridge.OnHomeLoop(loop))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// from any goroutine
//	bridge.Submit(func() {
//	    fmt.Println("on the home goroutine")
//	})
package loopbridge
