// Package homeloop provides a minimal cooperative event loop, run by a single
// "home" goroutine, which other goroutines wake through coalescing async
// handles.
//
// # Architecture
//
// A [Loop] is driven by [Loop.Run], on the goroutine that will own it. Work
// reaches the loop in two ways:
//   - [Loop.Submit] queues a one-off task
//   - [Loop.NewAsync] registers an [Async] handle, whose function is called
//     on the loop goroutine after [Async.Send]
//
// Closing a handle ([Async.Close]) is asynchronous: the close callback runs on
// the loop goroutine, once the handle is fully unregistered.
//
// # Wake-up
//
// On Linux, the loop blocks on an eventfd. Elsewhere, it blocks on a
// single-slot channel. Redundant wake-ups are suppressed, and multiple sends
// to one handle collapse into a single call.
//
// # Usage
//
//	loop, err := homeloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var async *homeloop.Async
//	async, err = loop.NewAsync(func() {
//	    fmt.Println("signaled")
//	    _ = async.Close(func() { _ = loop.Close() })
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go async.Send()
//
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package homeloop
