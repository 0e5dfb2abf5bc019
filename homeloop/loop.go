package homeloop

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("homeloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("homeloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("homeloop: cannot call Run() from within the loop")

	// ErrAsyncClosed is returned when an Async handle is used after Close.
	ErrAsyncClosed = errors.New("homeloop: async handle is closed")

	// ErrNilFunc is returned when a nil function is registered or submitted.
	ErrNilFunc = errors.New("homeloop: nil function")
)

// waker is the platform wake-up primitive. signal may be called from any
// goroutine, wait only from the loop goroutine.
type waker interface {
	signal() error
	wait() error
	close() error
}

// Loop is a single-goroutine cooperative event loop. Work reaches it from
// other goroutines through Submit, or through Async handles registered with
// NewAsync.
//
// Each iteration runs, in order: submitted tasks, the functions of signaled
// Async handles, then the close callbacks of closed Async handles. When there
// is nothing left to do, the loop blocks on its wake-up primitive.
type Loop struct { // betteralign:ignore
	// Prevent copying
	_ [0]func()

	logger *logiface.Logger[logiface.Event]

	state *fastState

	// Wake-up mechanism
	wake        waker
	wakeMu      sync.RWMutex // guards wake against close
	wakeClosed  bool
	wakePending atomic.Uint32

	mu        sync.Mutex
	tasks     []func()
	taskBuf   []func()
	handles   []*Async
	closing   []*Async
	handleBuf []*Async // loop goroutine only
	closeBuf  []*Async // loop goroutine only

	// Goroutine tracking
	loopGoroutineID atomic.Uint64

	// Loop termination signaling
	loopDone     chan struct{}
	loopDoneOnce sync.Once

	lockOSThread bool
}

// New creates a new Loop, in StateAwake.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	wake, err := newWaker()
	if err != nil {
		return nil, err
	}

	return &Loop{
		logger:       cfg.logger,
		state:        newFastState(),
		wake:         wake,
		loopDone:     make(chan struct{}),
		lockOSThread: cfg.lockOSThread,
	}, nil
}

// Run runs the event loop on the calling goroutine, blocking until it
// terminates, via Shutdown, Close, or ctx cancellation. The calling goroutine
// becomes the loop's home goroutine.
//
// Returns ctx.Err() if the loop stopped because ctx was canceled.
func (l *Loop) Run(ctx context.Context) error {
	if l.IsLoopGoroutine() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		switch l.state.Load() {
		case StateTerminating, StateTerminated:
			return ErrLoopTerminated
		default:
			return ErrLoopAlreadyRunning
		}
	}

	defer l.markDone()

	return l.run(ctx)
}

// Shutdown requests termination, then waits for the loop to finish draining
// already submitted work, or for ctx to be done.
func (l *Loop) Shutdown(ctx context.Context) error {
	if err := l.requestTermination(); err != nil {
		return err
	}
	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close requests termination without waiting for it to complete.
func (l *Loop) Close() error {
	return l.requestTermination()
}

// Done returns a channel that is closed once the loop has terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.loopDone
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// Submit schedules fn to run on the loop goroutine. It is safe to call from
// any goroutine, including the loop goroutine, and while the loop is draining
// during shutdown.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return ErrNilFunc
	}

	l.mu.Lock()
	if l.state.Load() == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	// the task is queued, wake-up failures only happen during termination
	_ = l.wakeup()

	return nil
}

// NewAsync registers an Async handle which, when signaled via Async.Send,
// causes fn to be called on the loop goroutine.
func (l *Loop) NewAsync(fn func()) (*Async, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}

	a := &Async{loop: l, fn: fn}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Load() == StateTerminated {
		return nil, ErrLoopTerminated
	}
	l.handles = append(l.handles, a)

	return a, nil
}

// IsLoopGoroutine reports whether the caller is running on the loop goroutine.
func (l *Loop) IsLoopGoroutine() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

func (l *Loop) requestTermination() error {
	for {
		current := l.state.Load()
		switch current {
		case StateTerminated:
			return ErrLoopTerminated
		case StateTerminating:
			return nil
		}

		if !l.state.TryTransition(current, StateTerminating) {
			continue
		}

		if current == StateAwake {
			// never ran, the caller stands in for the loop goroutine
			l.shutdown()
			l.markDone()
			return nil
		}

		_ = l.wakeup()
		return nil
	}
}

func (l *Loop) run(ctx context.Context) error {
	if l.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	l.logger.Debug().Log(`homeloop: running`)

	// wake the loop on cancellation
	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if l.state.TryTransition(StateRunning, StateTerminating) {
				_ = l.wakeup()
			}
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	for {
		if l.state.Load() != StateRunning {
			l.shutdown()
			l.logger.Debug().Log(`homeloop: terminated`)
			return ctx.Err()
		}

		if l.tick() {
			continue
		}

		if err := l.wait(); err != nil {
			l.logger.Crit().Err(err).Log(`homeloop: wait failed, terminating loop`)
			l.state.TryTransition(StateRunning, StateTerminating)
		}
	}
}

// tick is a single iteration, and reports whether any work was found.
func (l *Loop) tick() bool {
	ran := l.runTasks()
	if l.runHandles() {
		ran = true
	}
	if l.runClosing() {
		ran = true
	}
	return ran
}

// wait blocks until the loop is woken, unless work arrived since the last
// tick.
func (l *Loop) wait() error {
	if l.hasWork() {
		return nil
	}
	err := l.wake.wait()
	// cleared after consuming the wake-up, so work is visible to the next tick
	l.wakePending.Store(0)
	return err
}

func (l *Loop) hasWork() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) != 0 || len(l.closing) != 0 || l.anyPendingLocked()
}

// shutdown drains all remaining work, then marks the loop terminated.
func (l *Loop) shutdown() {
	for {
		l.tick()

		l.mu.Lock()
		if len(l.tasks) == 0 && len(l.closing) == 0 && !l.anyPendingLocked() {
			l.state.Store(StateTerminated)
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()
	}

	l.wakeMu.Lock()
	l.wakeClosed = true
	if err := l.wake.close(); err != nil {
		l.logger.Warning().Err(err).Log(`homeloop: failed to close wake-up primitive`)
	}
	l.wakeMu.Unlock()
}

// CALLER MUST HOLD l.mu.
func (l *Loop) anyPendingLocked() bool {
	for _, h := range l.handles {
		if h.pending.Load() != 0 && h.state.Load() == asyncActive {
			return true
		}
	}
	return false
}

func (l *Loop) markDone() {
	l.loopDoneOnce.Do(func() { close(l.loopDone) })
}

// runTasks drains the task queue, swapping buffers to avoid allocation.
func (l *Loop) runTasks() bool {
	l.mu.Lock()
	if len(l.tasks) == 0 {
		l.mu.Unlock()
		return false
	}
	tasks := l.tasks
	l.tasks = l.taskBuf[:0]
	l.taskBuf = nil
	l.mu.Unlock()

	for i, fn := range tasks {
		l.safeExecute(`task`, fn)
		tasks[i] = nil
	}

	l.mu.Lock()
	if l.taskBuf == nil {
		l.taskBuf = tasks[:0]
	}
	l.mu.Unlock()

	return true
}

// runHandles calls the function of every signaled handle, once each.
func (l *Loop) runHandles() bool {
	l.mu.Lock()
	handles := append(l.handleBuf[:0], l.handles...)
	l.mu.Unlock()

	var ran bool
	for i, h := range handles {
		handles[i] = nil
		if h.state.Load() != asyncActive {
			continue
		}
		// cleared before the call, so a Send during fn triggers another call
		if h.pending.Swap(0) == 0 {
			continue
		}
		h.calls.Add(1)
		l.safeExecute(`async`, h.fn)
		ran = true
	}
	l.handleBuf = handles[:0]

	return ran
}

// runClosing unregisters closed handles, then runs their close callbacks.
func (l *Loop) runClosing() bool {
	l.mu.Lock()
	if len(l.closing) == 0 {
		l.mu.Unlock()
		return false
	}
	closing := append(l.closeBuf[:0], l.closing...)
	clear(l.closing)
	l.closing = l.closing[:0]
	for _, a := range closing {
		l.removeHandleLocked(a)
	}
	l.mu.Unlock()

	for i, a := range closing {
		closing[i] = nil
		a.state.Store(asyncClosed)
		if cb := a.onClosed; cb != nil {
			a.onClosed = nil
			l.safeExecute(`close`, cb)
		}
	}
	l.closeBuf = closing[:0]

	return true
}

// CALLER MUST HOLD l.mu.
func (l *Loop) removeHandleLocked(a *Async) {
	for i, h := range l.handles {
		if h == a {
			last := len(l.handles) - 1
			copy(l.handles[i:], l.handles[i+1:])
			l.handles[last] = nil
			l.handles = l.handles[:last]
			return
		}
	}
}

// wakeup signals the wake-up primitive, unless a signal is already pending.
func (l *Loop) wakeup() error {
	if l.state.Load() == StateTerminated {
		return ErrLoopTerminated
	}

	if !l.wakePending.CompareAndSwap(0, 1) {
		return nil
	}

	l.wakeMu.RLock()
	defer l.wakeMu.RUnlock()
	if l.wakeClosed {
		return ErrLoopTerminated
	}

	if err := l.wake.signal(); err != nil {
		l.wakePending.Store(0)
		return err
	}

	return nil
}

// safeExecute runs fn with panic recovery.
func (l *Loop) safeExecute(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			builder := l.logger.Err().Str(`kind`, kind)
			if err, ok := r.(error); ok {
				builder = builder.Err(err)
			} else {
				builder = builder.Any(`panic`, r)
			}
			builder.Limit().Log(`homeloop: recovered panic`)
		}
	}()
	fn()
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
