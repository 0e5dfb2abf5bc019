package loopbridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/go-loopbridge/homeloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runHomeLoop starts a homeloop.Loop in the background, stopping it when the
// test ends.
func runHomeLoop(t *testing.T) *homeloop.Loop {
	t.Helper()
	loop, err := homeloop.New()
	require.NoError(t, err)
	go func() { _ = loop.Run(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = loop.Shutdown(ctx)
	})
	require.Eventually(t, func() bool { return loop.State() == homeloop.StateRunning }, time.Second, time.Millisecond)
	return loop
}

// onLoop runs fn on the loop goroutine, waiting for it to complete.
func onLoop(t *testing.T, loop *homeloop.Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	require.NoError(t, loop.Submit(func() {
		defer close(done)
		fn()
	}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the loop")
	}
}

func waitDrained(t *testing.T, b *Bridge) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := b.Stats()
		return s.Pending == 0 && s.Executed == s.Enqueued
	}, 5*time.Second, time.Millisecond)
}

func TestBridge_homeLoop_counter(t *testing.T) {
	loop := runHomeLoop(t)
	b, err := New(OnHomeLoop(loop))
	require.NoError(t, err)

	const (
		producers = 3
		perProd   = 1000
	)

	var (
		counter  int // home goroutine only
		offLoop  atomic.Int32
		wg       sync.WaitGroup
		increase = func(any) {
			if !loop.IsLoopGoroutine() {
				offLoop.Add(1)
			}
			counter++
		}
	)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				b.Enqueue(increase, nil)
			}
		}()
	}
	wg.Wait()
	waitDrained(t, b)

	var got int
	onLoop(t, loop, func() { got = counter })
	assert.Equal(t, producers*perProd, got)
	assert.Equal(t, int32(0), offLoop.Load())

	stats := b.Stats()
	assert.Equal(t, uint64(producers*perProd), stats.Executed)
	assert.LessOrEqual(t, stats.Pumps, stats.Executed)

	require.NoError(t, b.Release())
	<-b.Done()
}

func TestBridge_homeLoop_fifoPerProducer(t *testing.T) {
	loop := runHomeLoop(t)
	b, err := New(OnHomeLoop(loop))
	require.NoError(t, err)

	const (
		producers = 4
		perProd   = 2000
	)

	type item struct{ producer, seq int }
	var got []item // home goroutine only

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				b.Enqueue(func(userData any) { got = append(got, userData.(item)) }, item{p, i})
			}
		}(p)
	}
	wg.Wait()
	waitDrained(t, b)

	var snapshot []item
	onLoop(t, loop, func() { snapshot = append(snapshot, got...) })
	require.Len(t, snapshot, producers*perProd)

	next := make([]int, producers)
	for _, v := range snapshot {
		require.Equal(t, next[v.producer], v.seq, "producer %d out of order", v.producer)
		next[v.producer]++
	}

	require.NoError(t, b.Release())
	<-b.Done()
}

func TestBridge_homeLoop_everyEnqueueIsFollowedByAPump(t *testing.T) {
	loop := runHomeLoop(t)
	b, err := New(OnHomeLoop(loop))
	require.NoError(t, err)

	var ran atomic.Int64
	for i := 0; i < 500; i++ {
		b.Enqueue(func(any) { ran.Add(1) }, nil)
		if i%7 == 0 {
			// idle gaps between bursts
			require.Eventually(t, func() bool { return ran.Load() == int64(i+1) }, 5*time.Second, time.Millisecond)
		}
	}
	require.Eventually(t, func() bool { return ran.Load() == 500 }, 5*time.Second, time.Millisecond)

	require.NoError(t, b.Release())
	<-b.Done()
}

func TestBridge_homeLoop_teardownOrdering(t *testing.T) {
	loop := runHomeLoop(t)

	var (
		closed       bool // home goroutine only
		lateCallback atomic.Bool
		closedOnLoop atomic.Bool
	)
	b, err := New(OnHomeLoop(loop), WithOnClosed(func() {
		closed = true
		closedOnLoop.Store(loop.IsLoopGoroutine())
	}))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		b.Enqueue(func(any) {
			if closed {
				lateCallback.Store(true)
			}
		}, nil)
	}
	waitDrained(t, b)

	require.NoError(t, b.Release())
	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not close")
	}

	assert.Equal(t, StateClosed, b.State())
	assert.True(t, closedOnLoop.Load())
	assert.False(t, lateCallback.Load())
}

func TestBridge_homeLoop_releaseDrain(t *testing.T) {
	loop := runHomeLoop(t)

	var got []int // home goroutine only
	b, err := New(OnHomeLoop(loop), WithReleasePolicy(ReleaseDrain))
	require.NoError(t, err)

	// keep the loop busy, so the records are still pending at release
	block := make(chan struct{})
	require.NoError(t, loop.Submit(func() { <-block }))

	for i := 0; i < 10; i++ {
		b.Enqueue(func(userData any) { got = append(got, userData.(int)) }, i)
	}
	require.NoError(t, b.Release())
	close(block)

	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not close")
	}

	var snapshot []int
	onLoop(t, loop, func() { snapshot = append(snapshot, got...) })
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, snapshot)
}

func TestBridge_homeLoop_releaseAfterTermination(t *testing.T) {
	loop, err := homeloop.New()
	require.NoError(t, err)

	b, err := New(OnHomeLoop(loop))
	require.NoError(t, err)

	require.NoError(t, loop.Shutdown(context.Background()))

	err = b.Release()
	assert.ErrorIs(t, err, homeloop.ErrLoopTerminated)
	assert.Equal(t, StateClosed, b.State())
	<-b.Done()

	_, err = New(OnHomeLoop(loop))
	assert.ErrorIs(t, err, homeloop.ErrLoopTerminated)
}
