package homeloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsync_SendsBeforeRunCoalesce(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	var calls atomic.Int32
	a, err := l.NewAsync(func() { calls.Add(1) })
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Send())
	}
	assert.Equal(t, uint64(10), a.Sends())

	startLoop(t, l)

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	barrier(t, l)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), a.Calls())
}

func TestAsync_SendDuringCallTriggersAnotherCall(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	var (
		a     *Async
		calls atomic.Int32
	)
	a, err = l.NewAsync(func() {
		if calls.Add(1) == 1 {
			assert.NoError(t, a.Send())
		}
	})
	require.NoError(t, err)

	startLoop(t, l)
	require.NoError(t, a.Send())

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 5*time.Second, time.Millisecond)
	barrier(t, l)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAsync_EverySendIsFollowedByACall(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	const (
		producers = 4
		perProd   = 5000
	)

	var (
		produced atomic.Int64
		observed atomic.Int64
	)
	a, err := l.NewAsync(func() { observed.Store(produced.Load()) })
	require.NoError(t, err)

	startLoop(t, l)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				produced.Add(1)
				if err := a.Send(); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return observed.Load() == producers*perProd
	}, 5*time.Second, time.Millisecond)

	assert.LessOrEqual(t, a.Calls(), a.Sends())
}

func TestAsync_Close(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	startLoop(t, l)

	var calls atomic.Int32
	a, err := l.NewAsync(func() { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, a.Send())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 5*time.Second, time.Millisecond)

	onLoop := make(chan bool, 1)
	require.NoError(t, a.Close(func() { onLoop <- l.IsLoopGoroutine() }))
	assert.True(t, a.Closed())

	assert.ErrorIs(t, a.Send(), ErrAsyncClosed)
	assert.ErrorIs(t, a.Close(nil), ErrAsyncClosed)

	select {
	case v := <-onLoop:
		assert.True(t, v)
	case <-time.After(5 * time.Second):
		t.Fatal("close callback did not run")
	}

	barrier(t, l)
	assert.Equal(t, int32(1), calls.Load())

	l.mu.Lock()
	assert.Empty(t, l.handles)
	l.mu.Unlock()
}

func TestAsync_CloseWaitsForInProgressCall(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	startLoop(t, l)

	var (
		a        *Async
		inCall   = make(chan struct{})
		release  = make(chan struct{})
		sequence []string // loop goroutine only
	)
	a, err = l.NewAsync(func() {
		sequence = append(sequence, `call`)
		close(inCall)
		<-release
	})
	require.NoError(t, err)

	require.NoError(t, a.Send())
	<-inCall

	closed := make(chan []string, 1)
	require.NoError(t, a.Close(func() {
		sequence = append(sequence, `closed`)
		closed <- append([]string(nil), sequence...)
	}))
	close(release)

	select {
	case v := <-closed:
		assert.Equal(t, []string{`call`, `closed`}, v)
	case <-time.After(5 * time.Second):
		t.Fatal("close callback did not run")
	}
}

func TestAsync_PendingSendIsDroppedOnClose(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	var calls atomic.Int32
	a, err := l.NewAsync(func() { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, a.Send())
	closed := make(chan struct{})
	require.NoError(t, a.Close(func() { close(closed) }))

	startLoop(t, l)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close callback did not run")
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestAsync_AfterTermination(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	a, err := l.NewAsync(func() {})
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- l.Run(context.Background()) }()
	require.Eventually(t, func() bool { return l.State() == StateRunning }, time.Second, time.Millisecond)
	require.NoError(t, l.Shutdown(context.Background()))
	require.NoError(t, <-runDone)

	assert.ErrorIs(t, a.Send(), ErrLoopTerminated)
	assert.ErrorIs(t, a.Close(func() { t.Error("unexpected close callback") }), ErrLoopTerminated)
	assert.True(t, a.Closed())
	assert.ErrorIs(t, a.Close(nil), ErrAsyncClosed)

	_, err = l.NewAsync(nil)
	assert.ErrorIs(t, err, ErrNilFunc)
}
