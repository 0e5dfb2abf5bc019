package loopbridge

import (
	"sync"

	"github.com/eapache/queue"
)

// pendingQueue is the FIFO of records waiting for the pump.
//
// The pump takes the whole backlog at once, by swapping it for an empty
// queue, then hands the drained queue back to be reused by the next swap.
type pendingQueue struct {
	mu    sync.Mutex
	items *queue.Queue // of *record
	spare *queue.Queue
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		items: queue.New(),
		spare: queue.New(),
	}
}

func (x *pendingQueue) push(r *record) {
	x.mu.Lock()
	x.items.Add(r)
	x.mu.Unlock()
}

// take removes every pending record, returning nil if there were none.
func (x *pendingQueue) take() *queue.Queue {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.items.Length() == 0 {
		return nil
	}
	batch := x.items
	if x.spare != nil {
		x.items = x.spare
		x.spare = nil
	} else {
		x.items = queue.New()
	}
	return batch
}

// recycle accepts a fully drained batch, for reuse by take.
func (x *pendingQueue) recycle(batch *queue.Queue) {
	x.mu.Lock()
	if x.spare == nil {
		x.spare = batch
	}
	x.mu.Unlock()
}

func (x *pendingQueue) len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.items.Length()
}

// reset discards every pending record and the spare, returning the discarded
// records.
func (x *pendingQueue) reset() []*record {
	x.mu.Lock()
	defer x.mu.Unlock()
	var dropped []*record
	for x.items.Length() != 0 {
		dropped = append(dropped, x.items.Remove().(*record))
	}
	x.spare = nil
	return dropped
}
