package gtidring

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Vyukov sequence-numbered slots, see
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue

type stagedCell[T any] struct {
	seq atomic.Uint64 // equals the position the cell is ready for
	val T
}

// Staging is a bounded lock-free multi-producer single-consumer queue.
//
// Hardware source goroutines enqueue into it without contending on the
// buffer lock; the single writer that owns GTID assignment drains it.
type Staging[T any] struct {
	_     cpu.CacheLinePad
	mask  uint64
	size  uint64
	cells []stagedCell[T]
	_     cpu.CacheLinePad
	tail  atomic.Uint64 // producers
	_     cpu.CacheLinePad
	head  atomic.Uint64 // written by the consumer only
	_     cpu.CacheLinePad
}

// NewStaging creates a queue of capacity cells. Capacity must be a power of
// two.
func NewStaging[T any](capacity uint64) (*Staging[T], error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, Error.New("staging capacity must be a power of two, got %d", capacity)
	}

	cells := make([]stagedCell[T], capacity)
	for i := range cells {
		cells[i].seq.Store(uint64(i))
	}
	return &Staging[T]{
		mask:  capacity - 1,
		size:  capacity,
		cells: cells,
	}, nil
}

// Enqueue adds v at the tail and returns false when the queue is full.
// Safe for concurrent producers.
func (q *Staging[T]) Enqueue(v T) bool {
	for {
		pos := q.tail.Load()
		c := &q.cells[pos&q.mask]
		diff := int64(c.seq.Load()) - int64(pos)

		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				c.val = v
				c.seq.Store(pos + 1)
				return true
			}
		case diff < 0:
			// the consumer has not freed this cell yet
			return false
		}
		// another producer took pos, reload
	}
}

// Dequeue removes the head value. ok is false when nothing is ready,
// including a producer that reserved the head cell but has not published it.
// Must only be called from one goroutine.
func (q *Staging[T]) Dequeue() (v T, ok bool) {
	pos := q.head.Load()
	c := &q.cells[pos&q.mask]
	if int64(c.seq.Load())-int64(pos+1) != 0 {
		return v, false
	}

	q.head.Store(pos + 1)
	v = c.val
	var zero T
	c.val = zero
	c.seq.Store(pos + q.size)
	return v, true
}

// Len returns the approximate number of queued values.
func (q *Staging[T]) Len() int {
	n := int64(q.tail.Load()) - int64(q.head.Load())
	if n < 0 {
		return 0
	}
	return int(n)
}

// Capacity returns the number of cells.
func (q *Staging[T]) Capacity() uint64 { return q.size }
