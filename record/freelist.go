package record

import (
	"runtime"
	"sync/atomic"
)

// Bounded MPMC queue of slot indices, after Dmitry Vyukov's
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue

type freeCell struct {
	seq  atomic.Uint64 // publication sequence, owns the cell
	slot int
}

type freeList struct {
	_     [64]byte
	mask  uint64
	size  uint64
	cells []freeCell
	_     [64]byte
	tail  atomic.Uint64 // next put position
	_     [64]byte
	head  atomic.Uint64 // next take position
	_     [64]byte
}

const yieldEvery = 64

func newFreeList(size uint64) *freeList {
	cells := make([]freeCell, size)
	for i := range cells {
		cells[i].seq.Store(uint64(i))
	}
	return &freeList{
		mask:  size - 1,
		size:  size,
		cells: cells,
	}
}

// put returns false when the list already holds size entries.
func (f *freeList) put(slot int) bool {
	var spins uint32
	for {
		pos := f.tail.Load()
		c := &f.cells[pos&f.mask]
		diff := int64(c.seq.Load()) - int64(pos)

		switch {
		case diff == 0:
			if f.tail.CompareAndSwap(pos, pos+1) {
				c.slot = slot
				c.seq.Store(pos + 1)
				return true
			}
		case diff < 0:
			return false
		}
		spins++
		if spins%yieldEvery == 0 {
			runtime.Gosched()
		}
	}
}

// take returns false when no slot is free.
func (f *freeList) take() (int, bool) {
	var spins uint32
	for {
		pos := f.head.Load()
		c := &f.cells[pos&f.mask]
		diff := int64(c.seq.Load()) - int64(pos+1)

		switch {
		case diff == 0:
			if f.head.CompareAndSwap(pos, pos+1) {
				slot := c.slot
				// the cell is reused at pos+size
				c.seq.Store(pos + f.size)
				return slot, true
			}
		case diff < 0:
			return 0, false
		}
		spins++
		if spins%yieldEvery == 0 {
			runtime.Gosched()
		}
	}
}

func (f *freeList) len() int {
	return int(f.tail.Load() - f.head.Load())
}
