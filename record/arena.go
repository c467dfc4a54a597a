package record

import (
	"sync/atomic"
	"unsafe"
)

// Arena is a fixed pool of preallocated detector events.
//
// Events are large, so producers take one from the arena, fill it and hand it
// to the buffer; whoever finally consumes the event releases its slot. All
// methods are safe for concurrent use and never block.
type Arena struct {
	free   *freeList
	events []DetectorEvent
	inUse  []atomic.Bool
}

// NewArena preallocates capacity events. Capacity must be a power of two.
func NewArena(capacity int) (*Arena, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, Error.New("arena capacity must be a power of two, got %d", capacity)
	}

	a := &Arena{
		free:   newFreeList(uint64(capacity)),
		events: make([]DetectorEvent, capacity),
		inUse:  make([]atomic.Bool, capacity),
	}
	for i := 0; i < capacity; i++ {
		if !a.free.put(i) {
			panic("unreached")
		}
	}
	return a, nil
}

// Acquire takes a zeroed event and its slot. ok is false when every event is
// in use; the caller decides whether to drop or retry.
func (a *Arena) Acquire() (ev *DetectorEvent, slot int, ok bool) {
	slot, ok = a.free.take()
	if !ok {
		return nil, 0, false
	}
	if !a.inUse[slot].CompareAndSwap(false, true) {
		panic("record: arena slot handed out while in use")
	}
	return &a.events[slot], slot, true
}

// Get returns the event stored at slot.
func (a *Arena) Get(slot int) *DetectorEvent {
	return &a.events[slot]
}

// Slot returns the arena slot of ev, or false if ev is not arena-owned.
func (a *Arena) Slot(ev *DetectorEvent) (int, bool) {
	if ev == nil || len(a.events) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&a.events[0]))
	p := uintptr(unsafe.Pointer(ev))
	size := unsafe.Sizeof(DetectorEvent{})
	if p < base || p >= base+size*uintptr(len(a.events)) || (p-base)%size != 0 {
		return 0, false
	}
	return int((p - base) / size), true
}

// Release resets the event at slot and makes it available again.
// Release must be called once per Acquire; releasing a slot that is not
// checked out panics.
func (a *Arena) Release(slot int) {
	if !a.inUse[slot].CompareAndSwap(true, false) {
		panic("record: arena slot released twice")
	}
	a.events[slot].Reset()
	if !a.free.put(slot) {
		panic("record: arena free list overflow")
	}
}

// Available returns the number of free events.
func (a *Arena) Available() int { return a.free.len() }

// Capacity returns the number of events in the pool.
func (a *Arena) Capacity() int { return len(a.events) }
