package gtidring

import (
	"sync"

	"github.com/aradilov/gtidring/record"
)

// DefaultCapacity is the number of physical slots of a buffer made by Alloc.
const DefaultCapacity = 2000

// Entry is a record together with its type tag.
// Gaps left by out-of-order inserts read as Entry{Type: record.TypeEmpty}.
type Entry struct {
	Type   record.RecordType
	Record record.Record
}

type slot struct {
	rec record.Record
}

// Status is a snapshot of the window state.
type Status struct {
	Start    uint64
	End      uint64
	Offset   uint64
	Size     uint64
	Capacity uint64
	Anchored bool
}

// Buffer is a fixed-capacity ring of records addressed both in FIFO order
// and by GTID.
//
// Of its capacity physical slots at most capacity-1 are occupied at once.
// start and end are logical cursors that never wrap; offset is the GTID of
// logical position 0, fixed by the first Push or Insert after allocation or
// Clear. Every method takes the buffer lock for its whole duration and
// returns without waiting on other goroutines.
type Buffer struct {
	mu sync.Mutex

	slots    []slot
	capacity uint64

	start    uint64
	end      uint64
	offset   uint64
	size     uint64
	anchored bool

	stats Stats
}

// New allocates a buffer with capacity physical slots.
func New(capacity int) (*Buffer, error) {
	if capacity < 2 {
		return nil, Error.New("capacity must be at least 2, got %d", capacity)
	}
	return &Buffer{
		slots:    make([]slot, capacity),
		capacity: uint64(capacity),
	}, nil
}

// Alloc allocates a buffer of DefaultCapacity slots.
func Alloc() *Buffer {
	b, err := New(DefaultCapacity)
	if err != nil {
		panic(err)
	}
	return b
}

// Capacity returns the number of physical slots.
func (b *Buffer) Capacity() int { return int(b.capacity) }

// IsFull reports whether capacity-1 slots are occupied.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.full()
}

// IsEmpty reports whether no slot is occupied.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size == 0
}

func (b *Buffer) full() bool { return b.size == b.capacity-1 }

// Status returns the current window state.
func (b *Buffer) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status()
}

func (b *Buffer) status() Status {
	return Status{
		Start:    b.start,
		End:      b.end,
		Offset:   b.offset,
		Size:     b.size,
		Capacity: b.capacity,
		Anchored: b.anchored,
	}
}

// Clear empties the buffer and drops every stored reference. The next Push
// or Insert anchors the offset again.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.slots)
	b.start, b.end, b.size = 0, 0, 0
	b.offset, b.anchored = 0, false
	b.stats.Clears++
}

// Push appends r at the tail. Pushed records have no id of their own; a
// buffer first used by Push is anchored at offset 0.
func (b *Buffer) Push(r record.Record) error {
	if record.IsNil(r) {
		return ErrNilRecord
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Pushes++
	if b.full() {
		b.stats.PushFull++
		mon.Event("buffer_full")
		return ErrFull
	}
	if !b.anchored {
		b.offset, b.anchored = 0, true
	}

	b.slots[Slot(b.end, b.capacity)].rec = r
	b.end++
	b.size++
	return nil
}

// Pop removes the record at the head. Ownership of the record passes to the
// caller.
func (b *Buffer) Pop() (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Pops++
	if b.size == 0 {
		b.stats.PopEmpty++
		mon.Event("buffer_empty")
		return Entry{}, ErrEmpty
	}

	s := &b.slots[Slot(b.start, b.capacity)]
	r := s.rec
	s.rec = nil
	b.start++
	b.size--
	return Entry{Type: record.TypeOf(r), Record: r}, nil
}

// At returns the record stored for id without removing it.
func (b *Buffer) At(id uint64) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Reads++
	if !b.anchored {
		b.stats.ReadOutOfWindow++
		mon.Event("buffer_out_of_window")
		return Entry{}, ErrOutOfWindow
	}
	logical, err := Translate(b.window(), id, OpRead)
	if err != nil {
		b.stats.ReadOutOfWindow++
		mon.Event("buffer_out_of_window")
		return Entry{}, err
	}

	r := b.slots[Slot(logical, b.capacity)].rec
	return Entry{Type: record.TypeOf(r), Record: r}, nil
}

// Insert stores r for id. An id past the current tail grows the window to
// include it; the skipped positions stay empty. An id inside the window
// replaces what is stored there.
func (b *Buffer) Insert(id uint64, r record.Record) error {
	if record.IsNil(r) {
		return ErrNilRecord
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Inserts++
	w := b.window()
	if !b.anchored {
		w.Offset = id
	}
	logical, err := Translate(w, id, OpWrite)
	switch {
	case err == ErrExpired:
		b.stats.InsertExpired++
		mon.Event("buffer_expired")
		return err
	case err == ErrOutOfCapacity:
		b.stats.InsertOutOfCapacity++
		mon.Event("buffer_out_of_capacity")
		return err
	case err != nil:
		return err
	}

	b.offset, b.anchored = w.Offset, true

	s := &b.slots[Slot(logical, b.capacity)]
	if logical < b.end && s.rec != nil {
		b.stats.Overwrites++
	}
	s.rec = r
	if logical >= b.end {
		b.end = logical + 1
		b.size = b.end - b.start
	}
	return nil
}

// Stats returns the cumulative operation counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Buffer) window() Window {
	return Window{
		Start:    b.start,
		End:      b.end,
		Offset:   b.offset,
		Capacity: b.capacity,
	}
}
