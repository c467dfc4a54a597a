package record

import (
	"fmt"
	"sync"
)

// DefaultHistoryDepth is how many superseded banks of each type are kept.
const DefaultHistoryDepth = 16

// Ledger tracks which bank of each type is valid for a given GTID.
//
// A bank is valid from its anchor GTID until the anchor of the next bank of
// the same type. The first RunHeader binds the ledger to a run; banks and
// events carrying another run id are reported with ErrRunMismatch.
type Ledger struct {
	mu      sync.Mutex
	depth   int
	run     uint32
	bound   bool
	history [numRecordTypes][]Bank // oldest first
}

// NewLedger returns a ledger keeping depth banks per type.
func NewLedger(depth int) *Ledger {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &Ledger{depth: depth}
}

// Apply makes b the current bank of its type from its anchor onwards.
//
// A RunHeader for a different run starts a new run: all history is dropped
// and the ledger binds to the new run id.
func (l *Ledger) Apply(b Bank) error {
	t := b.Type()
	if !t.IsBank() {
		return Error.New("not a bank: %s", t)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if t == TypeRunHeader && (!l.bound || b.Run() != l.run) {
		for i := range l.history {
			l.history[i] = nil
		}
		l.run, l.bound = b.Run(), true
	}
	if l.bound && b.Run() != l.run {
		return fmt.Errorf("%w: %s run %d, expected %d", ErrRunMismatch, t, b.Run(), l.run)
	}

	h := l.history[t]
	if n := len(h); n > 0 {
		cur := h[n-1]
		switch {
		case b.Anchor() < cur.Anchor():
			return fmt.Errorf("%w: %s anchor %d < %d", ErrStaleBank, t, b.Anchor(), cur.Anchor())
		case b.Anchor() == cur.Anchor():
			h[n-1] = b
			return nil
		}
	}
	if len(h) == l.depth {
		copy(h, h[1:])
		h = h[:len(h)-1]
	}
	l.history[t] = append(h, b)
	return nil
}

// Current returns the bank of type t whose validity interval contains gtid.
func (l *Ledger) Current(t RecordType, gtid uint32) (Bank, bool) {
	if !t.IsBank() {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h := l.history[t]
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Anchor() <= gtid {
			return h[i], true
		}
	}
	return nil, false
}

// CheckEvent reports an event that does not belong to the bound run.
func (l *Ledger) CheckEvent(ev *DetectorEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.bound && ev.RunID != l.run {
		return fmt.Errorf("%w: event run %d, expected %d", ErrRunMismatch, ev.RunID, l.run)
	}
	return nil
}

// Run returns the bound run id.
func (l *Ledger) Run() (uint32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run, l.bound
}

// Reset forgets all banks and the bound run.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.history {
		l.history[i] = nil
	}
	l.run, l.bound = 0, false
}
