package gtidring

// Op selects the bounds Translate checks an id against.
type Op uint8

const (
	// OpRead accepts ids mapping into [Start, End).
	OpRead Op = iota
	// OpWrite accepts ids mapping into [Start, Start+Capacity-1).
	OpWrite
)

// Window is the part of the buffer state id translation depends on.
type Window struct {
	Start    uint64
	End      uint64
	Offset   uint64
	Capacity uint64
}

// Translate maps an absolute id to a logical cursor position.
//
// For OpRead it fails with ErrOutOfWindow unless the position lies in
// [Start, End). For OpWrite it fails with ErrExpired below Start and with
// ErrOutOfCapacity at or beyond Start+Capacity-1; a position at or past End is
// valid and means the caller has to grow the window to logical+1.
// Ids below Offset are treated as lying below Start.
func Translate(w Window, id uint64, op Op) (logical uint64, err error) {
	below := id < w.Offset
	if !below {
		logical = id - w.Offset
		below = logical < w.Start
	}

	switch op {
	case OpRead:
		if below || logical >= w.End {
			return 0, ErrOutOfWindow
		}
	case OpWrite:
		if below {
			return 0, ErrExpired
		}
		if logical-w.Start >= w.Capacity-1 {
			return 0, ErrOutOfCapacity
		}
	default:
		return 0, Error.New("unknown op %d", op)
	}
	return logical, nil
}

// Slot maps a logical cursor position to a physical slot index.
func Slot(logical, capacity uint64) uint64 {
	return logical % capacity
}
