package gtidring

import (
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

// Error is the error class for buffer failures.
var Error = errs.Class("gtidring")

var (
	// ErrFull is returned by Push when capacity-1 slots are occupied.
	ErrFull = Error.New("buffer is full")
	// ErrEmpty is returned by Pop when nothing is buffered.
	ErrEmpty = Error.New("buffer is empty")
	// ErrOutOfWindow is returned by At for ids outside [start, end).
	ErrOutOfWindow = Error.New("id out of window")
	// ErrExpired is returned by Insert for ids that were already drained.
	ErrExpired = Error.New("id expired")
	// ErrOutOfCapacity is returned by Insert for ids too far ahead of start.
	ErrOutOfCapacity = Error.New("id out of capacity")
	// ErrNilRecord is returned when a nil record, or a nil pointer of a
	// record type, is stored.
	ErrNilRecord = Error.New("nil record")
	// ErrStagingFull is returned by Feeder.Submit when the staging queue is full.
	ErrStagingFull = Error.New("staging queue is full")
)
