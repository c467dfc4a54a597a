// Package record defines the payloads held by the GTID ring buffer: detector
// events and the calibration, trigger, run and positioning banks that apply to
// ranges of GTIDs.
package record

import (
	"github.com/zeebo/errs"
)

// Error is the error class for record model failures.
var Error = errs.Class("record")

var (
	// ErrTooManyHits is returned when an event already holds MaxHits bundles.
	ErrTooManyHits = Error.New("hit capacity exceeded")
	// ErrRunMismatch is returned when a bank or event belongs to another run.
	ErrRunMismatch = Error.New("run id mismatch")
	// ErrStaleBank is returned when a bank would supersede a newer one.
	ErrStaleBank = Error.New("bank anchor precedes current bank")
)

// Record is one of the payload shapes a buffer slot may hold.
//
// The set of implementations is closed: *DetectorEvent, *RunHeader,
// *VesselPosition, *SourcePosition, *TriggerBank and *PedestalBank.
type Record interface {
	Type() RecordType
	record()
}

// Bank is a record that applies to [Anchor, next anchor of the same type).
type Bank interface {
	Record
	// Anchor is the first GTID this bank is valid for.
	Anchor() uint32
	// Run is the run the bank was taken in.
	Run() uint32
}

// TypeOf returns the discriminant of r, TypeEmpty for nil.
func TypeOf(r Record) RecordType {
	if r == nil {
		return TypeEmpty
	}
	return r.Type()
}

// IsNil reports whether r is nil or a nil pointer of one of the record
// types.
func IsNil(r Record) bool {
	switch v := r.(type) {
	case nil:
		return true
	case *DetectorEvent:
		return v == nil
	case *RunHeader:
		return v == nil
	case *VesselPosition:
		return v == nil
	case *SourcePosition:
		return v == nil
	case *TriggerBank:
		return v == nil
	case *PedestalBank:
		return v == nil
	}
	return false
}
