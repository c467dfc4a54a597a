// Package gtidring is the buffering core of a detector event builder.
//
// Records from independent readout sources arrive tagged with a global
// trigger id (GTID), at different rates and out of order. A Buffer holds
// them in a fixed window of slots that a consumer drains either in arrival
// order (Pop) or by GTID (At). Producers either append (Push) or place a
// record at its GTID (Insert). No operation blocks: a full or empty buffer
// is reported to the caller, which applies its own backpressure.
//
// Staging and Feeder put a lock-free queue in front of the buffer so that
// many source goroutines can hand records to the single goroutine that owns
// GTID placement.
package gtidring
