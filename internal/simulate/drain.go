package simulate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/aradilov/gtidring"
	"github.com/aradilov/gtidring/record"
)

// Sink receives every detector event leaving the buffer, in GTID order.
// ev is returned to the arena when Sink returns and must not be retained.
type Sink func(gtid uint64, ev *record.DetectorEvent)

// DrainStats are the counters of a Drain.
type DrainStats struct {
	Events      uint64
	Banks       uint64
	Gaps        uint64 // GTIDs that never received a record
	Misplaced   uint64 // events whose own GTID differs from their slot
	Untriggered uint64 // events with no trigger bank in force
	RunMismatch uint64
	StaleBanks  uint64
}

// Drain is the consumer side of the simulation. It pops the buffer in GTID
// order, keeping lag slots behind the tail so that late records still find
// their slot, and applies banks to the ledger as they go by.
type Drain struct {
	log    *zap.Logger
	buf    *gtidring.Buffer
	ledger *record.Ledger
	arena  *record.Arena
	lag    uint64
	poll   time.Duration
	sink   Sink

	stats DrainStats
}

// NewDrain creates a drain. sink may be nil.
func NewDrain(log *zap.Logger, buf *gtidring.Buffer, ledger *record.Ledger, arena *record.Arena, lag uint64, poll time.Duration, sink Sink) *Drain {
	return &Drain{
		log:    log,
		buf:    buf,
		ledger: ledger,
		arena:  arena,
		lag:    lag,
		poll:   poll,
		sink:   sink,
	}
}

// Run pops records while more than lag are buffered, until ctx is done.
// Everything left in the buffer is then popped regardless of the lag.
func (d *Drain) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer d.flush()

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for ctx.Err() == nil {
		if d.buf.Status().Size > d.lag && d.next() {
			continue
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	return nil
}

// Stats returns the drain counters. It must not be called while Run is in
// progress.
func (d *Drain) Stats() DrainStats { return d.stats }

func (d *Drain) flush() {
	for d.next() {
	}
}

func (d *Drain) next() bool {
	// single consumer: start cannot move between Status and Pop
	st := d.buf.Status()
	e, err := d.buf.Pop()
	if err != nil {
		return false
	}
	d.handle(st.Offset+st.Start, e)
	return true
}

func (d *Drain) handle(id uint64, e gtidring.Entry) {
	switch rec := e.Record.(type) {
	case nil:
		d.stats.Gaps++
		mon.Event("drain_gap")

	case *record.DetectorEvent:
		d.stats.Events++
		if gtid, ok := eventGTID(rec); ok && gtid != uint32(id) {
			d.stats.Misplaced++
			d.log.Warn("event stored under another gtid",
				zap.Uint64("slot", id),
				zap.Uint32("gtid", gtid))
		}
		if err := d.ledger.CheckEvent(rec); err != nil {
			d.stats.RunMismatch++
			d.log.Warn("event rejected", zap.Uint64("gtid", id), zap.Error(err))
		}
		if _, ok := d.ledger.Current(record.TypeTrigger, uint32(id)); !ok {
			d.stats.Untriggered++
		}
		if d.sink != nil {
			d.sink(id, rec)
		}
		releaseEvent(d.arena, rec)

	case record.Bank:
		d.stats.Banks++
		err := d.ledger.Apply(rec)
		switch {
		case err == nil:
			d.log.Debug("bank applied",
				zap.Stringer("type", rec.Type()),
				zap.Uint32("anchor", rec.Anchor()),
				zap.Uint32("run", rec.Run()))
			return
		case errors.Is(err, record.ErrRunMismatch):
			d.stats.RunMismatch++
		case errors.Is(err, record.ErrStaleBank):
			d.stats.StaleBanks++
		}
		d.log.Warn("bank rejected", zap.Uint64("gtid", id), zap.Error(err))
	}
}

// eventGTID reads the trigger id from the first hit, falling back to the
// trigger card word for events without hits.
func eventGTID(ev *record.DetectorEvent) (uint32, bool) {
	if gtid, ok := ev.GTID(); ok {
		return gtid, true
	}
	return ev.MTC.Word[0], ev.MTC.Word[0] != 0
}
