package simulate

import (
	"context"
	"time"

	"github.com/valyala/fastrand"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aradilov/gtidring"
	"github.com/aradilov/gtidring/internal/config"
	"github.com/aradilov/gtidring/record"
)

// NumPMTs is the number of readout channels a synthetic hit is drawn from.
const NumPMTs = 9728

const (
	submitAttempts = 1000
	submitBackoff  = 50 * time.Microsecond
)

// SourceStats are the counters of a Source.
type SourceStats struct {
	Triggers       uint64 // GTIDs given to detector events
	Banks          uint64
	ArenaExhausted uint64 // triggers lost for lack of a free event
	Dropped        uint64 // records the feeder never accepted
}

type pendingRecord struct {
	id  uint64
	rec record.Record
}

// Source produces a paced stream of detector events interleaved with
// periodic banks, handing them to the feeder slightly out of GTID order.
type Source struct {
	log     *zap.Logger
	feeder  *gtidring.Feeder
	arena   *record.Arena
	config  config.SimulateConfig
	limiter *rate.Limiter

	next      uint64
	sinceBank int
	bankKind  int
	pending   []pendingRecord

	stats SourceStats
}

// NewSource creates a source submitting to feeder.
func NewSource(log *zap.Logger, feeder *gtidring.Feeder, arena *record.Arena, cfg config.SimulateConfig) *Source {
	burst := int(cfg.TriggerRate/100) + 1
	return &Source{
		log:     log,
		feeder:  feeder,
		arena:   arena,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.TriggerRate), burst),
		next:    cfg.StartGTID,
		pending: make([]pendingRecord, 0, cfg.Jitter+1),
	}
}

// Run submits a run header and then emits one trigger per limiter tick until
// ctx is done. Records still held for reordering are submitted before
// returning.
func (s *Source) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	defer s.flush()

	// the header is never reordered: it must be the record that anchors the
	// buffer, ids below the anchor expire
	now := time.Now().UTC()
	s.submit(pendingRecord{id: s.next, rec: &record.RunHeader{
		Date:         uint32(now.Year()*10000 + int(now.Month())*100 + now.Day()),
		Time:         uint32(now.Hour()*1000000 + now.Minute()*10000 + now.Second()*100),
		RunID:        s.config.RunID,
		RunMask:      1,
		FirstEventID: uint32(s.next + 1),
		ValidEventID: uint32(s.next + 1),
	}})
	s.next++
	s.stats.Banks++

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}
		if s.sinceBank >= s.config.BankEvery {
			s.bank()
			s.sinceBank = 0
		}
		s.trigger()
		s.sinceBank++
	}
}

// Stats returns the source counters. It must not be called while Run is
// in progress.
func (s *Source) Stats() SourceStats { return s.stats }

func (s *Source) trigger() {
	id := s.next
	ev, _, ok := s.arena.Acquire()
	if !ok {
		s.next++
		s.stats.ArenaExhausted++
		mon.Event("arena_exhausted")
		s.log.Debug("no free event, trigger lost", zap.Uint64("gtid", id))
		return
	}

	gtid := uint32(id)
	nhits := fastrand.Uint32n(uint32(s.config.MaxHits) + 1)
	for i := uint32(0); i < nhits; i++ {
		_ = ev.AddHit(record.PMTBundle{
			PMTID: int32(fastrand.Uint32n(NumPMTs)),
			GTID:  gtid,
			Word:  [3]uint32{fastrand.Uint32(), fastrand.Uint32(), fastrand.Uint32()},
		})
	}
	ev.MTC.Word[0] = gtid
	ev.CAEN.Header[0] = gtid
	ev.RunID = s.config.RunID
	ev.EvOrder = uint32(s.stats.Triggers)
	ev.RunMask = 1

	s.stats.Triggers++
	s.emit(ev)
}

func (s *Source) bank() {
	anchor := uint32(s.next + 1)
	run := s.config.RunID

	var b record.Bank
	switch s.bankKind % 4 {
	case 0:
		b = &record.TriggerBank{
			TrigMask:     fastrand.Uint32(),
			PulserRate:   uint32(s.config.TriggerRate),
			LockoutWidth: 420,
			GTID:         anchor,
			RunID:        run,
		}
	case 1:
		b = &record.PedestalBank{
			QPedAmp:   fastrand.Uint32n(256),
			QPedWidth: fastrand.Uint32n(256),
			CalType:   1,
			GTID:      anchor,
			RunID:     run,
		}
	case 2:
		b = &record.VesselPosition{GTID: anchor, RunID: run}
	default:
		b = &record.SourcePosition{NRopes: 3, GTID: anchor, RunID: run}
	}
	s.bankKind++
	s.stats.Banks++
	s.emit(b)
}

// emit assigns the next GTID to rec and submits once Jitter+1 records are
// held, in shuffled order.
func (s *Source) emit(rec record.Record) {
	s.pending = append(s.pending, pendingRecord{id: s.next, rec: rec})
	s.next++
	if len(s.pending) > s.config.Jitter {
		s.flush()
	}
}

func (s *Source) flush() {
	for i := len(s.pending) - 1; i > 0; i-- {
		j := int(fastrand.Uint32n(uint32(i + 1)))
		s.pending[i], s.pending[j] = s.pending[j], s.pending[i]
	}
	for _, p := range s.pending {
		s.submit(p)
	}
	s.pending = s.pending[:0]
}

func (s *Source) submit(p pendingRecord) {
	for attempt := 0; attempt < submitAttempts; attempt++ {
		err := s.feeder.Submit(p.id, p.rec)
		if err == nil {
			return
		}
		if err != gtidring.ErrStagingFull {
			break
		}
		time.Sleep(submitBackoff)
	}

	s.stats.Dropped++
	s.log.Debug("feeder behind, record dropped",
		zap.Uint64("gtid", p.id),
		zap.Stringer("type", p.rec.Type()))
	releaseEvent(s.arena, p.rec)
}
