// Package simulate runs a synthetic readout through a gtidring buffer: a
// paced source of detector events and banks, the feeder placing them by
// GTID, and a drain consuming them in order.
package simulate

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aradilov/gtidring"
	"github.com/aradilov/gtidring/internal/config"
	"github.com/aradilov/gtidring/record"
)

var mon = monkit.Package()

// Error is the error class for simulation failures.
var Error = errs.Class("simulate")

// Report summarizes a finished simulation.
type Report struct {
	Source SourceStats
	Drain  DrainStats
	Feeder gtidring.FeederStats
	Buffer gtidring.Stats
	Status gtidring.Status

	Leftover  int // records still staged after shutdown
	ArenaFree int
}

// Pipeline wires a source, a feeder and a drain around one buffer.
type Pipeline struct {
	log    *zap.Logger
	config *config.Config
	policy gtidring.Policy

	buf    *gtidring.Buffer
	arena  *record.Arena
	ledger *record.Ledger
	feeder *gtidring.Feeder
	source *Source
	drain  *Drain
}

// New builds a pipeline from cfg. sink may be nil.
func New(log *zap.Logger, cfg *config.Config, sink Sink) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	buf, err := gtidring.New(cfg.Buffer.Capacity)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	arena, err := record.NewArena(cfg.Arena.Size)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	ledger := record.NewLedger(cfg.Ledger.HistoryDepth)

	feeder, err := gtidring.NewFeeder(log.Named("feeder"), buf, gtidring.FeederConfig{
		StagingCapacity: cfg.Feeder.StagingCapacity,
		Policy:          policy,
		RetryDelay:      cfg.Feeder.RetryDelay,
		MaxRetries:      cfg.Feeder.MaxRetries,
		IdleDelay:       cfg.Feeder.IdleDelay,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	feeder.OnDrop = func(id uint64, rec record.Record, err error) {
		releaseEvent(arena, rec)
	}

	// A record reordered by up to Jitter GTIDs lands at most Jitter+1 slots
	// behind the tail. The drain never waits on more than capacity-2 slots
	// so that a full buffer always makes progress.
	lag := min(uint64(cfg.Simulate.Jitter)+1, uint64(cfg.Buffer.Capacity)-2)

	return &Pipeline{
		log:    log,
		config: cfg,
		policy: policy,
		buf:    buf,
		arena:  arena,
		ledger: ledger,
		feeder: feeder,
		source: NewSource(log.Named("source"), feeder, arena, cfg.Simulate),
		drain:  NewDrain(log.Named("drain"), buf, ledger, arena, lag, cfg.Simulate.PollInterval, sink),
	}, nil
}

// Buffer returns the buffer the pipeline feeds.
func (p *Pipeline) Buffer() *gtidring.Buffer { return p.buf }

// Ledger returns the bank ledger maintained by the drain.
func (p *Pipeline) Ledger() *record.Ledger { return p.ledger }

// Run produces triggers for the configured duration, or until ctx is
// canceled when the duration is zero, then shuts down in order: the source
// flushes, the feeder places everything staged and the drain empties the
// buffer. A Pipeline runs once.
func (p *Pipeline) Run(ctx context.Context) (_ Report, err error) {
	defer mon.Task()(&ctx)(&err)

	var (
		sourceCtx  context.Context
		stopSource context.CancelFunc
	)
	if d := p.config.Simulate.Duration; d > 0 {
		sourceCtx, stopSource = context.WithTimeout(ctx, d)
	} else {
		sourceCtx, stopSource = context.WithCancel(ctx)
	}
	defer stopSource()

	// the downstream stages outlive ctx so that nothing in flight is lost
	feedCtx, stopFeed := context.WithCancel(context.WithoutCancel(ctx))
	defer stopFeed()
	drainCtx, stopDrain := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDrain()

	started := time.Now()
	p.log.Info("simulation started",
		zap.Int("capacity", p.buf.Capacity()),
		zap.Float64("trigger_rate", p.config.Simulate.TriggerRate),
		zap.Duration("duration", p.config.Simulate.Duration),
		zap.Stringer("policy", p.policy))

	var group errgroup.Group
	group.Go(func() error {
		defer stopFeed()
		return p.source.Run(sourceCtx)
	})
	group.Go(func() error {
		defer stopDrain()
		err := p.feeder.Run(feedCtx)
		p.settle()
		return err
	})
	group.Go(func() error {
		return p.drain.Run(drainCtx)
	})
	err = group.Wait()

	report := Report{
		Source:    p.source.Stats(),
		Drain:     p.drain.Stats(),
		Feeder:    p.feeder.Stats(),
		Buffer:    p.buf.Stats(),
		Status:    p.buf.Status(),
		Leftover:  p.feeder.Staged(),
		ArenaFree: p.arena.Available(),
	}

	p.log.Info("simulation finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Uint64("triggers", report.Source.Triggers),
		zap.Uint64("events", report.Drain.Events),
		zap.Uint64("banks", report.Drain.Banks),
		zap.Uint64("gaps", report.Drain.Gaps),
		zap.Uint64("dropped", report.Feeder.Dropped+report.Source.Dropped),
		zap.Uint64("retried", report.Feeder.Retried),
		zap.Uint64("arena_exhausted", report.Source.ArenaExhausted),
		zap.Uint64("run_mismatch", report.Drain.RunMismatch))

	return report, Error.Wrap(err)
}

// settle places the records staged after the feeder stopped. Retries are
// bounded, so this ends once the drain has made room or the records are
// dropped.
func (p *Pipeline) settle() {
	for {
		if _, deferred := p.feeder.Drain(); !deferred {
			return
		}
		time.Sleep(p.config.Feeder.RetryDelay)
	}
}

// releaseEvent returns rec to the arena when it is an arena-owned event.
func releaseEvent(arena *record.Arena, rec record.Record) {
	ev, ok := rec.(*record.DetectorEvent)
	if !ok {
		return
	}
	if slot, ok := arena.Slot(ev); ok {
		arena.Release(slot)
	}
}
