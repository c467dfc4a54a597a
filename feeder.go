package gtidring

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aradilov/gtidring/record"
)

// Policy decides what the feeder does with records the buffer rejects.
type Policy int

const (
	// PolicyDrop drops rejected records immediately.
	PolicyDrop Policy = iota
	// PolicyRetry retries records rejected with ErrOutOfCapacity after
	// RetryDelay, up to MaxRetries times, then drops them.
	PolicyRetry
)

func (p Policy) String() string {
	switch p {
	case PolicyDrop:
		return "drop"
	case PolicyRetry:
		return "retry"
	}
	return "unknown"
}

// ParsePolicy parses "drop" or "retry".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop":
		return PolicyDrop, nil
	case "retry":
		return PolicyRetry, nil
	}
	return 0, Error.New("unknown backpressure policy %q", s)
}

// FeederConfig configures a Feeder.
type FeederConfig struct {
	StagingCapacity uint64
	Policy          Policy
	RetryDelay      time.Duration
	MaxRetries      int
	// IdleDelay is how long Run waits when nothing is staged.
	IdleDelay time.Duration
}

// FeederStats are the cumulative counters of a Feeder.
type FeederStats struct {
	Submitted uint64
	Rejected  uint64 // staging full
	Inserted  uint64
	Dropped   uint64
	Expired   uint64
	Retried   uint64
}

type staged struct {
	id  uint64
	rec record.Record
}

// Feeder is the single writer assigning records to GTIDs in a Buffer.
//
// Sources Submit from any goroutine; exactly one goroutine calls Run or
// Drain.
type Feeder struct {
	log     *zap.Logger
	buf     *Buffer
	staging *Staging[staged]
	config  FeederConfig

	// OnDrop, when set, is called from the draining goroutine with every
	// record the feeder gives up on.
	OnDrop func(id uint64, rec record.Record, err error)

	pending  *staged
	attempts int

	submitted atomic.Uint64
	rejected  atomic.Uint64
	inserted  atomic.Uint64
	dropped   atomic.Uint64
	expired   atomic.Uint64
	retried   atomic.Uint64
}

// NewFeeder creates a feeder writing into buf.
func NewFeeder(log *zap.Logger, buf *Buffer, config FeederConfig) (*Feeder, error) {
	if log == nil {
		return nil, Error.New("log is nil")
	}
	if buf == nil {
		return nil, Error.New("buffer is nil")
	}
	if config.IdleDelay <= 0 {
		config.IdleDelay = time.Millisecond
	}
	if config.Policy == PolicyRetry && config.RetryDelay <= 0 {
		return nil, Error.New("retry delay must be greater than 0")
	}

	staging, err := NewStaging[staged](config.StagingCapacity)
	if err != nil {
		return nil, err
	}

	return &Feeder{
		log:     log,
		buf:     buf,
		staging: staging,
		config:  config,
	}, nil
}

// Submit stages rec for id without blocking. It fails with ErrStagingFull
// when the writer is behind; the caller applies its own backpressure.
func (f *Feeder) Submit(id uint64, rec record.Record) error {
	if record.IsNil(rec) {
		return ErrNilRecord
	}
	if !f.staging.Enqueue(staged{id: id, rec: rec}) {
		f.rejected.Add(1)
		mon.Event("feeder_staging_full")
		return ErrStagingFull
	}
	f.submitted.Add(1)
	return nil
}

// Run drains staged records into the buffer until ctx is canceled.
func (f *Feeder) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for {
		n, deferred := f.Drain()
		mon.IntVal("feeder_batch").Observe(int64(n))

		var delay time.Duration
		switch {
		case deferred:
			delay = f.config.RetryDelay
		case n == 0:
			delay = f.config.IdleDelay
		}

		if delay > 0 {
			if !sleep(ctx, delay) {
				return nil
			}
		} else if ctx.Err() != nil {
			return nil
		}
	}
}

// Drain moves everything currently staged into the buffer and returns how
// many records it handled. deferred is true when a record is waiting for a
// retry; it is attempted first on the next call.
func (f *Feeder) Drain() (n int, deferred bool) {
	if f.pending != nil {
		p := *f.pending
		if f.insert(p) {
			return n, true
		}
		f.pending = nil
		n++
	}

	for {
		s, ok := f.staging.Dequeue()
		if !ok {
			return n, false
		}
		if f.insert(s) {
			return n, true
		}
		n++
	}
}

// insert returns true when s was deferred for a retry.
func (f *Feeder) insert(s staged) bool {
	err := f.buf.Insert(s.id, s.rec)
	switch {
	case err == nil:
		f.inserted.Add(1)
		f.attempts = 0
		return false

	case err == ErrOutOfCapacity && f.config.Policy == PolicyRetry && f.attempts < f.config.MaxRetries:
		f.attempts++
		f.retried.Add(1)
		f.pending = &s
		return true

	case err == ErrExpired:
		f.expired.Add(1)
		f.log.Warn("record arrived after its slot was drained",
			zap.Uint64("gtid", s.id),
			zap.Stringer("type", s.rec.Type()))
	default:
		f.log.Debug("dropping record",
			zap.Uint64("gtid", s.id),
			zap.Stringer("type", s.rec.Type()),
			zap.Int("attempts", f.attempts),
			zap.Error(err))
	}

	f.attempts = 0
	f.pending = nil
	f.dropped.Add(1)
	if f.OnDrop != nil {
		f.OnDrop(s.id, s.rec, err)
	}
	return false
}

// Staged returns the approximate number of records waiting in staging.
func (f *Feeder) Staged() int { return f.staging.Len() }

// Stats returns the feeder counters.
func (f *Feeder) Stats() FeederStats {
	return FeederStats{
		Submitted: f.submitted.Load(),
		Rejected:  f.rejected.Load(),
		Inserted:  f.inserted.Load(),
		Dropped:   f.dropped.Load(),
		Expired:   f.expired.Load(),
		Retried:   f.retried.Load(),
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
