package gtidring_test

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"

	"github.com/aradilov/gtidring"
	"github.com/aradilov/gtidring/record"
)

func bank(gtid uint32) *record.PedestalBank {
	return &record.PedestalBank{GTID: gtid}
}

func newBuffer(t testing.TB, capacity int) *gtidring.Buffer {
	b, err := gtidring.New(capacity)
	require.NoError(t, err)
	return b
}

func TestNew(t *testing.T) {
	_, err := gtidring.New(1)
	require.Error(t, err)
	require.True(t, gtidring.Error.Has(err))

	b := gtidring.Alloc()
	require.Equal(t, gtidring.DefaultCapacity, b.Capacity())
	require.True(t, b.IsEmpty())
	require.False(t, b.IsFull())
	require.Equal(t, gtidring.Status{Capacity: gtidring.DefaultCapacity}, b.Status())
}

// Sequential push/pop keeps FIFO order across many wraps of the slot store.
func TestBufferSequential(t *testing.T) {
	const (
		capacity = 64
		N        = 100_000
	)

	b := newBuffer(t, capacity)
	recs := make([]*record.PedestalBank, N)
	for i := range recs {
		recs[i] = bank(uint32(i))
	}

	next := 0
	for i := 0; i < N; i++ {
		if err := b.Push(recs[i]); err != nil {
			t.Fatalf("push failed at %d: %v", i, err)
		}
		// drain a random amount to interleave pushes and pops
		for n := fastrand.Uint32n(3); n > 0; n-- {
			e, err := b.Pop()
			if err != nil {
				break
			}
			if e.Record != recs[next] {
				t.Fatalf("expected record %d, got %v (FIFO violated)", next, e.Record)
			}
			next++
		}
		if b.IsFull() {
			for !b.IsEmpty() {
				e, _ := b.Pop()
				if e.Record != recs[next] {
					t.Fatalf("expected record %d, got %v (FIFO violated)", next, e.Record)
				}
				next++
			}
		}
	}
	for next < N {
		e, err := b.Pop()
		if err != nil {
			t.Fatalf("pop failed at %d: %v", next, err)
		}
		if e.Type != record.TypePedestal || e.Record != recs[next] {
			t.Fatalf("expected record %d, got %v (FIFO violated)", next, e.Record)
		}
		next++
	}

	if _, err := b.Pop(); err != gtidring.ErrEmpty {
		t.Fatalf("expected empty buffer at the end, got %v", err)
	}
}

func TestBufferFullEmpty(t *testing.T) {
	const capacity = 8
	b := newBuffer(t, capacity)

	require.True(t, b.IsEmpty())
	_, err := b.Pop()
	require.ErrorIs(t, err, gtidring.ErrEmpty)

	for i := 0; i < capacity-1; i++ {
		require.False(t, b.IsFull(), "full after %d pushes", i)
		require.NoError(t, b.Push(bank(uint32(i))))
		require.False(t, b.IsEmpty())
	}
	require.True(t, b.IsFull())

	before := b.Status()
	require.ErrorIs(t, b.Push(bank(99)), gtidring.ErrFull)
	require.Equal(t, before, b.Status())

	require.ErrorIs(t, b.Push(nil), gtidring.ErrNilRecord)
	require.ErrorIs(t, b.Insert(3, nil), gtidring.ErrNilRecord)
	require.ErrorIs(t, b.Push((*record.DetectorEvent)(nil)), gtidring.ErrNilRecord)
	require.ErrorIs(t, b.Insert(3, (*record.TriggerBank)(nil)), gtidring.ErrNilRecord)
	require.Equal(t, before, b.Status())

	st := b.Stats()
	require.EqualValues(t, capacity, st.Pushes)
	require.EqualValues(t, 1, st.PushFull)
	require.EqualValues(t, 1, st.PopEmpty)
}

// Out-of-order insert leaves a gap that drains as empty entries.
func TestBufferGapScenario(t *testing.T) {
	b := newBuffer(t, 6)
	a, bb, c := bank(1), bank(2), bank(3)
	trig := &record.TriggerBank{GTID: 5}

	require.NoError(t, b.Push(a))
	require.NoError(t, b.Push(bb))

	e, err := b.Pop()
	require.NoError(t, err)
	require.Equal(t, gtidring.Entry{Type: record.TypePedestal, Record: a}, e)

	require.EqualValues(t, 2, b.Status().End)
	require.EqualValues(t, 0, b.Status().Offset)

	require.NoError(t, b.Insert(5, trig))
	st := b.Status()
	require.EqualValues(t, 1, st.Start)
	require.EqualValues(t, 6, st.End)
	require.EqualValues(t, 5, st.Size)
	require.True(t, b.IsFull())

	require.ErrorIs(t, b.Push(c), gtidring.ErrFull)

	e, err = b.At(5)
	require.NoError(t, err)
	require.Equal(t, gtidring.Entry{Type: record.TypeTrigger, Record: trig}, e)

	e, err = b.Pop()
	require.NoError(t, err)
	require.Same(t, bb, e.Record)

	for logical := 2; logical <= 4; logical++ {
		e, err = b.Pop()
		require.NoError(t, err, "logical %d", logical)
		require.Equal(t, record.TypeEmpty, e.Type)
		require.Nil(t, e.Record)
	}

	e, err = b.Pop()
	require.NoError(t, err)
	require.Same(t, trig, e.Record)

	_, err = b.Pop()
	require.ErrorIs(t, err, gtidring.ErrEmpty)
}

func TestBufferInsertAt(t *testing.T) {
	b := newBuffer(t, 16)

	_, err := b.At(100)
	require.ErrorIs(t, err, gtidring.ErrOutOfWindow)

	// the first insert anchors the offset
	run := &record.RunHeader{RunID: 4, ValidEventID: 100}
	require.NoError(t, b.Insert(100, run))
	st := b.Status()
	require.True(t, st.Anchored)
	require.EqualValues(t, 100, st.Offset)
	require.EqualValues(t, 0, st.Start)
	require.EqualValues(t, 1, st.End)

	ev := &record.DetectorEvent{RunID: 4}
	require.NoError(t, b.Insert(103, ev))
	require.EqualValues(t, 4, b.Status().Size)

	for i := 0; i < 3; i++ {
		e, err := b.At(103)
		require.NoError(t, err)
		require.Equal(t, gtidring.Entry{Type: record.TypeEvent, Record: ev}, e)
		require.EqualValues(t, 4, b.Status().Size)
	}

	e, err := b.At(101)
	require.NoError(t, err)
	require.Equal(t, record.TypeEmpty, e.Type)

	_, err = b.At(104)
	require.ErrorIs(t, err, gtidring.ErrOutOfWindow)
	_, err = b.At(99)
	require.ErrorIs(t, err, gtidring.ErrOutOfWindow)

	// filling a gap does not move the tail
	vessel := &record.VesselPosition{GTID: 101}
	require.NoError(t, b.Insert(101, vessel))
	require.EqualValues(t, 4, b.Status().End)
	e, err = b.At(101)
	require.NoError(t, err)
	require.Same(t, vessel, e.Record)

	// inserting into an occupied slot replaces the record
	ev2 := &record.DetectorEvent{RunID: 4}
	require.NoError(t, b.Insert(103, ev2))
	e, err = b.At(103)
	require.NoError(t, err)
	require.Same(t, ev2, e.Record)
	require.EqualValues(t, 1, b.Stats().Overwrites)
}

func TestBufferInsertBoundary(t *testing.T) {
	const capacity = 8
	usable := uint64(capacity - 1)
	b := newBuffer(t, capacity)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Push(bank(uint32(i))))
	}
	for i := 0; i < 3; i++ {
		_, err := b.Pop()
		require.NoError(t, err)
	}
	start := b.Status().Start
	require.EqualValues(t, 3, start)

	before := b.Status()
	require.ErrorIs(t, b.Insert(start+usable, bank(0)), gtidring.ErrOutOfCapacity)
	require.Equal(t, before, b.Status())

	require.NoError(t, b.Insert(start+usable-1, bank(0)))
	st := b.Status()
	require.Equal(t, start+usable, st.End)
	require.Equal(t, usable, st.Size)
	require.True(t, b.IsFull())

	require.EqualValues(t, 1, b.Stats().InsertOutOfCapacity)
}

func TestBufferInsertExpired(t *testing.T) {
	b := newBuffer(t, 8)
	require.NoError(t, b.Insert(50, bank(50)))
	require.NoError(t, b.Insert(51, bank(51)))
	require.NoError(t, b.Insert(52, bank(52)))
	for i := 0; i < 2; i++ {
		_, err := b.Pop()
		require.NoError(t, err)
	}

	before := b.Status()
	for _, id := range []uint64{0, 49, 50, 51} {
		require.ErrorIs(t, b.Insert(id, bank(uint32(id))), gtidring.ErrExpired, "id %d", id)
		require.Equal(t, before, b.Status())
	}
	require.EqualValues(t, 4, b.Stats().InsertExpired)

	_, err := b.At(51)
	require.ErrorIs(t, err, gtidring.ErrOutOfWindow)
	e, err := b.At(52)
	require.NoError(t, err)
	require.EqualValues(t, 52, e.Record.(*record.PedestalBank).GTID)
}

func TestBufferClear(t *testing.T) {
	b := newBuffer(t, 8)
	require.NoError(t, b.Insert(1000, bank(1000)))
	require.NoError(t, b.Insert(1003, bank(1003)))

	b.Clear()
	require.True(t, b.IsEmpty())
	require.Equal(t, gtidring.Status{Capacity: 8}, b.Status())
	_, err := b.At(1000)
	require.ErrorIs(t, err, gtidring.ErrOutOfWindow)

	// the offset is anchored again by the next insert
	require.NoError(t, b.Insert(7, bank(7)))
	require.EqualValues(t, 7, b.Status().Offset)

	// cleared slots hold no stale records
	b.Clear()
	require.NoError(t, b.Push(bank(1)))
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Insert(uint64(i+1), bank(2)))
	}
	for i := 0; i < 5; i++ {
		e, err := b.Pop()
		require.NoError(t, err)
		assert.NotNil(t, e.Record)
	}
}

// Concurrent test: many producers, a single consumer.
// Checks that every record is received exactly once.
func TestBufferConcurrent(t *testing.T) {
	const (
		capacity    = 1 << 8
		N           = 100_000
		producers   = 8
		perProducer = N / producers
	)

	b := newBuffer(t, capacity)
	seen := make([]int32, N)
	var received atomic.Int64

	done := make(chan struct{})
	go func() {
		defer close(done)
		for received.Load() < N {
			e, err := b.Pop()
			if err != nil {
				runtime.Gosched()
				continue
			}
			v := e.Record.(*record.PedestalBank).GTID
			atomic.AddInt32(&seen[v], 1)
			received.Add(1)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(from, to int) {
			defer wg.Done()
			for i := from; i < to; i++ {
				for b.Push(bank(uint32(i))) != nil {
					runtime.Gosched()
				}
			}
		}(p*perProducer, (p+1)*perProducer)
	}
	wg.Wait()
	<-done

	for i := 0; i < N; i++ {
		if seen[i] != 1 {
			t.Fatalf("value %d seen %d times (expected 1)", i, seen[i])
		}
	}
	require.True(t, b.IsEmpty())
}

func TestMonitor(t *testing.T) {
	b := newBuffer(t, 5)
	require.NoError(t, b.Push(bank(1)))
	require.NoError(t, b.Push(bank(2)))
	_, err := b.Pop()
	require.NoError(t, err)

	var _ monkit.StatSource = gtidring.NewMonitor("test", b)

	fields := map[string]float64{}
	gtidring.NewMonitor("test", b).Stats(func(key monkit.SeriesKey, field string, val float64) {
		require.Equal(t, "gtidring_buffer", key.Measurement)
		require.Equal(t, "test", key.Tags.Get("name"))
		fields[field] = val
	})

	require.Equal(t, 1.0, fields["start"])
	require.Equal(t, 2.0, fields["end"])
	require.Equal(t, 1.0, fields["size"])
	require.Equal(t, 5.0, fields["capacity"])
	require.Equal(t, 0.25, fields["fill"])
	require.Equal(t, 2.0, fields["pushes"])
	require.Equal(t, 1.0, fields["pops"])
}

// Benchmark: single producer, single consumer.
func BenchmarkBuffer_1P1C(b *testing.B) {
	buf := newBuffer(b, gtidring.DefaultCapacity)
	rec := bank(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < b.N; i++ {
			for {
				if _, err := buf.Pop(); err == nil {
					break
				}
				runtime.Gosched()
			}
		}
		close(done)
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for buf.Push(rec) != nil {
			runtime.Gosched()
		}
	}
	<-done
	b.StopTimer()
}

func BenchmarkBuffer_InsertAt(b *testing.B) {
	buf := newBuffer(b, gtidring.DefaultCapacity)
	rec := bank(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := uint64(i)
		if err := buf.Insert(id, rec); err != nil {
			b.Fatalf("insert %d: %v", id, err)
		}
		if _, err := buf.At(id); err != nil {
			b.Fatalf("at %d: %v", id, err)
		}
		if _, err := buf.Pop(); err != nil {
			b.Fatalf("pop %d: %v", id, err)
		}
	}
}
