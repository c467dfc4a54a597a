package gtidring

import (
	"github.com/spacemonkeygo/monkit/v3"
)

// Stats are the cumulative counters of a Buffer.
type Stats struct {
	Pushes   uint64
	PushFull uint64

	Pops     uint64
	PopEmpty uint64

	Reads           uint64
	ReadOutOfWindow uint64

	Inserts             uint64
	InsertExpired       uint64
	InsertOutOfCapacity uint64
	Overwrites          uint64

	Clears uint64
}

// Monitor exports the state of a buffer as a monkit stat source.
type Monitor struct {
	key monkit.SeriesKey
	buf *Buffer
}

var _ monkit.StatSource = (*Monitor)(nil)

// NewMonitor returns a stat source reporting buf under the given name.
func NewMonitor(name string, buf *Buffer) *Monitor {
	return &Monitor{
		key: monkit.NewSeriesKey("gtidring_buffer").WithTag("name", name),
		buf: buf,
	}
}

// Stats implements monkit.StatSource.
func (m *Monitor) Stats(cb func(key monkit.SeriesKey, field string, val float64)) {
	m.buf.mu.Lock()
	st, c := m.buf.status(), m.buf.stats
	m.buf.mu.Unlock()

	cb(m.key, "start", float64(st.Start))
	cb(m.key, "end", float64(st.End))
	cb(m.key, "offset", float64(st.Offset))
	cb(m.key, "size", float64(st.Size))
	cb(m.key, "capacity", float64(st.Capacity))
	cb(m.key, "fill", float64(st.Size)/float64(st.Capacity-1))

	cb(m.key, "pushes", float64(c.Pushes))
	cb(m.key, "push_full", float64(c.PushFull))
	cb(m.key, "pops", float64(c.Pops))
	cb(m.key, "pop_empty", float64(c.PopEmpty))
	cb(m.key, "reads", float64(c.Reads))
	cb(m.key, "read_out_of_window", float64(c.ReadOutOfWindow))
	cb(m.key, "inserts", float64(c.Inserts))
	cb(m.key, "insert_expired", float64(c.InsertExpired))
	cb(m.key, "insert_out_of_capacity", float64(c.InsertOutOfCapacity))
	cb(m.key, "overwrites", float64(c.Overwrites))
	cb(m.key, "clears", float64(c.Clears))
}
