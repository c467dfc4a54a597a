package record

// MaxHits is the fixed per-event PMT bundle capacity.
const MaxHits = 10000

// PMTBundle is raw PMT data packed into three 32-bit words (96 bits).
type PMTBundle struct {
	PMTID int32
	GTID  uint32
	Word  [3]uint32
}

// MTCData is the trigger/timing payload (192 bits).
type MTCData struct {
	Word [6]uint32
}

// CAENData holds digitized trigger sums for up to 8 channels.
type CAENData struct {
	Header [4]uint32
	Data   [8][55]uint32 // 2.5 samples per word
}

// DetectorEvent aggregates everything read out for one trigger.
// At roughly 120 KB per value it is meant to be pooled, see Arena.
type DetectorEvent struct {
	PMT       [MaxHits]PMTBundle
	MTC       MTCData
	CAEN      CAENData
	RunID     uint32
	SubRunID  uint32
	NHits     uint32
	EvOrder   uint32
	RunMask   uint64
	PackVer   byte
	MCFlag    byte
	DataType  byte
	ClockStat byte
}

func (*DetectorEvent) Type() RecordType { return TypeEvent }
func (*DetectorEvent) record()          {}

// AddHit appends b after the last stored bundle.
func (ev *DetectorEvent) AddHit(b PMTBundle) error {
	if ev.NHits >= MaxHits {
		return ErrTooManyHits
	}
	ev.PMT[ev.NHits] = b
	ev.NHits++
	return nil
}

// Hits returns the populated bundles.
func (ev *DetectorEvent) Hits() []PMTBundle {
	n := ev.NHits
	if n > MaxHits {
		n = MaxHits
	}
	return ev.PMT[:n]
}

// GTID returns the trigger id carried by the first hit, or false when the
// event has no hits.
func (ev *DetectorEvent) GTID() (uint32, bool) {
	if ev.NHits == 0 {
		return 0, false
	}
	return ev.PMT[0].GTID, true
}

// Reset zeroes the event, keeping its storage.
func (ev *DetectorEvent) Reset() {
	*ev = DetectorEvent{}
}
