package record

// MaxRopes is the number of manipulator ropes reported in a SourcePosition.
const MaxRopes = 10

// NumTriggers is the number of trigger thresholds in a TriggerBank:
// N100Lo, N100Med, N100Hi, N20, N20LB, ESUMLo, ESUMHi, OWLn, OWLELo, OWLEHi.
const NumTriggers = 10

// PedestalBank (EPED) describes the calibration pedestal settings.
type PedestalBank struct {
	GTDelayCoarse uint32
	GTDelayFine   uint32
	QPedAmp       uint32
	QPedWidth     uint32
	PatternID     uint32
	CalType       uint32
	GTID          uint32
	RunID         uint32
}

func (*PedestalBank) Type() RecordType { return TypePedestal }
func (*PedestalBank) record()          {}
func (b *PedestalBank) Anchor() uint32 { return b.GTID }
func (b *PedestalBank) Run() uint32    { return b.RunID }

// TriggerBank (TRIG) describes the trigger configuration.
type TriggerBank struct {
	TrigMask       uint32
	Threshold      [NumTriggers]uint16
	TrigZeroOffset [NumTriggers]uint16
	PulserRate     uint32
	MTCCSR         uint32
	LockoutWidth   uint32
	PrescaleFreq   uint32
	GTID           uint32
	RunID          uint32
}

func (*TriggerBank) Type() RecordType { return TypeTrigger }
func (*TriggerBank) record()          {}
func (b *TriggerBank) Anchor() uint32 { return b.GTID }
func (b *TriggerBank) Run() uint32    { return b.RunID }

// RunHeader (RHDR) opens a run.
type RunHeader struct {
	Date         uint32
	Time         uint32
	DAQVer       byte
	CalibTrialID uint32
	SrcMask      uint32
	RunMask      uint32
	CrateMask    uint32
	FirstEventID uint32
	ValidEventID uint32
	RunID        uint32
}

func (*RunHeader) Type() RecordType { return TypeRunHeader }
func (*RunHeader) record()          {}
func (b *RunHeader) Anchor() uint32 { return b.ValidEventID }
func (b *RunHeader) Run() uint32    { return b.RunID }

// SourcePosition (CAST) reports the calibration source manipulator state.
type SourcePosition struct {
	SourceID      uint16
	SourceStat    uint16
	NRopes        uint16
	ManipPos      [3]float32
	ManipDest     [3]float32
	SrcPosUncert1 float32
	SrcPosUncert2 [3]float32
	LBallOrient   float32
	RopeID        [MaxRopes]int32
	RopeLen       [MaxRopes]float32
	RopeTargLen   [MaxRopes]float32
	RopeVel       [MaxRopes]float32
	RopeTens      [MaxRopes]float32
	RopeErr       [MaxRopes]float32
	GTID          uint32
	RunID         uint32
}

func (*SourcePosition) Type() RecordType { return TypeSource }
func (*SourcePosition) record()          {}
func (b *SourcePosition) Anchor() uint32 { return b.GTID }
func (b *SourcePosition) Run() uint32    { return b.RunID }

// VesselPosition (CAAC) reports the acrylic vessel position and orientation.
type VesselPosition struct {
	AVPos        [3]float32
	AVRoll       [3]float32 // roll, pitch and yaw
	AVRopeLength [7]float32
	GTID         uint32
	RunID        uint32
}

func (*VesselPosition) Type() RecordType { return TypeVessel }
func (*VesselPosition) record()          {}
func (b *VesselPosition) Anchor() uint32 { return b.GTID }
func (b *VesselPosition) Run() uint32    { return b.RunID }
