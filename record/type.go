package record

import "strconv"

// RecordType discriminates which shape occupies a buffer slot.
type RecordType uint8

const (
	TypeEmpty RecordType = iota
	TypeEvent
	TypeRunHeader
	TypeVessel // AV status header
	TypeSource // manipulator status header
	TypeTrigger
	TypePedestal

	numRecordTypes
)

var typeNames = [numRecordTypes]string{
	TypeEmpty:     "EMPTY",
	TypeEvent:     "DETECTOR_EVENT",
	TypeRunHeader: "RUN_HEADER",
	TypeVessel:    "AV_STATUS_HEADER",
	TypeSource:    "MANIPULATOR_STATUS_HEADER",
	TypeTrigger:   "TRIG_BANK_HEADER",
	TypePedestal:  "EPED_BANK_HEADER",
}

func (t RecordType) String() string {
	if t < numRecordTypes {
		return typeNames[t]
	}
	return "RecordType(" + strconv.Itoa(int(t)) + ")"
}

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool { return t < numRecordTypes }

// IsBank is true for every non-event payload.
func (t RecordType) IsBank() bool {
	return t.Valid() && t != TypeEmpty && t != TypeEvent
}

// BankTypes lists the bank types in declaration order.
func BankTypes() []RecordType {
	return []RecordType{TypeRunHeader, TypeVessel, TypeSource, TypeTrigger, TypePedestal}
}
