package core

// SyncStatus is the decoder's confidence in its crank angle.
type SyncStatus uint8

const (
	SyncNone SyncStatus = iota
	// SyncHalf: crank position known, cam phase unknown. Only 360° timing is
	// possible.
	SyncHalf
	// SyncFull: full 720° cycle position known.
	SyncFull
)

func (s SyncStatus) String() string {
	switch s {
	case SyncHalf:
		return "half"
	case SyncFull:
		return "full"
	default:
		return "none"
	}
}

// Decoder is the trigger decoder as seen by the scheduler. The decoder also
// calls Engine.OnRevolution once per revolution and Engine.OnTooth per tooth.
type Decoder interface {
	// CrankAngle returns degrees after cylinder 1 TDC, 0-719.
	CrankAngle() uint16
	SyncStatus() SyncStatus
}

// Sensors holds the filtered inputs the protection engine reads each pass.
type Sensors struct {
	Coolant     int16  // °C
	OilPressure uint8  // psi
	MAP         uint16 // kPa
	O2          uint8  // measured AFR x10
	AFRTarget   uint8  // AFR x10
	TPS         uint8  // %
	Clutch      bool   // clutch pedal switch, true when depressed
}

// ProtectStatus flags which limiter is currently active.
type ProtectStatus uint8

const (
	ProtectRPM ProtectStatus = 1 << iota
	ProtectMAP
	ProtectOil
	ProtectAFR
	ProtectCoolant
)

// Has reports whether every flag in f is set.
func (p ProtectStatus) Has(f ProtectStatus) bool {
	return p&f == f
}
