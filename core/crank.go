package core

import "math/bits"

// Revolution time bounds. MaxRevolutionTime is 2^20µs (~1.05s, ~57 RPM):
// the largest value for which 720 * microsPerDegree plus rounding still
// fits in 32 bits.
const (
	MicrosPerMinute   = 60000000
	MaxRPM            = 18000
	MinRevolutionTime = MicrosPerMinute / MaxRPM // 3333µs
	MaxRevolutionTime = 1 << 20
)

// Fixed-point precision of the two conversion factors. degreesPerMicro
// needs the wide fraction: at MaxRevolutionTime it is only 360/2^20.
const (
	degPerUSShift = 32
	usPerDegShift = 11
)

// CrankTimebase converts between crank degrees and microseconds for the
// current revolution time. Only the decoder's revolution callback mutates
// it; everything else reads.
type CrankTimebase struct {
	revolutionTime  uint32 // µs per 360°
	degreesPerMicro uint64 // degrees/µs << degPerUSShift
	microsPerDegree uint32 // µs/degree << usPerDegShift
	revision        uint32 // bumped on every accepted change
}

// SetRevolutionTime installs a new revolution time. Values outside
// [MinRevolutionTime, MaxRevolutionTime) are rejected and must be clamped by
// the caller. Returns true only when the conversion factors changed.
func (c *CrankTimebase) SetRevolutionTime(revolutionTime uint32) bool {
	if revolutionTime < MinRevolutionTime || revolutionTime >= MaxRevolutionTime {
		return false
	}
	if revolutionTime == c.revolutionTime {
		return false
	}
	c.revolutionTime = revolutionTime
	c.degreesPerMicro = (360<<degPerUSShift + uint64(revolutionTime/2)) / uint64(revolutionTime)
	c.microsPerDegree = udivRoundClosest(revolutionTime<<usPerDegShift, 360)
	c.revision++
	return true
}

// Reset forgets the revolution time after a stall. The revision still
// advances so cached conversions are recomputed on restart.
func (c *CrankTimebase) Reset() {
	c.revolutionTime = 0
	c.degreesPerMicro = 0
	c.microsPerDegree = 0
	c.revision++
}

// RevolutionTime returns µs per crank revolution, 0 before the first
// revolution.
func (c *CrankTimebase) RevolutionTime() uint32 {
	return c.revolutionTime
}

// Revision increments every time the conversion factors change.
func (c *CrankTimebase) Revision() uint32 {
	return c.revision
}

// RPM derived from the current revolution time.
func (c *CrankTimebase) RPM() uint16 {
	return RPMFromRevolutionTime(c.revolutionTime)
}

// AngleToTime converts crank degrees to µs at the current revolution time.
func (c *CrankTimebase) AngleToTime(angle uint32) uint32 {
	return uint32(rshiftRound(uint64(angle)*uint64(c.microsPerDegree), usPerDegShift))
}

// TimeToAngle converts µs to crank degrees at the current revolution time.
func (c *CrankTimebase) TimeToAngle(us uint32) uint32 {
	hi, lo := bits.Mul64(uint64(us), c.degreesPerMicro)
	lo, carry := bits.Add64(lo, 1<<(degPerUSShift-1), 0)
	hi += carry
	return uint32(hi<<(64-degPerUSShift) | lo>>degPerUSShift)
}

// RPMFromRevolutionTime is a saturating 60e6/revolutionTime. Zero
// revolution time means the engine is stopped.
func RPMFromRevolutionTime(revolutionTime uint32) uint16 {
	if revolutionTime == 0 {
		return 0
	}
	if revolutionTime <= 0xFFFF {
		return saturateUint16(udiv32by16(MicrosPerMinute, uint16(revolutionTime)))
	}
	return saturateUint16(MicrosPerMinute / revolutionTime)
}

// udiv32by16 is the narrow divisor path: on Cortex-M0 class parts without a
// hardware divider a 32/16 division is markedly cheaper than 32/32.
func udiv32by16(dividend uint32, divisor uint16) uint32 {
	return dividend / uint32(divisor)
}

func udivRoundClosest(n, d uint32) uint32 {
	return uint32((uint64(n) + uint64(d/2)) / uint64(d))
}

func rshiftRound(v uint64, shift uint) uint64 {
	return (v + (1 << (shift - 1))) >> shift
}

func saturateUint16(v uint32) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
