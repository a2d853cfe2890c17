package core

// pwDegreesThreshold is the pulse width change, in µs, below which the cached
// pulse-width angle is reused: 1% of the shortest supported revolution.
const pwDegreesThreshold = MinRevolutionTime / 100

// TrimTable is a per-channel fuel trim lookup. It returns a percentage
// multiplier, 100 meaning no trim.
type TrimTable interface {
	TrimPercent(rpm uint16, load uint16) uint8
}

// FuelSchedule is a Schedule driving one injector channel.
type FuelSchedule struct {
	Schedule

	// ChannelDegrees is the phase offset from cylinder 1 TDC.
	ChannelDegrees uint16
	// PulseWidth is the last armed pulse in µs.
	PulseWidth uint32
	// OpenAngle is the crank angle of the last computed opening.
	OpenAngle uint16
	// Trim is optional.
	Trim TrimTable

	pwDegrees  uint16
	pwLast     uint32
	pwRevision uint32
}

// TrimmedPulseWidth applies the channel's trim table to pw.
func (f *FuelSchedule) TrimmedPulseWidth(pw uint32, rpm, load uint16) uint32 {
	if f.Trim == nil || pw == 0 {
		return pw
	}
	return pw * uint32(f.Trim.TrimPercent(rpm, load)) / 100
}

// UpdatePulseWidth records pw and returns its length in crank degrees. The
// angle is only recomputed when the pulse width moves past
// pwDegreesThreshold or the revolution time has changed.
func (f *FuelSchedule) UpdatePulseWidth(pw uint32, tb *CrankTimebase) uint16 {
	f.PulseWidth = pw
	diff := pw - f.pwLast
	if pw < f.pwLast {
		diff = f.pwLast - pw
	}
	if diff > pwDegreesThreshold || f.pwRevision != tb.Revision() {
		f.pwDegrees = uint16(tb.TimeToAngle(pw))
		f.pwLast = pw
		f.pwRevision = tb.Revision()
	}
	return f.pwDegrees
}

// PulseWidthDegrees returns the cached pulse width angle.
func (f *FuelSchedule) PulseWidthDegrees() uint16 {
	return f.pwDegrees
}
