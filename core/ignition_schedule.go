package core

// MinCyclesForCorrection is the number of revolutions after sync before
// per-tooth corrections may move a pending charge start. Earlier crank
// readings are too noisy to act on.
const MinCyclesForCorrection = 6

// IgnitionSchedule is a Schedule driving one coil channel.
type IgnitionSchedule struct {
	Schedule

	// ChannelDegrees is the channel's TDC offset from cylinder 1.
	ChannelDegrees uint16
	ChargeAngle    uint16
	DischargeAngle uint16
	// StartTime is Micros() when the coil began charging. Written from the
	// start callback.
	StartTime uint32
}

// AdjustCrankAngle re-times the channel against a fresher crank angle. A
// charging coil can only have its spark pulled earlier; a pending charge can
// only be started earlier, and only once the engine is past its first few
// revolutions.
func (g *IgnitionSchedule) AdjustCrankAngle(crankAngle, startRevolutions uint16, tb *CrankTimebase, max uint16) {
	switch g.Status() {
	case ScheduleRunning, ScheduleRunningWithNext:
		delay := angularDelay(SchedulePending, g.DischargeAngle, crankAngle, max)
		g.ShortenRunning(tb.AngleToTime(delay))
	case SchedulePending, SchedulePendingWithOverride:
		if startRevolutions <= MinCyclesForCorrection {
			return
		}
		delay := angularDelay(SchedulePending, g.ChargeAngle, crankAngle, max)
		g.OverridePendingStart(tb.AngleToTime(delay))
	}
}

// ChargeStartTime returns StartTime read under a critical section.
func (g *IgnitionSchedule) ChargeStartTime() uint32 {
	state := disableInterrupts()
	t := g.StartTime
	restoreInterrupts(state)
	return t
}
