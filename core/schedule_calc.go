package core

// normalizeAngle wraps angle into [0, max).
func normalizeAngle(angle int32, max uint16) uint16 {
	m := int32(max)
	if m <= 0 {
		return 0
	}
	angle %= m
	if angle < 0 {
		angle += m
	}
	return uint16(angle)
}

// InjectorOpenAngle is the crank angle at which an injector must open so that
// a pulse of pwDegrees ends at the channel's injection angle.
func InjectorOpenAngle(pwDegrees, channelDegrees, injAngle, max uint16) uint16 {
	return normalizeAngle(int32(injAngle)+int32(channelDegrees)-int32(pwDegrees), max)
}

// IgnitionAngles returns the coil charge and spark angles of a channel for
// the given advance (negative is after TDC) and dwell.
func IgnitionAngles(dwellAngle, channelDegrees uint16, advance int16, max uint16) (charge, discharge uint16) {
	discharge = normalizeAngle(int32(channelDegrees)-int32(advance), max)
	charge = normalizeAngle(int32(discharge)-int32(dwellAngle), max)
	return charge, discharge
}

// TrailingRotaryAngles derives a trailing plug's angles from its leading
// plug's spark angle and the configured split.
func TrailingRotaryAngles(dwellAngle, split, leadDischarge, max uint16) (charge, discharge uint16) {
	discharge = normalizeAngle(int32(leadDischarge)+int32(split), max)
	charge = normalizeAngle(int32(discharge)-int32(dwellAngle), max)
	return charge, discharge
}

// angularDelay is the crank travel from crankAngle to eventAngle. An event
// already behind the crank belongs to the next cycle unless the channel is
// busy, in which case it is late and fires as soon as possible.
func angularDelay(status ScheduleStatus, eventAngle, crankAngle, max uint16) uint32 {
	crank := normalizeAngle(int32(crankAngle), max)
	delta := int32(eventAngle) - int32(crank)
	if delta < 0 {
		if status == ScheduleRunning || status == ScheduleRunningWithNext {
			return 0
		}
		delta += int32(max)
	}
	return uint32(delta)
}

// InjectorTimeout is the countdown in µs from now until openAngle.
func InjectorTimeout(tb *CrankTimebase, status ScheduleStatus, openAngle, crankAngle, max uint16) uint32 {
	return tb.AngleToTime(angularDelay(status, openAngle, crankAngle, max))
}

// IgnitionTimeout is the countdown in µs from now until chargeAngle.
func IgnitionTimeout(tb *CrankTimebase, status ScheduleStatus, chargeAngle, crankAngle, max uint16) uint32 {
	return tb.AngleToTime(angularDelay(status, chargeAngle, crankAngle, max))
}
