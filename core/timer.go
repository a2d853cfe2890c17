package core

// Schedule timers are 16-bit up-counters clocked at 250kHz, so one tick is
// 4µs and the longest representable compare distance is 65535 ticks.
const (
	TimerFreq      = 250000
	TimerTickUS    = 4
	MaxTimerPeriod = 0xFFFF * TimerTickUS // µs
)

// usToTicks converts a microsecond interval to timer ticks. Callers must
// have checked us < MaxTimerPeriod.
func usToTicks(us uint32) uint16 {
	return uint16(us / TimerTickUS)
}

// ticksToUS converts timer ticks to microseconds.
func ticksToUS(ticks uint16) uint32 {
	return uint32(ticks) * TimerTickUS
}

// Micros returns the free-running microsecond clock, truncated to 32 bits
// like the hardware counter it mirrors.
func Micros() uint32 {
	return uint32(getSystemMicros())
}

// Millis returns milliseconds since boot.
func Millis() uint32 {
	return uint32(getSystemMicros() / 1000)
}

// SetMicros sets the system clock. Target code calls it from the main loop
// with the hardware timer value; TimerQueue calls it before every dispatch.
func SetMicros(us uint64) {
	setSystemMicros(us)
}
