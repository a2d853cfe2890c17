//go:build tinygo

package core

var systemMicrosValue uint64

// 64-bit loads are not atomic on Cortex-M0, so both accessors run with
// interrupts masked.
func getSystemMicros() uint64 {
	state := disableInterrupts()
	us := systemMicrosValue
	restoreInterrupts(state)
	return us
}

func setSystemMicros(us uint64) {
	state := disableInterrupts()
	systemMicrosValue = us
	restoreInterrupts(state)
}
