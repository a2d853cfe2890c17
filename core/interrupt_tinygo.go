//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks every interrupt and returns the previous mask.
// Schedule compare handlers cannot preempt code between this call and the
// matching restoreInterrupts.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
