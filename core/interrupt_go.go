//go:build !tinygo

package core

// State is the saved interrupt mask. Host builds have no interrupt
// controller: timer handlers are dispatched synchronously by TimerQueue, so
// a critical section has nothing to suppress.
type State uintptr

func disableInterrupts() State {
	return 0
}

func restoreInterrupts(state State) {}
