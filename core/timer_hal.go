package core

// TimerChannel is one hardware compare channel of a 16-bit schedule timer.
// Each Schedule is bound to exactly one TimerChannel for the life of the
// process. The channel's interrupt handler must call Schedule.OnCompare when
// the counter reaches the compare value.
type TimerChannel interface {
	// Counter returns the free-running counter value in ticks.
	Counter() uint16

	// SetCompare sets the tick value at which the next compare match fires.
	SetCompare(compare uint16)

	// Compare returns the current compare value.
	Compare() uint16

	// Enable unmasks the compare interrupt.
	Enable()

	// Disable masks the compare interrupt.
	Disable()
}
