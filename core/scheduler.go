package core

// timerWrap is the number of ticks between two matches of an unchanged
// compare register on a 16-bit counter.
const timerWrap = 1 << 16

// VirtualTimer is a TimerChannel multiplexed onto a TimerQueue. A queue of
// virtual channels stands in for the per-channel compare hardware on host
// builds and on targets that only have a single alarm.
type VirtualTimer struct {
	queue   *TimerQueue
	wake    uint64 // absolute tick of the pending match
	compare uint16
	enabled bool
	queued  bool
	next    *VirtualTimer

	// Handler runs on every compare match.
	Handler func()
}

// TimerQueue keeps enabled virtual channels sorted by wake time and
// dispatches their handlers as time advances.
type TimerQueue struct {
	head *VirtualTimer
	now  uint64 // ticks since the queue was created

	// Clock, when set, is the live tick source read by Counter. Hardware
	// targets set it so arms between dispatches see the real counter.
	Clock func() uint64
	// Rearm, when set, is called with the new earliest wake whenever a
	// channel becomes the head of the queue.
	Rearm func(wake uint64)
}

// NewTimerQueue creates an empty queue at tick 0.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{}
}

// NewChannel allocates a virtual compare channel on the queue.
func (q *TimerQueue) NewChannel() *VirtualTimer {
	return &VirtualTimer{queue: q}
}

// Now returns the absolute tick count.
func (q *TimerQueue) Now() uint64 {
	return q.now
}

// NowMicros returns the absolute time in microseconds.
func (q *TimerQueue) NowMicros() uint64 {
	return q.now * TimerTickUS
}

// Pending returns the number of channels waiting for a match.
func (q *TimerQueue) Pending() int {
	n := 0
	for t := q.head; t != nil; t = t.next {
		n++
	}
	return n
}

// NextWake returns the tick of the earliest pending match.
func (q *TimerQueue) NextWake() (uint64, bool) {
	if q.head == nil {
		return 0, false
	}
	return q.head.wake, true
}

// insert adds t in sorted order by wake; equal wake times keep FIFO order.
func (q *TimerQueue) insert(t *VirtualTimer) {
	t.queued = true
	if q.head == nil || t.wake < q.head.wake {
		t.next = q.head
		q.head = t
		if q.Rearm != nil {
			q.Rearm(t.wake)
		}
		return
	}

	current := q.head
	for current.next != nil && current.next.wake <= t.wake {
		current = current.next
	}

	t.next = current.next
	current.next = t
}

func (q *TimerQueue) remove(t *VirtualTimer) {
	if !t.queued {
		return
	}
	t.queued = false
	if q.head == t {
		q.head = t.next
		t.next = nil
		return
	}
	for current := q.head; current != nil; current = current.next {
		if current.next == t {
			current.next = t.next
			t.next = nil
			return
		}
	}
}

// AdvanceTo moves time forward to the absolute tick target, firing every
// compare match due on the way in time order. Handlers may re-arm their own
// or other channels; matches created inside the window are dispatched too.
func (q *TimerQueue) AdvanceTo(target uint64) {
	if target < q.now {
		return
	}
	for q.head != nil && q.head.wake <= target {
		t := q.head
		q.head = t.next
		t.next = nil
		t.queued = false

		q.now = t.wake
		SetMicros(q.NowMicros())

		if t.Handler != nil {
			t.Handler()
		}

		// An untouched compare register matches again one counter wrap later.
		if t.enabled && !t.queued {
			t.wake += timerWrap
			q.insert(t)
		}
	}
	q.now = target
	SetMicros(q.NowMicros())
}

// AdvanceMicros moves time forward by us microseconds.
func (q *TimerQueue) AdvanceMicros(us uint32) {
	q.AdvanceTo(q.now + uint64(us/TimerTickUS))
}

// counter is the tick used as "now" when arming.
func (q *TimerQueue) counter() uint64 {
	if q.Clock != nil {
		if now := q.Clock(); now > q.now {
			return now
		}
	}
	return q.now
}

// Counter implements TimerChannel.
func (t *VirtualTimer) Counter() uint16 {
	return uint16(t.queue.counter())
}

// SetCompare implements TimerChannel. The match is placed at the next time
// the 16-bit counter equals compare; a compare equal to the counter fires
// immediately.
func (t *VirtualTimer) SetCompare(compare uint16) {
	q := t.queue
	t.compare = compare
	now := q.counter()
	t.wake = now + uint64(compare-uint16(now))
	if t.enabled {
		q.remove(t)
		q.insert(t)
	}
}

// Compare implements TimerChannel.
func (t *VirtualTimer) Compare() uint16 {
	return t.compare
}

// Enable implements TimerChannel.
func (t *VirtualTimer) Enable() {
	if t.enabled {
		return
	}
	t.enabled = true
	q := t.queue
	now := q.counter()
	t.wake = now + uint64(t.compare-uint16(now))
	q.insert(t)
}

// Disable implements TimerChannel.
func (t *VirtualTimer) Disable() {
	t.enabled = false
	t.queue.remove(t)
}

// Enabled reports whether the compare interrupt is unmasked.
func (t *VirtualTimer) Enabled() bool {
	return t.enabled
}
