package core

// ScheduleStatus is the state of one output channel's timer state machine.
type ScheduleStatus uint8

const (
	// ScheduleOff: nothing armed, nothing running, compare interrupt masked.
	ScheduleOff ScheduleStatus = iota
	// SchedulePending: start compare armed.
	SchedulePending
	// SchedulePendingWithOverride: start compare tightened by a per-tooth
	// correction; a foreground re-arm keeps the corrected compare.
	SchedulePendingWithOverride
	// ScheduleRunning: start callback fired, end compare armed.
	ScheduleRunning
	// ScheduleRunningWithNext: running, with one further cycle queued.
	ScheduleRunningWithNext
)

func (s ScheduleStatus) String() string {
	switch s {
	case ScheduleOff:
		return "OFF"
	case SchedulePending:
		return "PENDING"
	case SchedulePendingWithOverride:
		return "PENDING_WITH_OVERRIDE"
	case ScheduleRunning:
		return "RUNNING"
	case ScheduleRunningWithNext:
		return "RUNNING_WITHNEXT"
	default:
		return "UNKNOWN"
	}
}

// Schedule drives one output through delay -> start action -> end action
// using a single hardware compare channel. It knows nothing about fuel or
// ignition; the callbacks carry the meaning.
//
// OnCompare is the only writer of status, duration and the compare register
// from interrupt context. Foreground methods wrap their read-modify-write in
// a critical section.
type Schedule struct {
	timer TimerChannel
	id    uint8 // channelID, used for timing events only

	status           ScheduleStatus
	duration         uint16 // ticks of the current or pending run
	nextStartCompare uint16 // valid only in ScheduleRunningWithNext
	nextDuration     uint16 // valid only in ScheduleRunningWithNext

	startCallback func()
	endCallback   func()
}

// NewSchedule binds a schedule to its timer channel. The schedule starts OFF
// with no-op callbacks.
func NewSchedule(timer TimerChannel) Schedule {
	return Schedule{
		timer:         timer,
		startCallback: nullCallback,
		endCallback:   nullCallback,
	}
}

func nullCallback() {}

// SetCallbacks installs the start and end actions. nil means no-op.
func (s *Schedule) SetCallbacks(start, end func()) {
	if start == nil {
		start = nullCallback
	}
	if end == nil {
		end = nullCallback
	}
	state := disableInterrupts()
	s.startCallback = start
	s.endCallback = end
	restoreInterrupts(state)
}

// SetSchedule arms the schedule to start timeout µs from now and run for
// duration µs. Requests with either value at or above MaxTimerPeriod are
// dropped without touching state or registers. If the schedule is already
// running the request is queued as the next cycle, replacing any earlier
// queued request.
func (s *Schedule) SetSchedule(timeout, duration uint32) {
	if timeout >= MaxTimerPeriod || duration >= MaxTimerPeriod {
		RecordTiming(EvtArmDropped, s.id, 0, timeout, duration)
		return
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	counter := s.timer.Counter()
	switch s.status {
	case ScheduleRunning, ScheduleRunningWithNext:
		s.nextStartCompare = counter + usToTicks(timeout)
		s.nextDuration = usToTicks(duration)
		s.status = ScheduleRunningWithNext
		RecordTiming(EvtArmQueued, s.id, counter, timeout, duration)
	case SchedulePendingWithOverride:
		// The decoder-corrected start is the better estimate.
		s.duration = usToTicks(duration)
	default:
		s.duration = usToTicks(duration)
		s.timer.SetCompare(counter + usToTicks(timeout))
		s.status = SchedulePending
		s.timer.Enable()
		RecordTiming(EvtArm, s.id, counter, timeout, duration)
	}
}

// OnCompare advances the state machine. It must be called from the bound
// timer channel's compare interrupt and from nowhere else.
func (s *Schedule) OnCompare() {
	switch s.status {
	case SchedulePending, SchedulePendingWithOverride:
		s.startCallback()
		s.status = ScheduleRunning
		counter := s.timer.Counter()
		s.timer.SetCompare(counter + s.duration)
		RecordTiming(EvtStart, s.id, counter, ticksToUS(s.duration), 0)
	case ScheduleRunningWithNext:
		s.endCallback()
		s.status = SchedulePending
		s.timer.SetCompare(s.nextStartCompare)
		s.duration = s.nextDuration
		RecordTiming(EvtEnd, s.id, s.timer.Counter(), 1, 0)
	case ScheduleRunning:
		s.endCallback()
		s.status = ScheduleOff
		s.timer.Disable()
		RecordTiming(EvtEnd, s.id, s.timer.Counter(), 0, 0)
	default:
		// Spurious match while OFF.
		s.timer.Disable()
	}
}

// OverridePendingStart moves a pending start to timeout µs from now when
// that is earlier than the currently armed start. Duration is unchanged.
// Returns true if the compare was moved.
func (s *Schedule) OverridePendingStart(timeout uint32) bool {
	if timeout >= MaxTimerPeriod {
		return false
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.status != SchedulePending && s.status != SchedulePendingWithOverride {
		return false
	}
	counter := s.timer.Counter()
	remaining := s.timer.Compare() - counter
	ticks := usToTicks(timeout)
	if ticks >= remaining {
		return false
	}
	s.timer.SetCompare(counter + ticks)
	s.status = SchedulePendingWithOverride
	RecordTiming(EvtOverride, s.id, counter, timeout, ticksToUS(remaining))
	return true
}

// ShortenRunning pulls the end of a running action in to remaining µs from
// now. It never extends the action. Returns true if the compare was moved.
func (s *Schedule) ShortenRunning(remaining uint32) bool {
	if remaining >= MaxTimerPeriod {
		return false
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.status != ScheduleRunning && s.status != ScheduleRunningWithNext {
		return false
	}
	counter := s.timer.Counter()
	current := s.timer.Compare() - counter
	ticks := usToTicks(remaining)
	if ticks >= current {
		return false
	}
	s.timer.SetCompare(counter + ticks)
	RecordTiming(EvtShorten, s.id, counter, remaining, ticksToUS(current))
	return true
}

// ForceOff ends a running action immediately by calling the end callback
// and returns the schedule to OFF. Returns true if an action was running.
func (s *Schedule) ForceOff() bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.status != ScheduleRunning && s.status != ScheduleRunningWithNext {
		return false
	}
	s.endCallback()
	s.status = ScheduleOff
	s.timer.Disable()
	return true
}

// CancelPending drops an armed start that has not fired yet. A running
// action is left alone. Returns true if a pending start was dropped.
func (s *Schedule) CancelPending() bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.status != SchedulePending && s.status != SchedulePendingWithOverride {
		return false
	}
	s.status = ScheduleOff
	s.timer.Disable()
	return true
}

// Reset returns the schedule to OFF without calling any callback. Any
// pending or queued cycle is discarded.
func (s *Schedule) Reset() {
	state := disableInterrupts()
	s.status = ScheduleOff
	s.duration = 0
	s.nextStartCompare = 0
	s.nextDuration = 0
	s.timer.Disable()
	restoreInterrupts(state)
}

// Status returns the current state.
func (s *Schedule) Status() ScheduleStatus {
	state := disableInterrupts()
	status := s.status
	restoreInterrupts(state)
	return status
}

// IsRunning reports whether the action is in progress.
func (s *Schedule) IsRunning() bool {
	status := s.Status()
	return status == ScheduleRunning || status == ScheduleRunningWithNext
}

// Duration returns the armed duration in µs.
func (s *Schedule) Duration() uint32 {
	state := disableInterrupts()
	d := s.duration
	restoreInterrupts(state)
	return ticksToUS(d)
}

// NextDuration returns the queued duration in µs; valid only while
// ScheduleRunningWithNext.
func (s *Schedule) NextDuration() uint32 {
	state := disableInterrupts()
	d := s.nextDuration
	restoreInterrupts(state)
	return ticksToUS(d)
}
