package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures one schedule transition for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Channel   uint8  // Channel id, see channelID
	Clock     uint16 // Timer counter at the event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtArm        = 1 // Schedule armed from OFF/PENDING
	EvtArmQueued  = 2 // Next cycle queued behind a running schedule
	EvtArmDropped = 3 // Arm request beyond MaxTimerPeriod
	EvtStart      = 4 // Start callback fired
	EvtEnd        = 5 // End callback fired
	EvtOverride   = 6 // Pending start tightened by a per-tooth correction
	EvtShorten    = 7 // Running charge shortened
	EvtOverdwell  = 8 // Coil forced off by over-dwell protection
	EvtSyncChange = 9 // Half/full cycle timing switched
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	debugPrintln DebugWriter = func(s string) {}

	debugEnabled bool = false

	// Timing capture ring buffer, written from interrupt context
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8

	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// InitAsyncDebug starts the async debug output goroutine
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking).
// Drops the message when the channel is full.
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordTiming captures a timing event in the ring buffer. Safe to call
// from a compare handler: no allocation, no locking.
func RecordTiming(eventType, channel uint8, clock uint16, value1, value2 uint32) {
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Channel:   channel,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the ring contents from oldest to newest, skipping
// empty slots.
func TimingEvents() []TimingEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	events := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

func (e TimingEvent) String() string {
	return timingEventName(e.EventType) +
		" ch=" + channelName(e.Channel) +
		" clock=" + utoa(uint32(e.Clock)) +
		" v1=" + utoa(e.Value1) +
		" v2=" + utoa(e.Value2)
}

func timingEventName(eventType uint8) string {
	switch eventType {
	case EvtArm:
		return "ARM"
	case EvtArmQueued:
		return "ARM_NEXT"
	case EvtArmDropped:
		return "ARM_DROPPED!"
	case EvtStart:
		return "START"
	case EvtEnd:
		return "END"
	case EvtOverride:
		return "OVERRIDE"
	case EvtShorten:
		return "SHORTEN"
	case EvtOverdwell:
		return "OVERDWELL!"
	case EvtSyncChange:
		return "SYNC"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing outputs the timing ring buffer through the debug writer
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + evt.String())
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
