package outputs

import (
	"sync"

	"sparkcore/core"
)

// Event is one output edge.
type Event struct {
	Kind    core.OutputKind
	Channel uint8
	On      bool
	At      uint32 // core.Micros() when the edge happened
}

// Recorder keeps every edge and the current level of each output. It
// stands in for hardware in the simulator and in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	level  [2][core.MaxChannels]bool
	tacho  int
	// Limit caps the stored events; older ones are dropped. Zero keeps all.
	Limit int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(kind core.OutputKind, n uint8, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < core.MaxChannels {
		r.level[kind][n] = on
	}
	r.events = append(r.events, Event{Kind: kind, Channel: n, On: on, At: core.Micros()})
	if r.Limit > 0 && len(r.events) > r.Limit {
		r.events = append(r.events[:0], r.events[len(r.events)-r.Limit:]...)
	}
}

func (r *Recorder) OpenInjector(n uint8)    { r.record(core.OutputFuel, n, true) }
func (r *Recorder) CloseInjector(n uint8)   { r.record(core.OutputFuel, n, false) }
func (r *Recorder) BeginCoilCharge(n uint8) { r.record(core.OutputIgnition, n, true) }
func (r *Recorder) EndCoilCharge(n uint8)   { r.record(core.OutputIgnition, n, false) }

// Pulse counts a tachometer pulse.
func (r *Recorder) Pulse() {
	r.mu.Lock()
	r.tacho++
	r.mu.Unlock()
}

// AllOff clears every level without recording edges.
func (r *Recorder) AllOff() {
	r.mu.Lock()
	r.level = [2][core.MaxChannels]bool{}
	r.mu.Unlock()
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded edges.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Edges returns the edges of one output.
func (r *Recorder) Edges(kind core.OutputKind, n uint8) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind && e.Channel == n {
			out = append(out, e)
		}
	}
	return out
}

// Pulses counts the rising edges of one output.
func (r *Recorder) Pulses(kind core.OutputKind, n uint8) int {
	count := 0
	for _, e := range r.Edges(kind, n) {
		if e.On {
			count++
		}
	}
	return count
}

// Level reports whether an output is currently on.
func (r *Recorder) Level(kind core.OutputKind, n uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return n < core.MaxChannels && r.level[kind][n]
}

// TachoPulses returns the tachometer pulse count.
func (r *Recorder) TachoPulses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tacho
}

// Reset forgets every edge and pulse.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.tacho = 0
	r.level = [2][core.MaxChannels]bool{}
	r.mu.Unlock()
}
