package sim

import (
	"context"
	"time"

	"sparkcore/core"
	"sparkcore/outputs"
)

// ChannelReport summarises one output over a run.
type ChannelReport struct {
	Channel   uint8
	Pulses    int
	MeanWidth uint32 // µs, completed pulses only
}

// Report is the result of Simulate.
type Report struct {
	RPM         uint16
	Revolutions int
	Duration    time.Duration // simulated
	Fuel        []ChannelReport
	Ignition    []ChannelReport
	Tacho       int
	Diagnostics core.Diagnostics
}

// Simulate spins the crank at rpm for revs revolutions as fast as the host
// allows and reports what every output did. Recorded edges are cleared
// first. The crank keeps turning afterwards.
func (s *Simulator) Simulate(rpm uint16, revs int) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec.Reset()
	start := s.queue.Now()
	startRevs := s.revs
	s.setRPM(rpm)
	s.log.Debug("simulating", "rpm", rpm, "revolutions", revs)
	if s.revTicks != 0 && revs > 0 {
		// One revolution past the last pulse lets its outputs finish.
		s.advanceTo(s.nextCrank + uint64(revs)*s.revTicks - 1)
	}

	l := s.engine.ChannelMap()
	r := Report{
		RPM:         rpm,
		Revolutions: s.revs - startRevs,
		Duration:    time.Duration((s.queue.Now()-start)*core.TimerTickUS) * time.Microsecond,
		Fuel:        channelReports(s.rec, core.OutputFuel, l.FuelChannels()),
		Ignition:    channelReports(s.rec, core.OutputIgnition, l.IgnChannels),
		Tacho:       s.rec.TachoPulses(),
		Diagnostics: s.engine.Diagnostics(),
	}
	s.log.Info("simulation finished", "rpm", r.RPM, "revolutions", r.Revolutions,
		"injections", r.Diagnostics.Injections, "sparks", r.Diagnostics.Sparks)
	return r
}

func channelReports(rec *outputs.Recorder, kind core.OutputKind, n uint8) []ChannelReport {
	out := make([]ChannelReport, n)
	for ch := uint8(0); ch < n; ch++ {
		out[ch] = channelReport(rec.Edges(kind, ch), ch)
	}
	return out
}

func channelReport(edges []outputs.Event, ch uint8) ChannelReport {
	r := ChannelReport{Channel: ch}
	var (
		total  uint64
		widths int
		onAt   uint32
		on     bool
	)
	for _, e := range edges {
		switch {
		case e.On:
			r.Pulses++
			onAt, on = e.At, true
		case on:
			total += uint64(e.At - onAt)
			widths++
			on = false
		}
	}
	if widths > 0 {
		r.MeanWidth = uint32(total / uint64(widths))
	}
	return r
}

// RunRealtime advances simulated time in step with the wall clock until ctx
// is done. tick is the pacing interval.
func (s *Simulator) RunRealtime(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			s.Advance(uint32(elapsed.Microseconds()))
		}
	}
}
