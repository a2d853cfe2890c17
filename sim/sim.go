// Package sim runs the scheduling core against a virtual crank. Timer
// channels are multiplexed on a core.TimerQueue, outputs land in an
// outputs.Recorder, and a single crank pulse per revolution feeds a
// core.PulseDecoder. The simulator can run a fixed number of revolutions as
// fast as possible or pace itself against the wall clock while serving the
// host link.
package sim

import (
	"log/slog"
	"sync"
	"time"

	"sparkcore/config"
	"sparkcore/core"
	"sparkcore/outputs"
)

// DefaultStepUS is how often the foreground loop runs in simulated time.
const DefaultStepUS = 1000

// Simulator owns one engine and its virtual hardware. Every method is safe
// for concurrent use; the link and the clock share one lock.
type Simulator struct {
	mu sync.Mutex

	cfg     *config.Config
	log     *slog.Logger
	queue   *core.TimerQueue
	decoder *core.PulseDecoder
	engine  *core.Engine
	rec     *outputs.Recorder

	sensors core.Sensors
	request core.FuelingRequest
	cam     bool
	stepUS  uint32

	revTicks  uint64 // 0 when the crank is stopped
	nextCrank uint64 // tick of the next crank pulse
	nextStep  uint64
	revs      int
}

// New builds a simulator for cfg. extra, if non-nil, receives every output
// edge as well as the recorder, so a bench rig can mirror the simulation
// on real pins.
func New(cfg *config.Config, extra core.OutputDriver, log *slog.Logger) *Simulator {
	if log == nil {
		log = slog.Default()
	}
	s := &Simulator{
		cfg:     cfg,
		log:     log.With("component", "sim"),
		queue:   core.NewTimerQueue(),
		decoder: core.NewPulseDecoder(),
		rec:     outputs.NewRecorder(),
		stepUS:  DefaultStepUS,
		cam:     true,
		request: core.FuelingRequest{
			PulseWidth:          cfg.Sim.PulseWidth,
			SecondaryPulseWidth: cfg.Sim.PulseWidth,
			InjAngle:            cfg.Sim.InjAngle,
			Advance:             cfg.Sim.Advance,
			DwellUS:             cfg.Sim.Dwell,
		},
	}
	core.SetMicros(0)

	board := core.Board{Outputs: s.rec, Tacho: s.rec}
	if extra != nil {
		board.Outputs = tee{s.rec, extra}
		if t, ok := extra.(core.TachoOutput); ok {
			board.Tacho = tachoTee{s.rec, t}
		}
	}
	n := int(cfg.Engine.Cylinders)
	fuel := make([]*core.VirtualTimer, n)
	ign := make([]*core.VirtualTimer, n)
	for i := 0; i < n; i++ {
		fuel[i] = s.queue.NewChannel()
		ign[i] = s.queue.NewChannel()
		board.FuelTimers = append(board.FuelTimers, fuel[i])
		board.IgnitionTimers = append(board.IgnitionTimers, ign[i])
	}
	s.engine = core.NewEngine(&cfg.Engine, board, s.decoder, core.NewRandomSource(uint64(time.Now().UnixNano())))
	s.decoder.Attach(s.engine)
	for i := 0; i < n; i++ {
		ch := uint8(i)
		fuel[i].Handler = func() { s.engine.FuelCompare(ch) }
		ign[i].Handler = func() { s.engine.IgnitionCompare(ch) }
	}
	s.rec.Reset()
	return s
}

// Engine returns the simulated engine. Callers that touch it while the
// simulator runs must hold Lock.
func (s *Simulator) Engine() *core.Engine {
	return s.engine
}

// Recorder returns the output recorder.
func (s *Simulator) Recorder() *outputs.Recorder {
	return s.rec
}

// Lock and Unlock guard the engine against the simulation clock.
func (s *Simulator) Lock()   { s.mu.Lock() }
func (s *Simulator) Unlock() { s.mu.Unlock() }

// SetSensors replaces the sensor readings fed to protection.
func (s *Simulator) SetSensors(sensors core.Sensors) {
	s.mu.Lock()
	s.sensors = sensors
	s.mu.Unlock()
}

// SetRequest replaces the fueling request armed on every pass.
func (s *Simulator) SetRequest(req core.FuelingRequest) {
	s.mu.Lock()
	s.request = req
	s.mu.Unlock()
}

// SetCam turns the cam signal on or off. Without it the decoder runs in
// half sync.
func (s *Simulator) SetCam(on bool) {
	s.mu.Lock()
	s.cam = on
	s.mu.Unlock()
}

// SetRPM changes crank speed from the next pulse on. Zero stops the crank
// and lets the decoder stall.
func (s *Simulator) SetRPM(rpm uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRPM(rpm)
}

func (s *Simulator) setRPM(rpm uint16) {
	if rpm == 0 {
		s.revTicks = 0
		return
	}
	revUS := uint64(core.MicrosPerMinute / uint32(rpm))
	wasStopped := s.revTicks == 0
	s.revTicks = revUS / core.TimerTickUS
	if wasStopped {
		s.nextCrank = s.queue.Now()
	}
}

// Advance moves simulated time forward by us microseconds.
func (s *Simulator) Advance(us uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceTo(s.queue.Now() + uint64(us/core.TimerTickUS))
}

// advanceTo runs the crank, the timer queue and the foreground loop up to
// the absolute tick target. Caller holds mu.
func (s *Simulator) advanceTo(target uint64) {
	stepTicks := uint64(s.stepUS / core.TimerTickUS)
	for {
		next := s.nextStep
		crank := s.revTicks != 0 && s.nextCrank <= next
		if crank {
			next = s.nextCrank
		}
		if next > target {
			break
		}
		s.queue.AdvanceTo(next)

		if crank {
			if s.cam && s.revs%2 == 0 {
				s.decoder.CamPulse()
			}
			s.decoder.CrankPulse(core.Micros())
			s.revs++
			s.nextCrank += s.revTicks
			continue
		}

		now := core.Micros()
		if s.decoder.CheckStall(now) {
			s.log.Info("crank stalled", "revolutions", s.revs)
		}
		s.engine.CheckOverdwell(now)
		s.engine.Update(s.sensors, s.request)
		s.nextStep += stepTicks
	}
	s.queue.AdvanceTo(target)
}

// Now returns simulated time.
func (s *Simulator) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.queue.NowMicros()) * time.Microsecond
}

// Diagnostics snapshots the engine.
func (s *Simulator) Diagnostics() core.Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Diagnostics()
}

// tee fans every edge out to two drivers.
type tee [2]core.OutputDriver

func (t tee) OpenInjector(n uint8) {
	t[0].OpenInjector(n)
	t[1].OpenInjector(n)
}

func (t tee) CloseInjector(n uint8) {
	t[0].CloseInjector(n)
	t[1].CloseInjector(n)
}

func (t tee) BeginCoilCharge(n uint8) {
	t[0].BeginCoilCharge(n)
	t[1].BeginCoilCharge(n)
}

func (t tee) EndCoilCharge(n uint8) {
	t[0].EndCoilCharge(n)
	t[1].EndCoilCharge(n)
}

type tachoTee [2]core.TachoOutput

func (t tachoTee) Pulse() {
	t[0].Pulse()
	t[1].Pulse()
}
