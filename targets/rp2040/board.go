//go:build rp2040

package main

import (
	"machine"

	"sparkcore/core"
	"sparkcore/targets/pio"
)

// Pin map.
const (
	crankPin = machine.GPIO10
	camPin   = machine.GPIO11
	tachoPin = machine.GPIO12
)

// Direct-drive outputs, one GPIO per injector and per coil.
var (
	injectorPins = [...]machine.Pin{machine.GPIO2, machine.GPIO3, machine.GPIO4, machine.GPIO5}
	coilPins     = [...]machine.Pin{machine.GPIO6, machine.GPIO7, machine.GPIO8, machine.GPIO9}
)

// outputDriver selects how outputs are switched: "pins" drives GPIOs,
// "mc33810" drives two MC33810 low-side drivers on SPI1. Set it at build
// time with -ldflags "-X main.outputDriver=mc33810".
var outputDriver = "pins"

// engineConfig is the calibration flashed with the firmware: a
// four-cylinder four-stroke, paired injection, wasted spark.
func engineConfig() *core.Config {
	return &core.Config{
		Cylinders:   4,
		Strokes:     core.FourStroke,
		EngineType:  core.EvenFire,
		InjLayout:   core.InjPaired,
		InjPairing:  core.InjPair13_24,
		InjTiming:   true,
		ReqFuel:     86,
		SparkMode:   core.SparkWasted,
		TachoDiv:    1,
		ProtectCut:  core.ProtectCutBoth,
		HardCutType: core.HardCutFull,
		HardRevMode: core.HardRevFixed,
		HardRevLim:  60,
		SoftRevLim:  58,
		SoftLimMax:  20,
		RollingCutTable: core.Table2D{
			Bins:   []int16{-30, -20, -10, 0},
			Values: []int16{0, 30, 60, 100},
		},
		EngineProtectMaxRPM: 30,
		StartupRevolutions:  1,
		UseDwellLimit:       true,
		DwellLimit:          8,
		IgnCrankLock:        true,
		CrankRPM:            4,
	}
}

// benchRequest is the fixed fueling request armed every pass. Fuel and
// spark maps live on a separate board; this one only schedules.
var benchRequest = core.FuelingRequest{
	PulseWidth:          3000,
	SecondaryPulseWidth: 3000,
	InjAngle:            355,
	Advance:             15,
	DwellUS:             3000,
}

// pinOutputs switches GPIOs directly.
type pinOutputs struct{}

func newPinOutputs() pinOutputs {
	for _, p := range injectorPins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
	for _, p := range coilPins {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
	return pinOutputs{}
}

func (pinOutputs) OpenInjector(n uint8) {
	if int(n) < len(injectorPins) {
		injectorPins[n].High()
	}
}

func (pinOutputs) CloseInjector(n uint8) {
	if int(n) < len(injectorPins) {
		injectorPins[n].Low()
	}
}

func (pinOutputs) BeginCoilCharge(n uint8) {
	if int(n) < len(coilPins) {
		coilPins[n].High()
	}
}

func (pinOutputs) EndCoilCharge(n uint8) {
	if int(n) < len(coilPins) {
		coilPins[n].Low()
	}
}

// newBoard builds the timers, outputs and tacho for the engine.
func newBoard(q *core.TimerQueue, n int) (core.Board, []*core.VirtualTimer, []*core.VirtualTimer) {
	var board core.Board
	switch outputDriver {
	case "mc33810":
		d, err := newMC33810Outputs()
		if err != nil {
			core.DebugPrintln("[BOARD] mc33810 init failed, using pins")
			board.Outputs = newPinOutputs()
		} else {
			board.Outputs = d
		}
	default:
		board.Outputs = newPinOutputs()
	}

	tacho, err := pio.NewTachoPIO(0, 0, tachoPin, pio.DefaultTachoPulseUS)
	if err != nil {
		core.DebugPrintln("[BOARD] tacho disabled")
	} else {
		board.Tacho = tacho
	}

	fuel := make([]*core.VirtualTimer, n)
	ign := make([]*core.VirtualTimer, n)
	for i := 0; i < n; i++ {
		fuel[i] = q.NewChannel()
		ign[i] = q.NewChannel()
		board.FuelTimers = append(board.FuelTimers, fuel[i])
		board.IgnitionTimers = append(board.IgnitionTimers, ign[i])
	}
	return board, fuel, ign
}

// initTriggers wires the crank and cam hall sensors to the decoder.
func initTriggers(d *core.PulseDecoder) {
	crankPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	camPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	crankPin.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		UpdateSystemTime()
		d.CrankPulse(core.Micros())
	})
	camPin.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		d.CamPulse()
	})
}
