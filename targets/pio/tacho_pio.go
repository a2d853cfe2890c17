//go:build rp2040

// Package pio generates the tachometer output on an RP2040 PIO state
// machine so tacho pulses never cost the ignition interrupt more than a
// FIFO write.
package pio

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// DefaultTachoPulseUS suits most electronic tachometers.
const DefaultTachoPulseUS = 2000

// Each queued word is a pulse length in PIO cycles; the pin is held high
// for that long then released.
//
//	pull block
//	out  x, 32
//	set  pins, 1
//	loop: jmp x--, loop
//	set  pins, 0
const (
	tachoOrigin = 0 // jumps are absolute
	tachoLoop   = 3
)

func buildTachoProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Pull(false, true).Encode(),
		asm.Out(rp2pio.OutDestX, 32).Encode(),
		asm.Set(rp2pio.SetDestPins, 1).Encode(),
		asm.Jmp(tachoLoop, rp2pio.JmpXNZeroDec).Encode(),
		asm.Set(rp2pio.SetDestPins, 0).Encode(),
	}
}

// TachoPIO emits fixed-width tacho pulses. It satisfies core.TachoOutput.
type TachoPIO struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	pin     machine.Pin
	pulseUS uint32
	dropped uint32
}

// NewTachoPIO loads the program on PIO pioNum, state machine smNum, and
// drives pin. The state machine is clocked at 1MHz so one loop is 1µs.
func NewTachoPIO(pioNum, smNum uint8, pin machine.Pin, pulseUS uint32) (*TachoPIO, error) {
	hw := rp2pio.PIO0
	if pioNum != 0 {
		hw = rp2pio.PIO1
	}
	t := &TachoPIO{
		pio:     hw,
		sm:      hw.StateMachine(smNum),
		pin:     pin,
		pulseUS: max(pulseUS, 1),
	}
	t.sm.TryClaim()

	program := buildTachoProgram()
	offset, err := hw.AddProgram(program, tachoOrigin)
	if err != nil {
		return nil, err
	}
	pin.Configure(machine.PinConfig{Mode: hw.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	// 125MHz system clock / 125 = 1MHz
	cfg.SetClkDivIntFrac(125, 0)

	// pin directions only stick after Init
	t.sm.Init(offset, cfg)
	t.sm.SetPindirsConsecutive(pin, 1, true)
	t.sm.SetPinsConsecutive(pin, 1, false)
	t.sm.SetEnabled(true)
	return t, nil
}

// Pulse queues one pulse. It never blocks: with the FIFO full the pulse is
// dropped and counted.
func (t *TachoPIO) Pulse() {
	if t.sm.IsTxFIFOFull() {
		t.dropped++
		return
	}
	// the loop runs x+1 times
	t.sm.TxPut(t.pulseUS - 1)
}

// Dropped returns how many pulses were lost to a full FIFO.
func (t *TachoPIO) Dropped() uint32 { return t.dropped }
