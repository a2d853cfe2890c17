package outputs

import (
	"tinygo.org/x/drivers"

	"sparkcore/core"
)

// MC33810 on/off command: the upper byte selects the command, the lower
// byte carries one bit per output. Bits 0-3 are the injector drivers
// OUT0-OUT3, bits 4-7 the ignition gate drivers GD0-GD3.
const (
	mc33810OnOffCmd  = 0x30
	mc33810Outputs   = 4
	mc33810CoilShift = 4
)

// Select drives a chip-select line; active means selected.
type Select func(active bool)

// MC33810 drives up to two MC33810 engine-control ICs on one SPI bus. The
// first chip carries injectors and coils 0-3, the second 4-7. Every edge
// rewrites the chip's whole on/off word.
type MC33810 struct {
	bus   drivers.SPI
	chips []mc33810Chip
}

type mc33810Chip struct {
	cs    Select
	state uint8
	tx    [2]byte
}

// NewMC33810 binds one chip per chip-select.
func NewMC33810(bus drivers.SPI, selects ...Select) *MC33810 {
	d := &MC33810{bus: bus, chips: make([]mc33810Chip, len(selects))}
	for i, cs := range selects {
		d.chips[i].cs = cs
		cs(false)
	}
	return d
}

// Channels returns how many injectors (and coils) the bank can drive.
func (d *MC33810) Channels() uint8 {
	return uint8(len(d.chips) * mc33810Outputs)
}

func (d *MC33810) OpenInjector(n uint8)    { d.set(n, 0, true) }
func (d *MC33810) CloseInjector(n uint8)   { d.set(n, 0, false) }
func (d *MC33810) BeginCoilCharge(n uint8) { d.set(n, mc33810CoilShift, true) }
func (d *MC33810) EndCoilCharge(n uint8)   { d.set(n, mc33810CoilShift, false) }

func (d *MC33810) set(n, shift uint8, on bool) {
	chip := int(n / mc33810Outputs)
	if chip >= len(d.chips) {
		return
	}
	c := &d.chips[chip]
	bit := uint8(1) << (n%mc33810Outputs + shift)
	if on {
		c.state |= bit
	} else {
		c.state &^= bit
	}
	d.write(c)
}

func (d *MC33810) write(c *mc33810Chip) {
	c.tx[0] = mc33810OnOffCmd
	c.tx[1] = c.state
	c.cs(true)
	// a failed transfer leaves the previous state latched; the next edge
	// rewrites the whole word
	_ = d.bus.Tx(c.tx[:], nil)
	c.cs(false)
}

// State returns the on/off word last written to a chip.
func (d *MC33810) State(chip int) uint8 {
	if chip >= len(d.chips) {
		return 0
	}
	return d.chips[chip].state
}

// AllOff switches every output off.
func (d *MC33810) AllOff() {
	for i := range d.chips {
		d.chips[i].state = 0
		d.write(&d.chips[i])
	}
}

func (d *MC33810) Close() error {
	d.AllOff()
	return nil
}

var _ core.OutputDriver = (*MC33810)(nil)
