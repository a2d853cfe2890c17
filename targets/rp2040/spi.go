//go:build rp2040

package main

import (
	"machine"

	"sparkcore/outputs"
)

// MC33810 bus: SPI1 with one chip select per driver IC. The chip latches
// on the falling clock edge, so the bus runs in mode 1.
var mc33810Bus = struct {
	spi     *machine.SPI
	sck     machine.Pin
	sdo     machine.Pin
	sdi     machine.Pin
	selects [2]machine.Pin
	freq    uint32
}{
	spi:     machine.SPI1,
	sck:     machine.GPIO26,
	sdo:     machine.GPIO27,
	sdi:     machine.GPIO28,
	selects: [2]machine.Pin{machine.GPIO13, machine.GPIO14},
	freq:    4000000,
}

// newMC33810Outputs brings up the bus and returns a driver with every
// output off.
func newMC33810Outputs() (*outputs.MC33810, error) {
	b := mc33810Bus
	err := b.spi.Configure(machine.SPIConfig{
		Frequency: b.freq,
		SCK:       b.sck,
		SDO:       b.sdo,
		SDI:       b.sdi,
		Mode:      1,
	})
	if err != nil {
		return nil, err
	}
	selects := make([]outputs.Select, 0, len(b.selects))
	for _, cs := range b.selects {
		cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
		pin := cs
		selects = append(selects, func(active bool) { pin.Set(!active) })
	}
	d := outputs.NewMC33810(b.spi, selects...)
	d.AllOff()
	return d, nil
}
