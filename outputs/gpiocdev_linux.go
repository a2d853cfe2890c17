//go:build linux && !tinygo

package outputs

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOCDev drives outputs through the Linux GPIO character device, for
// bench rigs on a single-board computer. Lines are active high.
type GPIOCDev struct {
	chip      *gpiocdev.Chip
	injectors []*gpiocdev.Line
	coils     []*gpiocdev.Line
	tacho     *gpiocdev.Line
}

// TachoPulseWidth is how long the tacho line is held high per pulse.
const TachoPulseWidth = 2 * time.Millisecond

// NewGPIOCDev requests every line as an output driven low. A negative
// tacho offset leaves the tacho output off.
func NewGPIOCDev(chipName string, injectors, coils []int, tacho int) (*GPIOCDev, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("sparkcore"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	g := &GPIOCDev{chip: chip}
	request := func(offsets []int, what string) ([]*gpiocdev.Line, error) {
		lines := make([]*gpiocdev.Line, 0, len(offsets))
		for _, off := range offsets {
			l, err := chip.RequestLine(off, gpiocdev.AsOutput(0))
			if err != nil {
				return lines, fmt.Errorf("request %s line %d: %w", what, off, err)
			}
			lines = append(lines, l)
		}
		return lines, nil
	}
	if g.injectors, err = request(injectors, "injector"); err != nil {
		g.Close()
		return nil, err
	}
	if g.coils, err = request(coils, "coil"); err != nil {
		g.Close()
		return nil, err
	}
	if tacho >= 0 {
		lines, err := request([]int{tacho}, "tacho")
		if err != nil {
			g.Close()
			return nil, err
		}
		g.tacho = lines[0]
	}
	return g, nil
}

func (g *GPIOCDev) OpenInjector(n uint8)    { drive(g.injectors, n, 1) }
func (g *GPIOCDev) CloseInjector(n uint8)   { drive(g.injectors, n, 0) }
func (g *GPIOCDev) BeginCoilCharge(n uint8) { drive(g.coils, n, 1) }
func (g *GPIOCDev) EndCoilCharge(n uint8)   { drive(g.coils, n, 0) }

// Pulse raises the tacho line for TachoPulseWidth. It does nothing without
// a tacho line.
func (g *GPIOCDev) Pulse() {
	if g.tacho == nil {
		return
	}
	_ = g.tacho.SetValue(1)
	time.AfterFunc(TachoPulseWidth, func() { _ = g.tacho.SetValue(0) })
}

func drive(lines []*gpiocdev.Line, n uint8, v int) {
	if int(n) < len(lines) {
		_ = lines[n].SetValue(v)
	}
}

// AllOff drives every line low.
func (g *GPIOCDev) AllOff() {
	for _, l := range g.injectors {
		_ = l.SetValue(0)
	}
	for _, l := range g.coils {
		_ = l.SetValue(0)
	}
}

// Close drives every line low and releases it.
func (g *GPIOCDev) Close() error {
	var errs []error
	g.AllOff()
	lines := append(g.injectors, g.coils...)
	if g.tacho != nil {
		lines = append(lines, g.tacho)
	}
	for _, l := range lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
