//go:build !linux || tinygo

package outputs

import "errors"

// GPIOCDev is only available on Linux.
type GPIOCDev struct{}

func NewGPIOCDev(string, []int, []int, int) (*GPIOCDev, error) {
	return nil, errors.New("outputs: gpio character device requires linux")
}

func (*GPIOCDev) OpenInjector(uint8)    {}
func (*GPIOCDev) CloseInjector(uint8)   {}
func (*GPIOCDev) BeginCoilCharge(uint8) {}
func (*GPIOCDev) EndCoilCharge(uint8)   {}
func (*GPIOCDev) AllOff()               {}
func (*GPIOCDev) Pulse()                {}
func (*GPIOCDev) Close() error          { return nil }
