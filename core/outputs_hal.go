package core

// OutputKind selects the fuel or ignition bank.
type OutputKind uint8

const (
	OutputFuel OutputKind = iota
	OutputIgnition
)

func (k OutputKind) String() string {
	if k == OutputIgnition {
		return "ignition"
	}
	return "fuel"
}

// OutputDriver switches the physical injector and coil outputs. Outputs are
// numbered from 0. Methods are called from timer interrupt context and must
// not block or allocate. Whether the pin is a direct GPIO or a channel of an
// SPI driver IC is the implementation's business.
type OutputDriver interface {
	OpenInjector(n uint8)
	CloseInjector(n uint8)
	BeginCoilCharge(n uint8)
	EndCoilCharge(n uint8)
}

// TachoOutput emits one tachometer pulse per call.
type TachoOutput interface {
	Pulse()
}
