// Package outputs drives injector and coil outputs for the scheduling core:
// an SPI low-side driver IC, Linux GPIO lines, and a recorder for the
// simulator and tests.
package outputs

import "sparkcore/core"

// Driver is an output bank that also owns hardware to release.
type Driver interface {
	core.OutputDriver
	// AllOff drives every output to its safe state.
	AllOff()
	Close() error
}
