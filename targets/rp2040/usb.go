//go:build rp2040

package main

import (
	"machine"

	"sparkcore/protocol"
)

// The host link runs over the USB CDC-ACM port TinyGo exposes as
// machine.Serial; the line coding is ignored.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

// hostAttached reports whether a host has the port open. Terminal programs
// and pyserial both raise DTR on open.
func hostAttached() bool {
	return machine.Serial.DTR()
}

// usbDrain moves every buffered byte that fits into fifo and returns how
// many were moved.
func usbDrain(fifo *protocol.FifoBuffer) int {
	var one [1]byte
	moved := 0
	for machine.Serial.Buffered() > 0 && fifo.Free() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		one[0] = b
		moved += fifo.Write(one[:])
	}
	return moved
}

func usbWrite(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
