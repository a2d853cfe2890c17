// Package serial opens the host end of the controller link: a native serial
// device, or a WebSocket bridge for controllers that sit behind a network
// gateway.
package serial

import (
	"errors"
	"io"
	"strings"
	"time"
)

var ErrNoDevice = errors.New("no device given")

// Port is an open link to a controller.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3") or a ws:// or wss:// URL
	Device string

	// Baud rate; USB CDC ignores it
	Baud int

	// ReadTimeout bounds a single read; 0 blocks. A timed-out read returns
	// (0, nil).
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration the controller firmware expects.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// IsWebSocket reports whether device names a WebSocket bridge.
func IsWebSocket(device string) bool {
	return strings.HasPrefix(device, "ws://") || strings.HasPrefix(device, "wss://")
}

// Open opens cfg.Device, choosing the transport from its form.
func Open(cfg *Config) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, ErrNoDevice
	}
	if IsWebSocket(cfg.Device) {
		return DialWebSocket(cfg.Device)
	}
	return openNative(cfg)
}
