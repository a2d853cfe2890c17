package core

// camTimeoutRevs is how many crank revolutions may pass without a cam pulse
// before full sync falls back to half sync.
const camTimeoutRevs = 3

// PulseDecoder is the simplest Decoder: one crank pulse per revolution at
// TDC of cylinder 1 and, optionally, one cam pulse per engine cycle. Angle
// between pulses is interpolated from the last revolution time. It backs the
// simulator and boards wired to a single hall sensor.
type PulseDecoder struct {
	engine *Engine

	lastPulse    uint32 // µs
	pulses       uint8
	secondHalf   bool // crank is in 360-720° of the cycle
	camPending   bool
	revsSinceCam uint8
	sync         SyncStatus
}

// NewPulseDecoder returns a decoder with no sync.
func NewPulseDecoder() *PulseDecoder {
	return &PulseDecoder{revsSinceCam: camTimeoutRevs}
}

// Attach connects the decoder to the engine it feeds. It must be called
// before the first pulse.
func (d *PulseDecoder) Attach(e *Engine) {
	d.engine = e
}

// CrankPulse records a crank pulse at nowUS. Call it from the pin
// interrupt.
func (d *PulseDecoder) CrankPulse(nowUS uint32) {
	if d.pulses > 0 {
		d.engine.OnRevolution(nowUS - d.lastPulse)
	}
	d.lastPulse = nowUS
	if d.pulses < 2 {
		d.pulses++
	}

	if d.camPending {
		d.camPending = false
		d.secondHalf = false
		d.revsSinceCam = 0
	} else {
		d.secondHalf = !d.secondHalf
		if d.revsSinceCam < camTimeoutRevs {
			d.revsSinceCam++
		}
	}

	switch {
	case d.pulses < 2:
		d.sync = SyncNone
	case d.revsSinceCam < camTimeoutRevs:
		d.sync = SyncFull
	default:
		d.sync = SyncHalf
	}
	if d.sync != SyncNone {
		d.engine.OnTooth()
	}
}

// CamPulse records a cam pulse. The next crank pulse starts a new cycle.
func (d *PulseDecoder) CamPulse() {
	d.camPending = true
}

// CheckStall drops sync when no crank pulse has arrived for longer than the
// slowest revolution the timebase accepts.
func (d *PulseDecoder) CheckStall(nowUS uint32) bool {
	if d.pulses == 0 || nowUS-d.lastPulse < MaxRevolutionTime {
		return false
	}
	d.pulses = 0
	d.sync = SyncNone
	d.revsSinceCam = camTimeoutRevs
	d.engine.OnStall()
	return true
}

// SyncStatus implements Decoder.
func (d *PulseDecoder) SyncStatus() SyncStatus {
	return d.sync
}

// CrankAngle implements Decoder. Under full sync the angle covers the whole
// 720° cycle.
func (d *PulseDecoder) CrankAngle() uint16 {
	if d.sync == SyncNone || d.engine == nil {
		return 0
	}
	since := Micros() - d.lastPulse
	angle := d.engine.Timebase().TimeToAngle(since)
	if angle >= 360 {
		angle = 359
	}
	if d.sync == SyncFull && d.secondHalf {
		angle += 360
	}
	return uint16(angle)
}
