package core

import (
	"errors"

	"sparkcore/protocol"
)

// Responder queues one response message for the host.
type Responder func(cmdID uint16, args func(output protocol.OutputBuffer))

// Test pulse result codes carried by test_pulse_result.
const (
	PulseOK uint8 = iota
	PulseEngineRunning
	PulseInvalidChannel
	PulseInvalidPulse
	PulseShutdown
	PulseUnknown
)

// PulseResult maps a TestPulse error onto its wire code.
func PulseResult(err error) uint8 {
	switch {
	case err == nil:
		return PulseOK
	case errors.Is(err, ErrEngineRunning):
		return PulseEngineRunning
	case errors.Is(err, ErrInvalidChannel):
		return PulseInvalidChannel
	case errors.Is(err, ErrInvalidPulse):
		return PulseInvalidPulse
	case errors.Is(err, ErrShutdown):
		return PulseShutdown
	default:
		return PulseUnknown
	}
}

// PulseError is the inverse of PulseResult.
func PulseError(code uint8) error {
	switch code {
	case PulseOK:
		return nil
	case PulseEngineRunning:
		return ErrEngineRunning
	case PulseInvalidChannel:
		return ErrInvalidChannel
	case PulseInvalidPulse:
		return ErrInvalidPulse
	case PulseShutdown:
		return ErrShutdown
	default:
		return errors.New("test pulse failed")
	}
}

// status flag bits
const (
	statusFullSync = 1 << iota
	statusShutdown
)

// Command names and formats shared with the host.
const (
	CmdIdentifyResponse = "identify_response"
	CmdIdentify         = "identify"
	CmdGetClock         = "get_clock"
	CmdClock            = "clock"
	CmdGetUptime        = "get_uptime"
	CmdUptime           = "uptime"
	CmdGetStatus        = "get_status"
	CmdStatus           = "status"
	CmdChannelStatus    = "channel_status"
	CmdTestPulse        = "test_pulse"
	CmdTestPulseResult  = "test_pulse_result"
	CmdEmergencyStop    = "emergency_stop"
	CmdRestart          = "restart"
)

// Link exposes an Engine over the serial protocol: identify, status,
// bench test pulses and the emergency stop.
type Link struct {
	engine   *Engine
	registry *CommandRegistry
	dict     *Dictionary
	respond  Responder

	identifyResp, clockResp, uptimeResp uint16
	statusResp, channelResp, pulseResp  uint16
}

// NewLink registers the command set. identify_response and identify take
// ids 0 and 1 so a host can bootstrap before it has the dictionary.
func NewLink(engine *Engine, version string, respond Responder) *Link {
	l := &Link{
		engine:   engine,
		registry: NewCommandRegistry(),
		respond:  respond,
	}
	r := l.registry
	l.identifyResp = r.RegisterResponse(CmdIdentifyResponse, "offset=%u data=%*s")
	r.Register(CmdIdentify, "offset=%u count=%c", l.handleIdentify)

	r.Register(CmdGetClock, "", l.handleGetClock)
	l.clockResp = r.RegisterResponse(CmdClock, "clock=%u")
	r.Register(CmdGetUptime, "", l.handleGetUptime)
	l.uptimeResp = r.RegisterResponse(CmdUptime, "high=%u clock=%u")

	r.Register(CmdGetStatus, "", l.handleGetStatus)
	l.statusResp = r.RegisterResponse(CmdStatus,
		"rpm=%hu revolution_time=%u start_revs=%hu flags=%c cut=%c fuel_mask=%c"+
			" ign_mask=%c ign_pending=%c protect=%c rolling=%c fuel_channels=%c"+
			" ign_channels=%c injections=%u sparks=%u overdwells=%u")
	l.channelResp = r.RegisterResponse(CmdChannelStatus, "kind=%c states=%*s")

	r.Register(CmdTestPulse, "kind=%c channel=%c us=%u", l.handleTestPulse)
	l.pulseResp = r.RegisterResponse(CmdTestPulseResult, "kind=%c channel=%c code=%c")

	r.Register(CmdEmergencyStop, "", l.handleEmergencyStop)
	r.Register(CmdRestart, "", l.handleRestart)

	l.dict = NewDictionary(r, version)
	l.dict.SetConstantUint("CLOCK_FREQ", 1000000)
	l.dict.SetConstantUint("TIMER_FREQ", TimerFreq)
	l.dict.SetConstantUint("MAX_CHANNELS", MaxChannels)
	l.dict.SetConstantUint("CYLINDERS", uint32(engine.Config().Cylinders))
	layout := engine.ChannelMap()
	l.dict.SetConstantUint("FUEL_CHANNELS", uint32(layout.FuelChannels()))
	l.dict.SetConstantUint("IGN_CHANNELS", uint32(layout.IgnChannels))
	return l
}

// Handle runs one command; it has the shape protocol.Transport expects.
func (l *Link) Handle(cmdID uint16, data *[]byte) error {
	return l.registry.Dispatch(cmdID, data)
}

func (l *Link) Registry() *CommandRegistry { return l.registry }
func (l *Link) Dictionary() *Dictionary    { return l.dict }

func (l *Link) handleIdentify(data *[]byte) error {
	args := protocol.NewArgs(data)
	offset := args.Uint()
	count := uint8(args.Uint())
	if err := args.Err(); err != nil {
		return err
	}
	chunk := l.dict.Chunk(offset, count)
	l.respond(l.identifyResp, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})
	return nil
}

func (l *Link) handleGetClock(*[]byte) error {
	now := Micros()
	l.respond(l.clockResp, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, now)
	})
	return nil
}

func (l *Link) handleGetUptime(*[]byte) error {
	up := getSystemMicros()
	l.respond(l.uptimeResp, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(up>>32))
		protocol.EncodeVLQUint(out, uint32(up))
	})
	return nil
}

// handleGetStatus answers with one status message and a channel_status per
// bank.
func (l *Link) handleGetStatus(*[]byte) error {
	d := l.engine.Diagnostics()
	l.respond(l.statusResp, func(out protocol.OutputBuffer) {
		EncodeStatus(out, &d)
	})
	l.respond(l.channelResp, func(out protocol.OutputBuffer) {
		EncodeChannelStatus(out, OutputFuel, &d)
	})
	l.respond(l.channelResp, func(out protocol.OutputBuffer) {
		EncodeChannelStatus(out, OutputIgnition, &d)
	})
	return nil
}

func (l *Link) handleTestPulse(data *[]byte) error {
	args := protocol.NewArgs(data)
	kind := uint8(args.Uint())
	ch := uint8(args.Uint())
	us := args.Uint()
	if err := args.Err(); err != nil {
		return err
	}
	code := PulseResult(l.engine.TestPulse(OutputKind(kind), ch, us))
	l.respond(l.pulseResp, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(kind))
		protocol.EncodeVLQUint(out, uint32(ch))
		protocol.EncodeVLQUint(out, uint32(code))
	})
	return nil
}

func (l *Link) handleEmergencyStop(*[]byte) error {
	l.engine.EmergencyStop()
	return nil
}

func (l *Link) handleRestart(*[]byte) error {
	l.engine.Restart()
	return nil
}

// EncodeStatus writes the arguments of a status message.
func EncodeStatus(out protocol.OutputBuffer, d *Diagnostics) {
	var flags uint32
	if d.FullSync {
		flags |= statusFullSync
	}
	if d.Shutdown {
		flags |= statusShutdown
	}
	for _, v := range [...]uint32{
		uint32(d.RPM),
		d.RevolutionTime,
		uint32(d.StartRevolutions),
		flags,
		uint32(d.Cut.Status),
		uint32(d.Cut.FuelChannels),
		uint32(d.Cut.IgnitionChannels),
		uint32(d.Cut.IgnitionChannelsPending),
		uint32(d.Protect),
		uint32(d.RollingPercent),
		uint32(d.FuelChannels),
		uint32(d.IgnChannels),
		d.Injections,
		d.Sparks,
		d.Overdwells,
	} {
		protocol.EncodeVLQUint(out, v)
	}
}

// DecodeStatus fills d from the arguments of a status message.
func DecodeStatus(data *[]byte, d *Diagnostics) error {
	a := protocol.NewArgs(data)
	d.RPM = uint16(a.Uint())
	d.RevolutionTime = a.Uint()
	d.StartRevolutions = uint16(a.Uint())
	flags := a.Uint()
	d.FullSync = flags&statusFullSync != 0
	d.Shutdown = flags&statusShutdown != 0
	d.Cut.Status = CutStatus(a.Uint())
	d.Cut.FuelChannels = ChannelMask(a.Uint())
	d.Cut.IgnitionChannels = ChannelMask(a.Uint())
	d.Cut.IgnitionChannelsPending = ChannelMask(a.Uint())
	d.Protect = ProtectStatus(a.Uint())
	d.RollingPercent = uint8(a.Uint())
	d.FuelChannels = uint8(a.Uint())
	d.IgnChannels = uint8(a.Uint())
	d.Injections = a.Uint()
	d.Sparks = a.Uint()
	d.Overdwells = a.Uint()
	return a.Err()
}

// EncodeChannelStatus writes one bank's schedule states.
func EncodeChannelStatus(out protocol.OutputBuffer, kind OutputKind, d *Diagnostics) {
	states := make([]byte, 0, MaxChannels)
	src, n := &d.FuelStatus, d.FuelChannels
	if kind == OutputIgnition {
		src, n = &d.IgnStatus, d.IgnChannels
	}
	for i := uint8(0); i < n && i < MaxChannels; i++ {
		states = append(states, byte(src[i]))
	}
	protocol.EncodeVLQUint(out, uint32(kind))
	protocol.EncodeVLQBytes(out, states)
}

// DecodeChannelStatus fills one bank of d from a channel_status message.
func DecodeChannelStatus(data *[]byte, d *Diagnostics) error {
	a := protocol.NewArgs(data)
	kind := OutputKind(a.Uint())
	states := a.Bytes()
	if err := a.Err(); err != nil {
		return err
	}
	dst := &d.FuelStatus
	if kind == OutputIgnition {
		dst = &d.IgnStatus
	}
	for i := 0; i < len(states) && i < MaxChannels; i++ {
		dst[i] = ScheduleStatus(states[i])
	}
	return nil
}
