package core

import "errors"

var (
	ErrEngineRunning  = errors.New("engine is running")
	ErrInvalidChannel = errors.New("invalid output channel")
	ErrInvalidPulse   = errors.New("pulse width out of range")
	ErrShutdown       = errors.New("engine is shut down")
)

// testPulseDelayUS is the lead time before a test pulse starts, so the
// compare value is safely ahead of the counter.
const testPulseDelayUS = 100

// Board is the hardware an Engine drives. Timer channel i of each bank
// switches output i unless the layout pairs outputs.
type Board struct {
	FuelTimers     []TimerChannel
	IgnitionTimers []TimerChannel
	Outputs        OutputDriver
	// Tacho is optional.
	Tacho TachoOutput
}

// FuelingRequest is what the fuel and spark maths decided for this pass.
type FuelingRequest struct {
	PulseWidth          uint32 // µs, primary injectors
	SecondaryPulseWidth uint32 // µs, staged injectors
	InjAngle            uint16 // end of injection, degrees
	Advance             int16  // degrees BTDC
	DwellUS             uint32
	Load                uint16 // trim table load axis
}

// Engine is the scheduling context: the crank timebase, one schedule per
// physical channel, the resolved channel layout and the protection engine.
// The foreground loop owns it; timer interrupts reach it only through
// FuelCompare and IgnitionCompare.
type Engine struct {
	cfg     *Config
	board   Board
	decoder Decoder

	timebase CrankTimebase
	fuel     [MaxChannels]FuelSchedule
	ign      [MaxChannels]IgnitionSchedule
	hwFuel   uint8
	hwIgn    uint8

	layout     ChannelLayout
	fullSync   bool
	protection *Protection
	cut        SchedulerCutState

	startRevolutions uint16
	revolutions      uint16
	synced           bool
	shutdown         bool

	tachoCount  uint8
	sparkCount  uint32
	injectCount uint32
	overdwells  uint32
}

// NewEngine binds one schedule to every timer the board provides and
// initialises the channel layout.
func NewEngine(cfg *Config, board Board, decoder Decoder, random RandomSource) *Engine {
	e := &Engine{
		cfg:        cfg,
		board:      board,
		decoder:    decoder,
		hwFuel:     uint8(min(len(board.FuelTimers), MaxChannels)),
		hwIgn:      uint8(min(len(board.IgnitionTimers), MaxChannels)),
		protection: NewProtection(cfg, random),
	}
	for i := uint8(0); i < e.hwFuel; i++ {
		e.fuel[i].Schedule = NewSchedule(board.FuelTimers[i])
		e.fuel[i].id = channelID(OutputFuel, i)
	}
	for i := uint8(0); i < e.hwIgn; i++ {
		e.ign[i].Schedule = NewSchedule(board.IgnitionTimers[i])
		e.ign[i].id = channelID(OutputIgnition, i)
	}
	e.InitialiseSchedulers()
	return e
}

// FuelCompare is the compare interrupt entry point for fuel timer ch.
func (e *Engine) FuelCompare(ch uint8) {
	if ch < e.hwFuel {
		e.fuel[ch].OnCompare()
	}
}

// IgnitionCompare is the compare interrupt entry point for ignition timer ch.
func (e *Engine) IgnitionCompare(ch uint8) {
	if ch < e.hwIgn {
		e.ign[ch].OnCompare()
	}
}

// Config returns the configuration the engine reads.
func (e *Engine) Config() *Config {
	return e.cfg
}

// Timebase returns the crank timebase.
func (e *Engine) Timebase() *CrankTimebase {
	return &e.timebase
}

// Protection returns the protection engine.
func (e *Engine) Protection() *Protection {
	return e.protection
}

// RPM is the current engine speed, 0 when stopped.
func (e *Engine) RPM() uint16 {
	return e.timebase.RPM()
}

// RevolutionTime is µs per revolution, 0 when stopped.
func (e *Engine) RevolutionTime() uint32 {
	return e.timebase.RevolutionTime()
}

// StartRevolutions counts revolutions since sync was gained.
func (e *Engine) StartRevolutions() uint16 {
	return e.startRevolutions
}

// CutState is the cut mask in force.
func (e *Engine) CutState() SchedulerCutState {
	return e.cut
}

// FullSync reports whether 720° timing is in use.
func (e *Engine) FullSync() bool {
	return e.fullSync
}

// ChannelMap returns the channel layout in force.
func (e *Engine) ChannelMap() ChannelLayout {
	state := disableInterrupts()
	l := e.layout
	restoreInterrupts(state)
	return l
}

// ChannelStatus returns the state of one schedule. Unknown channels read as
// ScheduleOff.
func (e *Engine) ChannelStatus(kind OutputKind, ch uint8) ScheduleStatus {
	switch {
	case kind == OutputFuel && ch < e.hwFuel:
		return e.fuel[ch].Status()
	case kind == OutputIgnition && ch < e.hwIgn:
		return e.ign[ch].Status()
	}
	return ScheduleOff
}

// FuelSchedule exposes fuel channel ch for diagnostics.
func (e *Engine) FuelSchedule(ch uint8) *FuelSchedule {
	if ch >= e.hwFuel {
		return nil
	}
	return &e.fuel[ch]
}

// IgnitionSchedule exposes ignition channel ch for diagnostics.
func (e *Engine) IgnitionSchedule(ch uint8) *IgnitionSchedule {
	if ch >= e.hwIgn {
		return nil
	}
	return &e.ign[ch]
}

func (e *Engine) anyRunning() bool {
	for i := uint8(0); i < e.hwFuel; i++ {
		if e.fuel[i].IsRunning() {
			return true
		}
	}
	for i := uint8(0); i < e.hwIgn; i++ {
		if e.ign[i].IsRunning() {
			return true
		}
	}
	return false
}

// OnRevolution is called by the decoder once per crank revolution with the
// measured revolution time.
func (e *Engine) OnRevolution(revolutionTime uint32) {
	if revolutionTime < MinRevolutionTime {
		revolutionTime = MinRevolutionTime
	}
	if revolutionTime >= MaxRevolutionTime {
		revolutionTime = MaxRevolutionTime - 1
	}
	e.timebase.SetRevolutionTime(revolutionTime)
	if e.startRevolutions < 0xFFFF {
		e.startRevolutions++
	}
	e.revolutions++
}

// OnTooth is called by the decoder on every tooth to re-time charging and
// pending coils against the fresh crank angle.
func (e *Engine) OnTooth() {
	if e.timebase.RevolutionTime() == 0 {
		return
	}
	crank := e.decoder.CrankAngle()
	for ch := uint8(0); ch < e.layout.IgnChannels; ch++ {
		e.ign[ch].AdjustCrankAngle(crank, e.startRevolutions, &e.timebase, e.layout.IgnAngleMax)
	}
}

// OnStall stops everything when the decoder reports the engine stopped.
func (e *Engine) OnStall() {
	e.stopAll()
	e.timebase.Reset()
	e.protection.Reset()
	e.cut = cutAllOff()
}

// stopAll ends every running output and drops every pending arm.
func (e *Engine) stopAll() {
	for i := uint8(0); i < e.hwFuel; i++ {
		e.fuel[i].ForceOff()
		e.fuel[i].Reset()
	}
	for i := uint8(0); i < e.hwIgn; i++ {
		e.ign[i].ForceOff()
		e.ign[i].Reset()
	}
	e.startRevolutions = 0
	e.synced = false
}

// EmergencyStop ends every output and latches the engine off. Update arms
// nothing until Restart.
func (e *Engine) EmergencyStop() {
	state := disableInterrupts()
	e.shutdown = true
	restoreInterrupts(state)

	e.stopAll()
	e.cut = cutAllOff()
	DebugPrintln("[SCHED] emergency stop")
}

// Restart clears an emergency stop and re-initialises the schedulers.
func (e *Engine) Restart() {
	e.shutdown = false
	e.InitialiseSchedulers()
}

// IsShutdown reports whether an emergency stop is latched.
func (e *Engine) IsShutdown() bool {
	return e.shutdown
}

// Update is one pass of the foreground control loop: follow the decoder's
// sync, run protection and arm every enabled channel for its next event.
func (e *Engine) Update(sensors Sensors, req FuelingRequest) {
	if e.shutdown {
		return
	}
	sync := e.decoder.SyncStatus()
	if sync == SyncNone {
		if e.synced {
			DebugPrintln("[SCHED] sync lost, outputs off")
			e.stopAll()
		}
		e.cut = e.protection.Evaluate(ProtectionInputs{Sync: SyncNone, NowMS: Millis()})
		return
	}
	e.synced = true
	e.SetSyncMode(sync == SyncFull)

	l := &e.layout
	e.cut = e.protection.Evaluate(ProtectionInputs{
		Sync:             sync,
		StartRevolutions: e.startRevolutions,
		Revolutions:      e.revolutions,
		RPM:              e.RPM(),
		NowMS:            Millis(),
		Sensors:          sensors,
		Channels:         max(l.FuelChannels(), l.IgnChannels),
		FullySequential:  l.FullySequential(),
	})
	e.applyCut()

	if e.timebase.RevolutionTime() == 0 {
		return
	}
	crank := e.decoder.CrankAngle()
	e.armFuel(crank, &req)
	e.armIgnition(crank, &req)
}

// applyCut drops pending arms on channels the cut has just disabled. Running
// pulses are left to finish.
func (e *Engine) applyCut() {
	for ch := uint8(0); ch < e.layout.FuelChannels(); ch++ {
		if !e.cut.FuelChannels.Has(ch) {
			e.fuel[ch].CancelPending()
		}
	}
	for ch := uint8(0); ch < e.layout.IgnChannels; ch++ {
		if !e.cut.IgnitionChannels.Has(ch) {
			e.ign[ch].CancelPending()
		}
	}
}

func (e *Engine) armFuel(crank uint16, req *FuelingRequest) {
	l := &e.layout
	rpm := e.RPM()
	for ch := uint8(0); ch < l.FuelChannels(); ch++ {
		if !e.cut.FuelChannels.Has(ch) {
			continue
		}
		f := &e.fuel[ch]
		pw := req.PulseWidth
		if l.IsSecondary(ch) {
			pw = req.SecondaryPulseWidth
		}
		pw = f.TrimmedPulseWidth(pw, rpm, req.Load)
		if pw == 0 {
			continue
		}
		pwDegrees := f.UpdatePulseWidth(pw, &e.timebase)
		f.OpenAngle = InjectorOpenAngle(pwDegrees, f.ChannelDegrees, req.InjAngle, l.InjAngleMax)
		status := f.Status()
		timeout := InjectorTimeout(&e.timebase, status, f.OpenAngle, crank, l.InjAngleMax)
		if timeout == 0 && (status == ScheduleRunning || status == ScheduleRunningWithNext) {
			// Missed this cycle's opening while the last pulse is still on.
			continue
		}
		f.SetSchedule(timeout, pw)
	}
}

func (e *Engine) armIgnition(crank uint16, req *FuelingRequest) {
	l := &e.layout
	if req.DwellUS == 0 {
		return
	}
	dwellAngle := uint16(e.timebase.TimeToAngle(req.DwellUS))
	for ch := uint8(0); ch < l.IgnChannels; ch++ {
		g := &e.ign[ch]
		if l.IsRotaryTrailing(ch) {
			_, lead := IgnitionAngles(dwellAngle, e.ign[ch-2].ChannelDegrees, req.Advance, l.IgnAngleMax)
			g.ChargeAngle, g.DischargeAngle = TrailingRotaryAngles(dwellAngle, e.cfg.RotarySplit, lead, l.IgnAngleMax)
		} else {
			g.ChargeAngle, g.DischargeAngle = IgnitionAngles(dwellAngle, g.ChannelDegrees, req.Advance, l.IgnAngleMax)
		}
		if !e.cut.IgnitionChannels.Has(ch) {
			continue
		}
		status := g.Status()
		timeout := IgnitionTimeout(&e.timebase, status, g.ChargeAngle, crank, l.IgnAngleMax)
		if timeout == 0 && (status == ScheduleRunning || status == ScheduleRunningWithNext) {
			continue
		}
		g.SetSchedule(timeout, req.DwellUS)
	}
}

// CheckOverdwell forces off any coil that has been charging longer than the
// dwell limit. Call it at 1kHz or faster with the current Micros().
func (e *Engine) CheckOverdwell(nowUS uint32) {
	if !e.cfg.UseDwellLimit || e.cfg.DwellLimit == 0 {
		return
	}
	if e.cfg.IgnCrankLock && uint32(e.RPM()) < uint32(e.cfg.CrankRPM)*100 {
		return
	}
	limit := uint32(e.cfg.DwellLimit) * 1000
	for ch := uint8(0); ch < e.hwIgn; ch++ {
		g := &e.ign[ch]
		if !g.IsRunning() {
			continue
		}
		charged := nowUS - g.ChargeStartTime()
		if charged > limit && g.ForceOff() {
			e.overdwells++
			RecordTiming(EvtOverdwell, g.id, 0, charged, limit)
		}
	}
}

// TestPulse fires a single pulse on one output channel for bench testing.
// It is refused while the engine turns.
func (e *Engine) TestPulse(kind OutputKind, ch uint8, pulseUS uint32) error {
	if e.shutdown {
		return ErrShutdown
	}
	if e.RPM() > 0 {
		return ErrEngineRunning
	}
	if pulseUS == 0 || pulseUS >= MaxTimerPeriod {
		return ErrInvalidPulse
	}
	var s *Schedule
	switch {
	case kind == OutputFuel && ch < e.hwFuel:
		s = &e.fuel[ch].Schedule
	case kind == OutputIgnition && ch < e.hwIgn:
		s = &e.ign[ch].Schedule
	default:
		return ErrInvalidChannel
	}
	if s.Status() != ScheduleOff {
		return ErrEngineRunning
	}
	s.SetSchedule(testPulseDelayUS, pulseUS)
	return nil
}

// Diagnostics is a point-in-time view of the scheduler for telemetry.
type Diagnostics struct {
	RPM              uint16
	RevolutionTime   uint32
	StartRevolutions uint16
	FullSync         bool
	Shutdown         bool
	Cut              SchedulerCutState
	Protect          ProtectStatus
	RollingPercent   uint8
	FuelChannels     uint8
	IgnChannels      uint8
	FuelStatus       [MaxChannels]ScheduleStatus
	IgnStatus        [MaxChannels]ScheduleStatus
	Injections       uint32
	Sparks           uint32
	Overdwells       uint32
}

// Diagnostics collects the current scheduler state.
func (e *Engine) Diagnostics() Diagnostics {
	d := Diagnostics{
		RPM:              e.RPM(),
		RevolutionTime:   e.RevolutionTime(),
		StartRevolutions: e.startRevolutions,
		FullSync:         e.fullSync,
		Shutdown:         e.shutdown,
		Cut:              e.cut,
		Protect:          e.protection.Status(),
		RollingPercent:   e.protection.LastCutPercent(),
		FuelChannels:     e.layout.FuelChannels(),
		IgnChannels:      e.layout.IgnChannels,
		Overdwells:       e.overdwells,
	}
	for i := uint8(0); i < e.hwFuel; i++ {
		d.FuelStatus[i] = e.fuel[i].Status()
	}
	for i := uint8(0); i < e.hwIgn; i++ {
		d.IgnStatus[i] = e.ign[i].Status()
	}
	state := disableInterrupts()
	d.Injections = e.injectCount
	d.Sparks = e.sparkCount
	restoreInterrupts(state)
	return d
}
