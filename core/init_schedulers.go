package core

// InitialiseSchedulers puts every output in a known state and lays the
// schedules out for the current configuration. It is called at startup and
// after any configuration change; calling it twice yields the same layout.
func (e *Engine) InitialiseSchedulers() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	e.allOutputsOff()
	for i := uint8(0); i < e.hwFuel; i++ {
		e.fuel[i].Reset()
		e.fuel[i].SetCallbacks(nil, nil)
		e.fuel[i].ChannelDegrees = 0
	}
	for i := uint8(0); i < e.hwIgn; i++ {
		e.ign[i].Reset()
		e.ign[i].SetCallbacks(nil, nil)
		e.ign[i].ChannelDegrees = 0
	}

	e.fullSync = e.decoder != nil && e.decoder.SyncStatus() == SyncFull
	e.applyLayout(computeLayout(e.cfg, e.hwFuel, e.hwIgn, e.fullSync))
	e.tachoCount = 0
	e.cut = cutAllOff()

	DebugPrintln("[SCHED] init inj=" + e.layout.InjLayout.String() +
		" spark=" + e.layout.SparkMode.String() +
		" fuel=" + utoa(uint32(e.layout.FuelChannels())) +
		" ign=" + utoa(uint32(e.layout.IgnChannels)))
}

// allOutputsOff drives every physical output to its inactive level.
func (e *Engine) allOutputsOff() {
	out := e.board.Outputs
	if out == nil {
		return
	}
	for i := uint8(0); i < e.hwFuel; i++ {
		out.CloseInjector(i)
	}
	for i := uint8(0); i < e.hwIgn; i++ {
		out.EndCoilCharge(i)
	}
}

// applyLayout binds channel angles and callbacks. Channels the layout does
// not use are reset so they can never fire with stale timing. The caller
// holds the critical section.
func (e *Engine) applyLayout(l ChannelLayout) {
	e.layout = l
	for i := uint8(0); i < e.hwFuel; i++ {
		f := &e.fuel[i]
		if i >= l.FuelChannels() {
			f.Reset()
			f.SetCallbacks(nil, nil)
			f.ChannelDegrees = 0
			continue
		}
		f.ChannelDegrees = l.FuelDegrees[i]
		f.SetCallbacks(e.injectorOpen(l.FuelOutputs[i]), e.injectorClose(l.FuelOutputs[i]))
	}
	for i := uint8(0); i < e.hwIgn; i++ {
		g := &e.ign[i]
		if i >= l.IgnChannels {
			g.Reset()
			g.SetCallbacks(nil, nil)
			g.ChannelDegrees = 0
			continue
		}
		g.ChannelDegrees = l.IgnDegrees[i]
		g.SetCallbacks(e.coilBegin(g, l.IgnOutputs[i]), e.coilEnd(l.IgnOutputs[i]))
	}
}

func (e *Engine) injectorOpen(outputs ChannelMask) func() {
	return func() {
		out := e.board.Outputs
		for b := uint8(0); b < MaxChannels; b++ {
			if outputs.Has(b) {
				out.OpenInjector(b)
			}
		}
		e.injectCount++
	}
}

func (e *Engine) injectorClose(outputs ChannelMask) func() {
	return func() {
		out := e.board.Outputs
		for b := uint8(0); b < MaxChannels; b++ {
			if outputs.Has(b) {
				out.CloseInjector(b)
			}
		}
	}
}

func (e *Engine) coilBegin(g *IgnitionSchedule, outputs ChannelMask) func() {
	return func() {
		g.StartTime = Micros()
		out := e.board.Outputs
		for b := uint8(0); b < MaxChannels; b++ {
			if outputs.Has(b) {
				out.BeginCoilCharge(b)
			}
		}
	}
}

func (e *Engine) coilEnd(outputs ChannelMask) func() {
	return func() {
		out := e.board.Outputs
		for b := uint8(0); b < MaxChannels; b++ {
			if outputs.Has(b) {
				out.EndCoilCharge(b)
			}
		}
		e.sparkCount++
		e.tachoPulse()
	}
}

// tachoPulse emits one tachometer pulse every TachoDiv sparks.
func (e *Engine) tachoPulse() {
	if e.board.Tacho == nil {
		return
	}
	e.tachoCount++
	div := e.cfg.TachoDiv
	if div == 0 {
		div = 1
	}
	if e.tachoCount >= div {
		e.tachoCount = 0
		e.board.Tacho.Pulse()
	}
}

// SetSyncMode switches between 360° and 720° timing as cam sync comes and
// goes. The switch is refused while any output is active, since a channel
// mid-pulse would otherwise end at an angle from the wrong layout; the
// caller retries on the next pass. Returns true once the requested mode is
// in force.
func (e *Engine) SetSyncMode(full bool) bool {
	if full == e.fullSync {
		return true
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if e.anyRunning() {
		return false
	}
	e.fullSync = full
	e.applyLayout(computeLayout(e.cfg, e.hwFuel, e.hwIgn, full))

	var v uint32
	if full {
		v = 1
	}
	RecordTiming(EvtSyncChange, 0, 0, v, uint32(e.layout.InjAngleMax))
	return true
}
