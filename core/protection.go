package core

import "math/rand/v2"

// RandomSource draws the rolling-cut dice. *rand.Rand satisfies it.
type RandomSource interface {
	IntN(n int) int
}

// NewRandomSource returns a seeded PCG source for rolling cuts.
func NewRandomSource(seed uint64) RandomSource {
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// rollingCutAlways is the cut percentage that cuts every channel regardless
// of the draw.
const rollingCutAlways = 101

// ProtectionInputs is everything one protection pass reads.
type ProtectionInputs struct {
	Sync             SyncStatus
	StartRevolutions uint16
	// Revolutions counts crank revolutions and wraps, unlike
	// StartRevolutions which stops at its maximum.
	Revolutions uint16
	RPM         uint16
	NowMS       uint32
	Sensors     Sensors
	// Channels is the number of channels a rolling cut rolls for.
	Channels uint8
	// FullySequential is true when both fuel and spark run one channel
	// per cylinder.
	FullySequential bool
}

// Protection evaluates rev, boost, oil and AFR limits once per control loop
// pass and produces the cut state for the scheduler. Only the foreground
// loop calls it.
type Protection struct {
	cfg    *Config
	random RandomSource

	launch LaunchState
	status ProtectStatus
	cut    SchedulerCutState

	softLimitTiming bool
	softLimitStart  uint32

	boostTiming bool
	boostStart  uint32

	oilTiming bool
	oilStart  uint32

	afrTiming bool
	afrStart  uint32
	afrActive bool

	rollingLastRev uint16
	rollingArmed   bool
	lastCutPercent uint8
}

// NewProtection creates a protection engine reading cfg.
func NewProtection(cfg *Config, random RandomSource) *Protection {
	if random == nil {
		random = NewRandomSource(1)
	}
	return &Protection{cfg: cfg, random: random, cut: cutAllOff()}
}

// Status returns the active limiter flags.
func (p *Protection) Status() ProtectStatus {
	return p.status
}

// CutState returns the result of the last Evaluate.
func (p *Protection) CutState() SchedulerCutState {
	return p.cut
}

// Launch returns the clutch limiter state.
func (p *Protection) Launch() *LaunchState {
	return &p.launch
}

// LastCutPercent is the rolling cut percentage of the last re-roll.
func (p *Protection) LastCutPercent() uint8 {
	return p.lastCutPercent
}

// Reset clears every timer and latch, including the clutch history.
func (p *Protection) Reset() {
	cfg, random := p.cfg, p.random
	*p = Protection{cfg: cfg, random: random, cut: cutAllOff()}
}

func (p *Protection) random1to100() uint8 {
	return uint8(p.random.IntN(100) + 1)
}

// Evaluate runs one protection pass.
func (p *Protection) Evaluate(in ProtectionInputs) SchedulerCutState {
	cfg := p.cfg
	p.launch.Update(cfg, in.RPM, &in.Sensors)

	if in.Sync == SyncNone || in.StartRevolutions < uint16(cfg.StartupRevolutions) {
		p.status = 0
		p.resetRolling()
		p.cut = cutAllOff()
		return p.cut
	}

	maxAllowedRPM := p.maxAllowedRPM(&in)

	switch {
	case uint32(in.RPM) >= maxAllowedRPM:
		p.cut = p.fullCut()
		p.resetRolling()
	case cfg.HardCutType == HardCutRolling &&
		int32(in.RPM) > int32(maxAllowedRPM)+int32(p.rollingWindow())*10:
		p.rollingCut(&in, maxAllowedRPM)
	default:
		p.resetRolling()
		p.cut = cutAllOn()
	}
	return p.cut
}

// rollingWindow is the lowest bin of the rolling cut table: how far below
// the limit, in tens of RPM, the rolling cut begins. It is negative.
func (p *Protection) rollingWindow() int16 {
	if len(p.cfg.RollingCutTable.Bins) == 0 {
		return 0
	}
	return p.cfg.RollingCutTable.Bins[0]
}

// maxAllowedRPM folds every limiter into the lowest permitted RPM.
func (p *Protection) maxAllowedRPM(in *ProtectionInputs) uint32 {
	cfg := p.cfg
	limit := uint16(p.checkRevLimit(in))

	oil := p.checkOilPressureLimit(in)
	boost := p.checkBoostLimit(in)
	afr := p.checkAFRLimit(in)
	if (oil || boost || afr) && uint16(cfg.EngineProtectMaxRPM) < limit {
		limit = uint16(cfg.EngineProtectMaxRPM)
	}
	if p.launch.LaunchingHard && uint16(cfg.Launch.HardLimit) < limit {
		limit = uint16(cfg.Launch.HardLimit)
	}

	maxRPM := uint32(limit) * 100
	if p.launch.FlatShiftingHard && uint32(p.launch.clutchEngagedRPM) < maxRPM {
		maxRPM = uint32(p.launch.clutchEngagedRPM)
	}
	return maxRPM
}

// checkRevLimit returns the hard limit in RPM/100 and updates the RPM and
// coolant flags. Once the engine has sat above the soft limit for longer
// than SoftLimMax the soft limit becomes the hard limit.
func (p *Protection) checkRevLimit(in *ProtectionInputs) uint8 {
	cfg := p.cfg
	p.status &^= ProtectRPM | ProtectCoolant
	if cfg.ProtectCut == ProtectCutOff {
		return 0xFF
	}
	rpmDiv100 := in.RPM / 100

	if cfg.HardRevMode == HardRevCoolant {
		limit := cfg.HardRevLim
		coolantLimit := cfg.CoolantProtectTable.Lookup(in.Sensors.Coolant)
		if coolantLimit >= 0 && coolantLimit < int16(limit) {
			limit = uint8(coolantLimit)
		}
		if rpmDiv100 > uint16(limit) {
			p.status |= ProtectRPM | ProtectCoolant
		}
		return limit
	}

	limit := cfg.HardRevLim
	if cfg.SoftRevLim > 0 && rpmDiv100 >= uint16(cfg.SoftRevLim) {
		if !p.softLimitTiming {
			p.softLimitTiming = true
			p.softLimitStart = in.NowMS
		}
		if in.NowMS-p.softLimitStart > uint32(cfg.SoftLimMax)*100 && cfg.SoftRevLim < limit {
			limit = cfg.SoftRevLim
		}
	} else {
		p.softLimitTiming = false
	}
	if rpmDiv100 >= uint16(limit) {
		p.status |= ProtectRPM
	}
	return limit
}

// checkBoostLimit trips when MAP exceeds the boost limit for longer than
// the boost delay.
func (p *Protection) checkBoostLimit(in *ProtectionInputs) bool {
	cfg := p.cfg
	p.status &^= ProtectMAP
	if cfg.ProtectCut == ProtectCutOff || !cfg.BoostCut.Enabled {
		p.boostTiming = false
		return false
	}
	if in.Sensors.MAP <= uint16(cfg.BoostCut.Limit)*2 {
		p.boostTiming = false
		return false
	}
	if !p.boostTiming {
		p.boostTiming = true
		p.boostStart = in.NowMS
	}
	if in.NowMS-p.boostStart >= uint32(cfg.BoostCut.Delay)*100 {
		p.status |= ProtectMAP
		return true
	}
	return false
}

// checkOilPressureLimit trips when oil pressure stays below the RPM-indexed
// minimum for the oil delay. Once tripped it holds for as long as the
// pressure stays low.
func (p *Protection) checkOilPressureLimit(in *ProtectionInputs) bool {
	cfg := p.cfg
	alreadyActive := p.status.Has(ProtectOil)
	p.status &^= ProtectOil
	if cfg.ProtectCut == ProtectCutOff || !cfg.OilProtect.Enabled {
		p.oilTiming = false
		return false
	}

	limit := cfg.OilProtect.Table.Lookup(int16(in.RPM / 100))
	if int16(in.Sensors.OilPressure) >= limit {
		p.oilTiming = false
		return false
	}
	if !p.oilTiming {
		p.oilTiming = true
		p.oilStart = in.NowMS
	}
	if alreadyActive || in.NowMS-p.oilStart >= uint32(cfg.OilProtect.Delay)*100 {
		p.status |= ProtectOil
		return true
	}
	return false
}

// checkAFRLimit trips when a wideband reads lean under load for longer than
// the AFR cut time. It stays tripped when the lean condition goes away and
// only resets once the throttle drops to the reactivation TPS, so the cut
// cannot flutter on and off at the threshold.
func (p *Protection) checkAFRLimit(in *ProtectionInputs) bool {
	cfg := p.cfg
	afr := &cfg.AFRProtect
	if cfg.ProtectCut == ProtectCutOff || afr.Mode == AFRProtectOff || cfg.EGOType != EGOWideband {
		return p.afrActive
	}

	s := &in.Sensors
	mapOK := s.MAP >= uint16(afr.MinMAP)*2
	rpmOK := in.RPM/100 >= uint16(afr.MinRPM)
	tpsOK := s.TPS >= afr.MinTPS
	var lean bool
	switch afr.Mode {
	case AFRProtectFixed:
		lean = s.O2 >= afr.Deviation
	case AFRProtectTarget:
		lean = uint16(s.O2) >= uint16(s.AFRTarget)+uint16(afr.Deviation)
	}

	if mapOK && rpmOK && tpsOK && lean {
		if !p.afrTiming {
			p.afrTiming = true
			p.afrStart = in.NowMS
		}
		if in.NowMS-p.afrStart >= uint32(afr.CutTime)*100 {
			p.afrActive = true
			p.status |= ProtectAFR
		}
	} else {
		p.afrTiming = false
	}

	if p.afrActive && s.TPS <= afr.ReactivationTPS {
		p.afrActive = false
		p.afrTiming = false
		p.status &^= ProtectAFR
	}
	return p.afrActive
}

func (p *Protection) fullCut() SchedulerCutState {
	cut := SchedulerCutState{
		FuelChannels:     AllChannels,
		IgnitionChannels: AllChannels,
		Status:           CutFull,
	}
	switch p.cfg.ProtectCut {
	case ProtectCutIgnition:
		cut.IgnitionChannels = 0
	case ProtectCutFuel:
		cut.FuelChannels = 0
	case ProtectCutBoth:
		cut.IgnitionChannels = 0
		cut.FuelChannels = 0
	default:
		p.status = 0
	}
	return cut
}

// revolutionsToCut is how many revolutions a rolling cut decision holds:
// one full fuel cycle, so no cylinder ever sees half a cut.
func (p *Protection) revolutionsToCut(fullySequential bool) uint16 {
	n := uint16(1)
	if p.cfg.Strokes == FourStroke {
		n *= 2
	}
	if !fullySequential {
		n *= 2
	}
	return n
}

// RollingCutPercent looks up the cut percentage for rpm against the limit.
// The result is in [0, 101]; 101 cuts unconditionally.
func (p *Protection) RollingCutPercent(rpm uint16, maxAllowedRPM uint32) uint8 {
	delta := int32(rpm) - int32(maxAllowedRPM)
	if delta >= 0 {
		return rollingCutAlways
	}
	v := p.cfg.RollingCutTable.Lookup(int16(delta / 10))
	if v < 0 {
		return 0
	}
	if v > rollingCutAlways {
		return rollingCutAlways
	}
	return uint8(v)
}

func (p *Protection) rollingCut(in *ProtectionInputs, maxAllowedRPM uint32) {
	cut := &p.cut
	if cut.Status != CutRolling {
		// Entering from a full cut or from nothing: start from all on.
		*cut = cutAllOn()
	}
	cut.Status = CutRolling

	revs := p.revolutionsToCut(in.FullySequential)
	if !p.rollingArmed {
		p.rollingArmed = true
		p.rollingLastRev = in.Revolutions
	}

	if in.Revolutions-p.rollingLastRev >= revs {
		percent := p.RollingCutPercent(in.RPM, maxAllowedRPM)
		p.lastCutPercent = percent
		for x := uint8(0); x < in.Channels && x < MaxChannels; x++ {
			if percent >= rollingCutAlways || p.random1to100() < percent {
				switch p.cfg.ProtectCut {
				case ProtectCutIgnition:
					cut.IgnitionChannels.Clear(x)
				case ProtectCutFuel:
					cut.FuelChannels.Clear(x)
				case ProtectCutBoth:
					cut.IgnitionChannels.Clear(x)
					cut.FuelChannels.Clear(x)
				default:
					cut.IgnitionChannels = AllChannels
					cut.FuelChannels = AllChannels
				}
				continue
			}
			if revs == 4 && !cut.FuelChannels.Has(x) && p.cfg.ProtectCut == ProtectCutBoth {
				cut.IgnitionChannelsPending.Set(x)
			} else {
				cut.IgnitionChannels.Set(x)
			}
			cut.FuelChannels.Set(x)
		}
		p.rollingLastRev = in.Revolutions
	}

	if cut.IgnitionChannelsPending != 0 && in.Revolutions-p.rollingLastRev >= 2 {
		cut.IgnitionChannels = cut.FuelChannels
		cut.IgnitionChannelsPending = 0
	}
}

func (p *Protection) resetRolling() {
	p.rollingArmed = false
	p.rollingLastRev = 0
	p.lastCutPercent = 0
}
