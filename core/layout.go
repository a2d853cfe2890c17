package core

// MaxChannels is the number of fuel and of ignition schedules an Engine can
// drive.
const MaxChannels = 8

// ChannelLayout is the resolved mapping of schedule channels onto crank
// phase and physical outputs. It is derived from Config, the hardware
// channel counts and the current sync mode, and nothing else.
type ChannelLayout struct {
	// InjLayout and SparkMode are the modes actually in use after any
	// downgrade.
	InjLayout InjectionLayout
	SparkMode SparkMode

	PrimaryChannels   uint8
	SecondaryChannels uint8
	IgnChannels       uint8

	FuelDegrees [MaxChannels]uint16
	IgnDegrees  [MaxChannels]uint16
	// FuelOutputs and IgnOutputs list the physical outputs each channel
	// switches.
	FuelOutputs [MaxChannels]ChannelMask
	IgnOutputs  [MaxChannels]ChannelMask

	InjAngleMax uint16
	IgnAngleMax uint16
	// ReqFuelUS is the required fuel per injection event.
	ReqFuelUS uint32
}

// FuelChannels is the number of fuel schedules in use, primary and
// secondary.
func (l *ChannelLayout) FuelChannels() uint8 {
	return l.PrimaryChannels + l.SecondaryChannels
}

// IsSecondary reports whether fuel channel ch is a staged secondary.
func (l *ChannelLayout) IsSecondary(ch uint8) bool {
	return ch >= l.PrimaryChannels && ch < l.FuelChannels()
}

// IsRotaryTrailing reports whether ignition channel ch fires a trailing plug.
func (l *ChannelLayout) IsRotaryTrailing(ch uint8) bool {
	return l.SparkMode == SparkRotary && ch >= 2
}

// FullySequential is true when every cylinder has its own injector and coil
// channel.
func (l *ChannelLayout) FullySequential() bool {
	return l.InjLayout == InjSequential && l.SparkMode == SparkSequential
}

// phasing spreads slots channels evenly over max degrees. Hardware limits
// may leave fewer channels than slots in use, but the spacing stays.
type phasing struct {
	slots uint8
	max   uint16
}

func (p phasing) degrees(i uint8) uint16 {
	return uint16(uint32(p.max) * uint32(i) / uint32(p.slots))
}

// fullCyclePhasing gives each cylinder its own slot over 720°.
func fullCyclePhasing(n uint8) phasing {
	return phasing{slots: n, max: 720}
}

// halfCyclePhasing fires every channel once per revolution. Even engines of
// four or more cylinders pair cylinders 360° apart onto one channel;
// everything else spreads all cylinders over 360°. Two-strokes always land
// here.
func halfCyclePhasing(n uint8, strokes Strokes) phasing {
	if strokes == FourStroke && evenPairs(n) {
		return phasing{slots: n / 2, max: 360}
	}
	return phasing{slots: n, max: 360}
}

func evenPairs(n uint8) bool {
	return n >= 4 && n%2 == 0
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

// computeLayout resolves cfg against the hardware. Unsupported combinations
// are downgraded, never rejected: sequential injection without enough
// outputs becomes paired, and sequential or COP spark without enough coils
// becomes wasted spark. Rotary spark needs four cylinders and four coils.
func computeLayout(cfg *Config, hwInj, hwIgn uint8, fullSync bool) ChannelLayout {
	var l ChannelLayout
	n := cfg.Cylinders
	if n < 1 {
		n = 1
	}
	if n > MaxChannels {
		n = MaxChannels
	}
	hwInj = minU8(hwInj, MaxChannels)
	hwIgn = minU8(hwIgn, MaxChannels)

	computeFuel(&l, cfg, n, hwInj, fullSync)
	computeIgnition(&l, cfg, n, hwIgn, fullSync)
	return l
}

func computeFuel(l *ChannelLayout, cfg *Config, n, hw uint8, fullSync bool) {
	twoStroke := cfg.Strokes == TwoStroke
	mode := cfg.InjLayout
	if mode == InjSequential && n > hw {
		mode = InjPaired
	}
	if mode == InjSequential && !twoStroke && !fullSync {
		mode = InjSemiSequential
	}
	if mode == InjSemiSequential && (twoStroke || !evenPairs(n) || n > hw) {
		mode = InjPaired
	}
	l.InjLayout = mode

	var ph phasing
	switch {
	case mode == InjSequential && !twoStroke:
		ph = fullCyclePhasing(n)
	default:
		ph = halfCyclePhasing(n, cfg.Strokes)
	}
	count := minU8(ph.slots, hw)
	l.PrimaryChannels = count
	l.InjAngleMax = ph.max

	for i := uint8(0); i < count; i++ {
		l.FuelDegrees[i] = ph.degrees(i)
		switch mode {
		case InjSemiSequential:
			if n == 4 && cfg.InjPairing == InjPair14_23 {
				l.FuelOutputs[i] = maskOf(i, 3-i)
			} else {
				l.FuelOutputs[i] = maskOf(i, i+n/2)
			}
		default:
			l.FuelOutputs[i] = maskOf(i)
		}
	}
	applyOddFire(&l.FuelDegrees, cfg, n, count, ph.max)
	if !cfg.InjTiming && mode != InjSequential {
		for i := range l.FuelDegrees {
			l.FuelDegrees[i] = 0
		}
	}

	l.ReqFuelUS = uint32(cfg.ReqFuel) * 100
	if !twoStroke && !(mode == InjSequential && ph.max == 720) {
		l.ReqFuelUS /= 2
	}

	if cfg.Staging.Enabled {
		computeStaging(l, hw)
	}
}

// computeStaging adds secondary channels after the primaries. A full
// secondary bank mirrors the primary phasing; when the outputs run short a
// single secondary channel drives every remaining injector at once.
func computeStaging(l *ChannelLayout, hw uint8) {
	primary := l.PrimaryChannels
	var used uint8
	for i := uint8(0); i < primary; i++ {
		for b := uint8(0); b < MaxChannels; b++ {
			if l.FuelOutputs[i].Has(b) && b+1 > used {
				used = b + 1
			}
		}
	}

	switch {
	case used+primary <= hw:
		for i := uint8(0); i < primary; i++ {
			l.FuelDegrees[primary+i] = l.FuelDegrees[i]
			l.FuelOutputs[primary+i] = maskOf(used + i)
		}
		l.SecondaryChannels = primary
	case used < hw:
		var m ChannelMask
		for b := used; b < hw; b++ {
			m.Set(b)
		}
		l.FuelDegrees[primary] = 0
		l.FuelOutputs[primary] = m
		l.SecondaryChannels = 1
	}
}

func computeIgnition(l *ChannelLayout, cfg *Config, n, hw uint8, fullSync bool) {
	twoStroke := cfg.Strokes == TwoStroke
	mode := cfg.SparkMode
	switch mode {
	case SparkRotary:
		if n != 4 || hw < 4 || twoStroke {
			mode = SparkWasted
		}
	case SparkSequential:
		if n > hw {
			mode = SparkWasted
		} else if !twoStroke && !fullSync {
			mode = SparkWastedCOP
		}
	}
	if mode == SparkWastedCOP && (!evenPairs(n) || n > hw || twoStroke) {
		mode = SparkWasted
	}
	l.SparkMode = mode

	if mode == SparkRotary {
		l.IgnChannels = 4
		l.IgnAngleMax = 360
		for i := uint8(0); i < 4; i++ {
			l.IgnDegrees[i] = uint16(i%2) * 180
			l.IgnOutputs[i] = maskOf(i)
		}
		return
	}

	var ph phasing
	switch {
	case mode == SparkSequential && !twoStroke:
		ph = fullCyclePhasing(n)
	default:
		ph = halfCyclePhasing(n, cfg.Strokes)
	}
	count := minU8(ph.slots, hw)
	l.IgnChannels = count
	l.IgnAngleMax = ph.max

	for i := uint8(0); i < count; i++ {
		l.IgnDegrees[i] = ph.degrees(i)
		switch mode {
		case SparkWastedCOP:
			l.IgnOutputs[i] = maskOf(i, i+n/2)
		case SparkSingle:
			l.IgnOutputs[i] = maskOf(0)
		default:
			l.IgnOutputs[i] = maskOf(i)
		}
	}
	applyOddFire(&l.IgnDegrees, cfg, n, count, ph.max)
}

// applyOddFire replaces the even spacing with the configured TDC angles of
// cylinders 2-4.
func applyOddFire(degrees *[MaxChannels]uint16, cfg *Config, n, count uint8, max uint16) {
	if cfg.EngineType != OddFire || n < 2 || n > 4 {
		return
	}
	for i := uint8(1); i < count && i <= uint8(len(cfg.OddFire)); i++ {
		degrees[i] = normalizeAngle(int32(cfg.OddFire[i-1]), max)
	}
}
