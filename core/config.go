package core

import "errors"

// Strokes is the engine cycle type.
type Strokes uint8

const (
	FourStroke Strokes = iota
	TwoStroke
)

// EngineType selects even or odd firing intervals.
type EngineType uint8

const (
	EvenFire EngineType = iota
	OddFire
)

// InjectionLayout is the configured injector phasing strategy.
type InjectionLayout uint8

const (
	InjPaired InjectionLayout = iota
	InjSemiSequential
	InjSequential
)

// InjPairing selects which injectors share a channel in 4-cylinder
// semi-sequential operation.
type InjPairing uint8

const (
	// InjPair13_24 pairs the channels 360° apart (1+3, 2+4).
	InjPair13_24 InjPairing = iota
	// InjPair14_23 pairs 1+4 and 2+3.
	InjPair14_23
)

// SparkMode is the configured ignition output strategy.
type SparkMode uint8

const (
	SparkWasted SparkMode = iota
	SparkSingle
	SparkWastedCOP
	SparkSequential
	SparkRotary
)

// ProtectCutType selects what a protection cut suppresses.
type ProtectCutType uint8

const (
	ProtectCutOff ProtectCutType = iota
	ProtectCutIgnition
	ProtectCutFuel
	ProtectCutBoth
)

// HardCutType selects between an on/off cut and a rolling cut.
type HardCutType uint8

const (
	HardCutFull HardCutType = iota
	HardCutRolling
)

// HardRevMode selects the source of the hard rev limit.
type HardRevMode uint8

const (
	HardRevFixed HardRevMode = iota
	HardRevCoolant
)

// AFRProtectMode selects the lean-protection threshold.
type AFRProtectMode uint8

const (
	AFRProtectOff AFRProtectMode = iota
	// AFRProtectFixed trips when O2 >= Deviation.
	AFRProtectFixed
	// AFRProtectTarget trips when O2 >= AFR target + Deviation.
	AFRProtectTarget
)

// EGOType is the oxygen sensor type. AFR protection needs a wideband.
type EGOType uint8

const (
	EGONone EGOType = iota
	EGONarrowband
	EGOWideband
)

// StagingConfig enables secondary injectors.
type StagingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BoostCutConfig is the over-boost protection.
type BoostCutConfig struct {
	Enabled bool  `yaml:"enabled"`
	Limit   uint8 `yaml:"limit"` // kPa / 2
	Delay   uint8 `yaml:"delay"` // 0.1s
}

// OilProtectConfig is the low oil pressure protection.
type OilProtectConfig struct {
	Enabled bool    `yaml:"enabled"`
	Table   Table2D `yaml:"table"` // RPM/100 -> minimum pressure
	Delay   uint8   `yaml:"delay"` // 0.1s
}

// AFRProtectConfig is the lean-running protection.
type AFRProtectConfig struct {
	Mode            AFRProtectMode `yaml:"mode"`
	MinMAP          uint8          `yaml:"min_map"` // kPa / 2
	MinRPM          uint8          `yaml:"min_rpm"` // RPM / 100
	MinTPS          uint8          `yaml:"min_tps"`
	Deviation       uint8          `yaml:"deviation"`
	CutTime         uint8          `yaml:"cut_time"` // 0.1s
	ReactivationTPS uint8          `yaml:"reactivation_tps"`
}

// LaunchConfig is the clutch-held launch limiter.
type LaunchConfig struct {
	Enabled   bool  `yaml:"enabled"`
	HardLimit uint8 `yaml:"hard_limit"` // RPM / 100
	MinTPS    uint8 `yaml:"min_tps"`
}

// FlatShiftConfig is the clutch-in full-throttle shift limiter.
type FlatShiftConfig struct {
	Enabled bool  `yaml:"enabled"`
	ArmRPM  uint8 `yaml:"arm_rpm"` // RPM / 100
}

// Config holds every tunable the scheduling core reads. It is read-mostly:
// the core never writes it and never persists it.
type Config struct {
	Cylinders  uint8      `yaml:"cylinders"`
	Strokes    Strokes    `yaml:"strokes"`
	EngineType EngineType `yaml:"engine_type"`
	// OddFire holds the TDC angles of cylinders 2-4 for odd-fire engines.
	OddFire [3]uint16 `yaml:"oddfire"`

	InjLayout  InjectionLayout `yaml:"inj_layout"`
	InjPairing InjPairing      `yaml:"inj_pairing"`
	// InjTiming false fires every non-sequential channel simultaneously.
	InjTiming bool          `yaml:"inj_timing"`
	ReqFuel   uint16        `yaml:"req_fuel"` // 0.1ms
	Staging   StagingConfig `yaml:"staging"`

	SparkMode   SparkMode `yaml:"spark_mode"`
	RotarySplit uint16    `yaml:"rotary_split"` // degrees
	TachoDiv    uint8     `yaml:"tacho_div"`

	ProtectCut          ProtectCutType `yaml:"protect_cut"`
	HardCutType         HardCutType    `yaml:"hard_cut_type"`
	HardRevMode         HardRevMode    `yaml:"hard_rev_mode"`
	HardRevLim          uint8          `yaml:"hard_rev_lim"` // RPM / 100
	SoftRevLim          uint8          `yaml:"soft_rev_lim"` // RPM / 100
	SoftLimMax          uint8          `yaml:"soft_lim_max"` // 0.1s
	CoolantProtectTable Table2D        `yaml:"coolant_protect_table"`
	EngineProtectMaxRPM uint8          `yaml:"engine_protect_max_rpm"` // RPM / 100
	// RollingCutTable maps (RPM - limit)/10, negative bins ascending to 0,
	// to a cut percentage.
	RollingCutTable Table2D `yaml:"rolling_cut_table"`

	BoostCut   BoostCutConfig   `yaml:"boost_cut"`
	OilProtect OilProtectConfig `yaml:"oil_protect"`
	AFRProtect AFRProtectConfig `yaml:"afr_protect"`
	EGOType    EGOType          `yaml:"ego_type"`
	Launch     LaunchConfig     `yaml:"launch"`
	FlatShift  FlatShiftConfig  `yaml:"flat_shift"`

	// StartupRevolutions is the number of revolutions after sync before any
	// output may fire.
	StartupRevolutions uint8 `yaml:"startup_revolutions"`
	UseDwellLimit      bool  `yaml:"use_dwell_limit"`
	DwellLimit         uint8 `yaml:"dwell_limit"` // ms
	IgnCrankLock       bool  `yaml:"ign_crank_lock"`
	CrankRPM           uint8 `yaml:"crank_rpm"` // RPM / 100
}

var (
	ErrInvalidCylinders = errors.New("cylinder count must be 1-8")
	ErrInvalidReqFuel   = errors.New("required fuel must be non-zero")
	ErrInvalidTable     = errors.New("table bins and values must match and ascend")
)

// Validate reports configuration errors that cannot be downgraded to a safe
// default. Unsupported but well-formed combinations are not errors; the
// orchestration downgrades them at initialisation.
func (c *Config) Validate() error {
	if c.Cylinders < 1 || c.Cylinders > MaxChannels {
		return ErrInvalidCylinders
	}
	if c.ReqFuel == 0 {
		return ErrInvalidReqFuel
	}
	if c.HardCutType == HardCutRolling && !c.RollingCutTable.Valid() {
		return ErrInvalidTable
	}
	if c.HardRevMode == HardRevCoolant && !c.CoolantProtectTable.Valid() {
		return ErrInvalidTable
	}
	if c.OilProtect.Enabled && !c.OilProtect.Table.Valid() {
		return ErrInvalidTable
	}
	return nil
}

// fullCycleDegrees is the crank angle of one complete engine cycle.
func (c *Config) fullCycleDegrees() uint16 {
	if c.Strokes == TwoStroke {
		return 360
	}
	return 720
}
