package core

// LaunchState tracks the clutch-held limiters. Launch control holds a fixed
// RPM while the car is stationary; flat shift holds the RPM the clutch was
// pressed at so a gear change can be made without lifting.
type LaunchState struct {
	clutchEngagedRPM uint16
	previousClutch   bool

	LaunchingHard    bool
	FlatShiftingHard bool
}

// ClutchEngagedRPM is the RPM captured when the clutch was last pressed.
func (l *LaunchState) ClutchEngagedRPM() uint16 {
	return l.clutchEngagedRPM
}

// Update re-evaluates both limiters for this pass.
func (l *LaunchState) Update(cfg *Config, rpm uint16, sensors *Sensors) {
	if sensors.Clutch && !l.previousClutch {
		l.clutchEngagedRPM = rpm
	}
	l.previousClutch = sensors.Clutch

	armRPM := uint16(cfg.FlatShift.ArmRPM) * 100
	l.LaunchingHard = false
	l.FlatShiftingHard = false

	if cfg.Launch.Enabled && sensors.Clutch && l.clutchEngagedRPM < armRPM && sensors.TPS >= cfg.Launch.MinTPS {
		l.LaunchingHard = rpm/100 > uint16(cfg.Launch.HardLimit)
		return
	}
	if cfg.FlatShift.Enabled && sensors.Clutch && l.clutchEngagedRPM >= armRPM {
		l.FlatShiftingHard = rpm > l.clutchEngagedRPM
	}
}
