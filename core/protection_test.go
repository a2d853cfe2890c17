package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedDraw makes every rolling-cut draw return draw (1-100).
type fixedDraw int

func (f fixedDraw) IntN(n int) int { return int(f) - 1 }

func protectionConfig() *Config {
	return &Config{
		Cylinders:   4,
		Strokes:     FourStroke,
		InjLayout:   InjPaired,
		SparkMode:   SparkWasted,
		ReqFuel:     86,
		ProtectCut:  ProtectCutBoth,
		HardCutType: HardCutFull,
		HardRevLim:  60,
		RollingCutTable: Table2D{
			Bins:   []int16{-30, -20, -10, 0},
			Values: []int16{0, 30, 60, 100},
		},
		EngineProtectMaxRPM: 30,
	}
}

func runningInputs(rpm uint16) ProtectionInputs {
	return ProtectionInputs{
		Sync:             SyncFull,
		StartRevolutions: 100,
		Revolutions:      100,
		RPM:              rpm,
		Channels:         4,
	}
}

func TestProtectionHoldsOffUntilSynced(t *testing.T) {
	cfg := protectionConfig()
	cfg.StartupRevolutions = 5
	p := NewProtection(cfg, nil)

	in := runningInputs(1000)
	in.Sync = SyncNone
	assert.Equal(t, cutAllOff(), p.Evaluate(in))

	in = runningInputs(1000)
	in.StartRevolutions = 4
	cut := p.Evaluate(in)
	assert.Equal(t, CutFull, cut.Status)
	assert.Zero(t, cut.FuelChannels)
	assert.Zero(t, cut.IgnitionChannels)

	in.StartRevolutions = 5
	assert.Equal(t, cutAllOn(), p.Evaluate(in))
}

func TestProtectionFullCutDominates(t *testing.T) {
	for _, hardCut := range []HardCutType{HardCutFull, HardCutRolling} {
		for _, cutType := range []ProtectCutType{ProtectCutIgnition, ProtectCutFuel, ProtectCutBoth} {
			for _, rpm := range []uint16{6000, 6001, 7500, 18000} {
				cfg := protectionConfig()
				cfg.HardCutType = hardCut
				cfg.ProtectCut = cutType
				p := NewProtection(cfg, fixedDraw(100))

				cut := p.Evaluate(runningInputs(rpm))
				require.Equal(t, CutFull, cut.Status, "%s %s rpm=%d", hardCut, cutType, rpm)
				assert.True(t, p.Status().Has(ProtectRPM))
				switch cutType {
				case ProtectCutIgnition:
					assert.Zero(t, cut.IgnitionChannels)
					assert.Equal(t, AllChannels, cut.FuelChannels)
				case ProtectCutFuel:
					assert.Zero(t, cut.FuelChannels)
					assert.Equal(t, AllChannels, cut.IgnitionChannels)
				case ProtectCutBoth:
					assert.Zero(t, cut.FuelChannels)
					assert.Zero(t, cut.IgnitionChannels)
				}
			}
		}
	}
}

func TestProtectionCutOffNeverSuppresses(t *testing.T) {
	cfg := protectionConfig()
	cfg.ProtectCut = ProtectCutOff
	p := NewProtection(cfg, nil)

	cut := p.Evaluate(runningInputs(26000))
	assert.Equal(t, CutFull, cut.Status)
	assert.Equal(t, AllChannels, cut.FuelChannels)
	assert.Equal(t, AllChannels, cut.IgnitionChannels)

	cut = p.Evaluate(runningInputs(7000))
	assert.Equal(t, cutAllOn(), cut, "no limiter is active with cuts disabled")
}

func TestRollingCutPercentBounded(t *testing.T) {
	cfg := protectionConfig()
	cfg.RollingCutTable = Table2D{
		Bins:   []int16{-50, -25, -10, 0},
		Values: []int16{-20, 40, 150, 250},
	}
	p := NewProtection(cfg, nil)
	for rpm := uint16(0); rpm < 9000; rpm += 7 {
		percent := p.RollingCutPercent(rpm, 6000)
		require.LessOrEqual(t, int(percent), rollingCutAlways, "rpm %d", rpm)
	}
	assert.Equal(t, uint8(0), p.RollingCutPercent(5400, 6000))
	assert.Equal(t, uint8(rollingCutAlways), p.RollingCutPercent(6000, 6000))
	assert.Equal(t, uint8(rollingCutAlways), p.RollingCutPercent(5950, 6000))
}

func TestRollingCut(t *testing.T) {
	cfg := protectionConfig()
	cfg.HardCutType = HardCutRolling
	draw := fixedDraw(1)
	p := NewProtection(cfg, &draw)

	// Below the rolling window.
	assert.Equal(t, cutAllOn(), p.Evaluate(runningInputs(5700)))

	in := runningInputs(5950)
	cut := p.Evaluate(in)
	assert.Equal(t, CutRolling, cut.Status)
	assert.Equal(t, AllChannels, cut.FuelChannels, "first pass only arms the revolution counter")

	// Four revolutions later (4-stroke, not sequential) the dice roll.
	in.Revolutions += 3
	assert.Equal(t, AllChannels, p.Evaluate(in).FuelChannels)
	in.Revolutions++
	cut = p.Evaluate(in)
	assert.Equal(t, uint8(80), p.LastCutPercent())
	assert.Equal(t, ChannelMask(0xF0), cut.FuelChannels)
	assert.Equal(t, ChannelMask(0xF0), cut.IgnitionChannels)

	// Next roll comes up high: fuel returns at once, spark waits for it.
	draw = fixedDraw(100)
	in.Revolutions += 4
	cut = p.Evaluate(in)
	assert.Equal(t, AllChannels, cut.FuelChannels)
	assert.Equal(t, ChannelMask(0xF0), cut.IgnitionChannels)
	assert.Equal(t, ChannelMask(0x0F), cut.IgnitionChannelsPending)

	in.Revolutions++
	assert.Equal(t, ChannelMask(0xF0), p.Evaluate(in).IgnitionChannels)
	in.Revolutions++
	cut = p.Evaluate(in)
	assert.Equal(t, AllChannels, cut.IgnitionChannels)
	assert.Zero(t, cut.IgnitionChannelsPending)

	// Dropping out of the window resets everything.
	assert.Equal(t, cutAllOn(), p.Evaluate(runningInputs(5000)))
}

func TestRollingCutSequentialCadence(t *testing.T) {
	cfg := protectionConfig()
	cfg.HardCutType = HardCutRolling
	cfg.ProtectCut = ProtectCutIgnition
	p := NewProtection(cfg, fixedDraw(1))

	in := runningInputs(5950)
	in.FullySequential = true
	p.Evaluate(in)
	in.Revolutions += 2
	cut := p.Evaluate(in)
	assert.Equal(t, ChannelMask(0xF0), cut.IgnitionChannels)
	assert.Equal(t, AllChannels, cut.FuelChannels)
	assert.Zero(t, cut.IgnitionChannelsPending)
}

// countingDraw counts rolling-cut draws.
type countingDraw struct{ n int }

func (c *countingDraw) IntN(n int) int {
	c.n++
	return 0
}

func TestRollingCutCadenceSurvivesLongRuns(t *testing.T) {
	cfg := protectionConfig()
	cfg.HardCutType = HardCutRolling
	draws := &countingDraw{}
	p := NewProtection(cfg, draws)

	in := runningInputs(5900)
	in.StartRevolutions = 0xFFFF
	in.Revolutions = 0xFFFD
	p.Evaluate(in)
	for range 10 {
		require.Equal(t, CutRolling, p.Evaluate(in).Status)
	}
	assert.Zero(t, draws.n, "no re-roll while the revolution does not advance")

	// The counter wraps between arming and the fourth revolution.
	in.Revolutions += 3
	p.Evaluate(in)
	assert.Zero(t, draws.n)
	in.Revolutions++
	require.Equal(t, uint16(1), in.Revolutions)
	p.Evaluate(in)
	assert.Equal(t, 4, draws.n, "one draw per channel")
	for range 10 {
		p.Evaluate(in)
	}
	assert.Equal(t, 4, draws.n)
}

func TestRollingCutPendingSparkWaitsAcrossWrap(t *testing.T) {
	cfg := protectionConfig()
	cfg.HardCutType = HardCutRolling
	draw := fixedDraw(1)
	p := NewProtection(cfg, &draw)

	in := runningInputs(5950)
	in.StartRevolutions = 0xFFFF
	in.Revolutions = 0xFFF8
	p.Evaluate(in)
	in.Revolutions += 4
	assert.Equal(t, ChannelMask(0xF0), p.Evaluate(in).FuelChannels)

	draw = fixedDraw(100)
	in.Revolutions += 4
	require.Equal(t, uint16(0), in.Revolutions)
	cut := p.Evaluate(in)
	assert.Equal(t, ChannelMask(0x0F), cut.IgnitionChannelsPending)
	cut = p.Evaluate(in)
	assert.Equal(t, ChannelMask(0x0F), cut.IgnitionChannelsPending, "spark stays pending on the same revolution")
	in.Revolutions += 2
	cut = p.Evaluate(in)
	assert.Equal(t, AllChannels, cut.IgnitionChannels)
	assert.Zero(t, cut.IgnitionChannelsPending)
}

func TestProtectionResetClearsLaunch(t *testing.T) {
	cfg := protectionConfig()
	cfg.Launch = LaunchConfig{Enabled: true, HardLimit: 30, MinTPS: 10}
	p := NewProtection(cfg, nil)
	in := runningInputs(4000)
	in.Sensors = Sensors{TPS: 50, Clutch: true}
	p.Evaluate(in)
	require.NotZero(t, p.Launch().ClutchEngagedRPM())

	p.Reset()
	assert.Equal(t, LaunchState{}, *p.Launch())
}

func TestCheckAFRLimit(t *testing.T) {
	cfg := protectionConfig()
	cfg.EGOType = EGOWideband
	cfg.AFRProtect = AFRProtectConfig{
		Mode:            AFRProtectFixed,
		MinMAP:          90,
		MinRPM:          40,
		MinTPS:          40,
		Deviation:       15,
		CutTime:         0,
		ReactivationTPS: 10,
	}
	p := NewProtection(cfg, nil)

	in := runningInputs(5000)
	in.Sensors = Sensors{MAP: 200, TPS: 50, O2: 20, AFRTarget: 10}
	assert.True(t, p.checkAFRLimit(&in), "lean under load trips at once with no cut time")
	assert.True(t, p.Status().Has(ProtectAFR))

	// The trigger going away does not clear it.
	in.Sensors.O2 = 10
	assert.True(t, p.checkAFRLimit(&in))
	in.Sensors.MAP = 50
	assert.True(t, p.checkAFRLimit(&in))

	// Lifting to the reactivation TPS does.
	in.Sensors.TPS = 10
	assert.False(t, p.checkAFRLimit(&in))
	assert.False(t, p.Status().Has(ProtectAFR))
}

func TestCheckAFRLimitDelayAndTargetMode(t *testing.T) {
	cfg := protectionConfig()
	cfg.EGOType = EGOWideband
	cfg.AFRProtect = AFRProtectConfig{
		Mode:      AFRProtectTarget,
		MinMAP:    90,
		MinRPM:    40,
		MinTPS:    40,
		Deviation: 15,
		CutTime:   5,
	}
	p := NewProtection(cfg, nil)

	in := runningInputs(5000)
	in.Sensors = Sensors{MAP: 200, TPS: 50, O2: 20, AFRTarget: 10}
	assert.False(t, p.checkAFRLimit(&in), "20 is under target+deviation")

	in.Sensors.O2 = 25
	in.NowMS = 1000
	assert.False(t, p.checkAFRLimit(&in))
	in.NowMS = 1499
	assert.False(t, p.checkAFRLimit(&in))
	in.NowMS = 1500
	assert.True(t, p.checkAFRLimit(&in))

	cfg.EGOType = EGONarrowband
	p = NewProtection(cfg, nil)
	assert.False(t, p.checkAFRLimit(&in), "needs a wideband")
}

func TestCheckOilPressureLimit(t *testing.T) {
	cfg := protectionConfig()
	cfg.OilProtect = OilProtectConfig{
		Enabled: true,
		Table:   Table2D{Bins: []int16{10, 60}, Values: []int16{50, 50}},
	}
	p := NewProtection(cfg, nil)

	in := runningInputs(3000)
	in.Sensors.OilPressure = 40
	assert.True(t, p.checkOilPressureLimit(&in), "no delay armed")

	in.Sensors.OilPressure = 55
	assert.False(t, p.checkOilPressureLimit(&in))

	cfg.OilProtect.Delay = 10
	p = NewProtection(cfg, nil)
	in.Sensors.OilPressure = 40
	in.NowMS = 2000
	assert.False(t, p.checkOilPressureLimit(&in))
	in.NowMS = 2999
	assert.False(t, p.checkOilPressureLimit(&in))
	in.NowMS = 3000
	assert.True(t, p.checkOilPressureLimit(&in))
	in.NowMS = 3001
	assert.True(t, p.checkOilPressureLimit(&in))
}

func TestCheckBoostLimit(t *testing.T) {
	cfg := protectionConfig()
	cfg.BoostCut = BoostCutConfig{Enabled: true, Limit: 100}
	p := NewProtection(cfg, nil)

	in := runningInputs(3000)
	in.Sensors.MAP = 200
	assert.False(t, p.checkBoostLimit(&in))
	in.Sensors.MAP = 201
	assert.True(t, p.checkBoostLimit(&in))
	assert.True(t, p.Status().Has(ProtectMAP))
}

func TestProtectionCeiling(t *testing.T) {
	cfg := protectionConfig()
	cfg.BoostCut = BoostCutConfig{Enabled: true, Limit: 100}
	p := NewProtection(cfg, nil)

	in := runningInputs(3500)
	assert.Equal(t, cutAllOn(), p.Evaluate(in))

	in.Sensors.MAP = 250
	cut := p.Evaluate(in)
	assert.Equal(t, CutFull, cut.Status, "over boost drops the limit to the protection ceiling")

	in.RPM = 2900
	assert.Equal(t, CutNone, p.Evaluate(in).Status)
}

func TestSoftLimitEscalates(t *testing.T) {
	cfg := protectionConfig()
	cfg.HardRevLim = 70
	cfg.SoftRevLim = 50
	cfg.SoftLimMax = 10
	p := NewProtection(cfg, nil)

	in := runningInputs(5500)
	in.NowMS = 100
	assert.Equal(t, CutNone, p.Evaluate(in).Status)
	in.NowMS = 1100
	assert.Equal(t, CutNone, p.Evaluate(in).Status)
	in.NowMS = 1101
	assert.Equal(t, CutFull, p.Evaluate(in).Status)

	in.RPM = 4900
	assert.Equal(t, CutNone, p.Evaluate(in).Status)
	in.RPM = 5500
	assert.Equal(t, CutNone, p.Evaluate(in).Status, "timer restarts after dropping below")
}

func TestCoolantRevLimit(t *testing.T) {
	cfg := protectionConfig()
	cfg.HardRevMode = HardRevCoolant
	cfg.CoolantProtectTable = Table2D{Bins: []int16{0, 80}, Values: []int16{30, 80}}
	p := NewProtection(cfg, nil)

	in := runningInputs(3500)
	in.Sensors.Coolant = 0
	assert.Equal(t, CutFull, p.Evaluate(in).Status)
	assert.True(t, p.Status().Has(ProtectCoolant))

	in.Sensors.Coolant = 80
	assert.Equal(t, CutNone, p.Evaluate(in).Status)
	in.RPM = 6000
	assert.Equal(t, CutFull, p.Evaluate(in).Status, "hard limit still caps a generous coolant table")
}

func TestLaunchAndFlatShift(t *testing.T) {
	cfg := protectionConfig()
	cfg.Launch = LaunchConfig{Enabled: true, HardLimit: 40, MinTPS: 20}
	cfg.FlatShift = FlatShiftConfig{Enabled: true, ArmRPM: 30}
	p := NewProtection(cfg, nil)

	in := runningInputs(1000)
	in.Sensors = Sensors{Clutch: true, TPS: 80}
	p.Evaluate(in)
	assert.Equal(t, uint16(1000), p.Launch().ClutchEngagedRPM())

	in.RPM = 4500
	assert.Equal(t, CutFull, p.Evaluate(in).Status)
	assert.True(t, p.Launch().LaunchingHard)

	in.Sensors.TPS = 10
	assert.Equal(t, CutNone, p.Evaluate(in).Status, "launch needs throttle")

	// Release, then dip the clutch at 5000 for a flat shift.
	in.Sensors = Sensors{TPS: 80}
	in.RPM = 5000
	p.Evaluate(in)
	in.Sensors.Clutch = true
	assert.Equal(t, CutNone, p.Evaluate(in).Status, "the engaged RPM itself is allowed")
	assert.Equal(t, uint16(5000), p.Launch().ClutchEngagedRPM())
	assert.False(t, p.Launch().LaunchingHard)

	in.RPM = 5100
	assert.Equal(t, CutFull, p.Evaluate(in).Status)
	assert.True(t, p.Launch().FlatShiftingHard)

	in.RPM = 4900
	assert.Equal(t, CutNone, p.Evaluate(in).Status)
}
