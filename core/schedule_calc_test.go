package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, uint16(0), normalizeAngle(0, 360))
	assert.Equal(t, uint16(0), normalizeAngle(360, 360))
	assert.Equal(t, uint16(350), normalizeAngle(-10, 360))
	assert.Equal(t, uint16(10), normalizeAngle(730, 720))
	assert.Equal(t, uint16(700), normalizeAngle(-740, 720))
}

func TestInjectorOpenAngle(t *testing.T) {
	tests := []struct {
		name                     string
		pwDeg, chDeg, injAng, mx uint16
		want                     uint16
	}{
		{"channel 1", 54, 0, 355, 360, 301},
		{"channel 2", 54, 180, 355, 360, 121},
		{"wraps below zero", 90, 0, 20, 360, 290},
		{"sequential", 54, 540, 355, 720, 121},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InjectorOpenAngle(tt.pwDeg, tt.chDeg, tt.injAng, tt.mx))
		})
	}
}

func TestIgnitionAngles(t *testing.T) {
	charge, discharge := IgnitionAngles(40, 0, 15, 360)
	assert.Equal(t, uint16(345), discharge)
	assert.Equal(t, uint16(305), charge)

	charge, discharge = IgnitionAngles(40, 180, 15, 360)
	assert.Equal(t, uint16(165), discharge)
	assert.Equal(t, uint16(125), charge)

	// Spark after TDC and dwell reaching back past zero.
	charge, discharge = IgnitionAngles(30, 0, -5, 720)
	assert.Equal(t, uint16(5), discharge)
	assert.Equal(t, uint16(695), charge)
}

func TestTrailingRotaryAngles(t *testing.T) {
	charge, discharge := TrailingRotaryAngles(30, 10, 345, 360)
	assert.Equal(t, uint16(355), discharge)
	assert.Equal(t, uint16(325), charge)

	charge, discharge = TrailingRotaryAngles(30, 20, 345, 360)
	assert.Equal(t, uint16(5), discharge)
	assert.Equal(t, uint16(335), charge)
}

func TestEventTimeout(t *testing.T) {
	var tb CrankTimebase
	require.True(t, tb.SetRevolutionTime(36000)) // 100µs per degree

	assert.Equal(t, uint32(10000), InjectorTimeout(&tb, ScheduleOff, 200, 100, 360))
	assert.Equal(t, uint32(26000), InjectorTimeout(&tb, ScheduleOff, 100, 200, 360), "behind the crank waits a cycle")
	assert.Equal(t, uint32(26000), InjectorTimeout(&tb, SchedulePending, 100, 200, 360))
	assert.Zero(t, InjectorTimeout(&tb, ScheduleRunning, 100, 200, 360), "busy channel is late, not a cycle early")
	assert.Zero(t, IgnitionTimeout(&tb, ScheduleRunningWithNext, 100, 200, 360))
	assert.Equal(t, uint32(10000), IgnitionTimeout(&tb, ScheduleRunning, 200, 100, 360))

	// The crank angle is folded into a 360° cycle.
	assert.Equal(t, uint32(10000), IgnitionTimeout(&tb, ScheduleOff, 200, 460, 360))
}

func TestFuelScheduleCachesPulseWidthAngle(t *testing.T) {
	var tb CrankTimebase
	require.True(t, tb.SetRevolutionTime(36000))
	f := FuelSchedule{}

	assert.Equal(t, uint16(30), f.UpdatePulseWidth(3000, &tb))
	// A change inside the threshold keeps the cached angle.
	assert.Equal(t, uint16(30), f.UpdatePulseWidth(3000+pwDegreesThreshold, &tb))
	assert.Equal(t, uint32(3000+pwDegreesThreshold), f.PulseWidth)
	// Past the threshold it is recomputed.
	assert.Equal(t, uint16(40), f.UpdatePulseWidth(4000, &tb))

	// An RPM change always recomputes.
	require.True(t, tb.SetRevolutionTime(72000))
	assert.Equal(t, uint16(20), f.UpdatePulseWidth(4000, &tb))
}

type fixedTrim uint8

func (f fixedTrim) TrimPercent(rpm, load uint16) uint8 { return uint8(f) }

func TestFuelScheduleTrim(t *testing.T) {
	f := FuelSchedule{}
	assert.Equal(t, uint32(3000), f.TrimmedPulseWidth(3000, 2000, 50))

	f.Trim = fixedTrim(110)
	assert.Equal(t, uint32(3300), f.TrimmedPulseWidth(3000, 2000, 50))
	assert.Zero(t, f.TrimmedPulseWidth(0, 2000, 50))
}

func TestIgnitionAdjustCrankAngle(t *testing.T) {
	var tb CrankTimebase
	require.True(t, tb.SetRevolutionTime(36000))

	r := newScheduleRig()
	g := IgnitionSchedule{Schedule: *r.s}
	r.timer.Handler = g.OnCompare
	g.ChargeAngle = 300
	g.DischargeAngle = 340

	// Pending at crank 100: charge in 200°.
	g.SetSchedule(20000, 4000)
	g.AdjustCrankAngle(150, MinCyclesForCorrection, &tb, 360)
	assert.Equal(t, SchedulePending, g.Status(), "too early after sync to correct")

	g.AdjustCrankAngle(150, MinCyclesForCorrection+1, &tb, 360)
	assert.Equal(t, SchedulePendingWithOverride, g.Status())
	assert.Equal(t, usToTicks(15000), g.timer.Compare()-g.timer.Counter())

	// Charging: a fresh reading that puts the spark closer shortens dwell.
	r.q.AdvanceMicros(15000)
	require.Equal(t, ScheduleRunning, g.Status())
	g.AdjustCrankAngle(320, 0, &tb, 360)
	assert.Equal(t, usToTicks(2000), g.timer.Compare()-g.timer.Counter())

	// A reading that would push the spark later is ignored.
	g.AdjustCrankAngle(300, 0, &tb, 360)
	assert.Equal(t, usToTicks(2000), g.timer.Compare()-g.timer.Counter())

	// A queued next cycle does not stop the spark being pulled in.
	g.SetSchedule(30000, 4000)
	require.Equal(t, ScheduleRunningWithNext, g.Status())
	g.AdjustCrankAngle(330, 0, &tb, 360)
	assert.Equal(t, usToTicks(1000), g.timer.Compare()-g.timer.Counter())
	assert.Equal(t, ScheduleRunningWithNext, g.Status())
}
