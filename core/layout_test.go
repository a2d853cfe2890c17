package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func layoutConfig(cylinders uint8, inj InjectionLayout, spark SparkMode) *Config {
	return &Config{
		Cylinders: cylinders,
		Strokes:   FourStroke,
		InjLayout: inj,
		InjTiming: true,
		ReqFuel:   86,
		SparkMode: spark,
	}
}

func TestLayoutFourCylinderPaired(t *testing.T) {
	l := computeLayout(layoutConfig(4, InjPaired, SparkWasted), 4, 4, false)

	assert.Equal(t, InjPaired, l.InjLayout)
	assert.Equal(t, uint8(2), l.PrimaryChannels)
	assert.Equal(t, uint8(2), l.FuelChannels())
	assert.Equal(t, []uint16{0, 180}, l.FuelDegrees[:2])
	assert.Equal(t, uint16(360), l.InjAngleMax)
	assert.Equal(t, uint32(86*50), l.ReqFuelUS)
	assert.Equal(t, maskOf(0), l.FuelOutputs[0])
	assert.Equal(t, maskOf(1), l.FuelOutputs[1])

	assert.Equal(t, SparkWasted, l.SparkMode)
	assert.Equal(t, uint8(2), l.IgnChannels)
	assert.Equal(t, []uint16{0, 180}, l.IgnDegrees[:2])
	assert.Equal(t, uint16(360), l.IgnAngleMax)
}

func TestLayoutSequentialFollowsSync(t *testing.T) {
	cfg := layoutConfig(4, InjSequential, SparkSequential)

	full := computeLayout(cfg, 4, 4, true)
	assert.Equal(t, InjSequential, full.InjLayout)
	assert.Equal(t, SparkSequential, full.SparkMode)
	assert.True(t, full.FullySequential())
	assert.Equal(t, uint8(4), full.PrimaryChannels)
	assert.Equal(t, []uint16{0, 180, 360, 540}, full.FuelDegrees[:4])
	assert.Equal(t, []uint16{0, 180, 360, 540}, full.IgnDegrees[:4])
	assert.Equal(t, uint16(720), full.InjAngleMax)
	assert.Equal(t, uint16(720), full.IgnAngleMax)
	assert.Equal(t, uint32(8600), full.ReqFuelUS)

	half := computeLayout(cfg, 4, 4, false)
	assert.Equal(t, InjSemiSequential, half.InjLayout)
	assert.Equal(t, SparkWastedCOP, half.SparkMode)
	assert.False(t, half.FullySequential())
	assert.Equal(t, uint8(2), half.PrimaryChannels)
	assert.Equal(t, []uint16{0, 180}, half.FuelDegrees[:2])
	assert.Equal(t, maskOf(0, 2), half.FuelOutputs[0])
	assert.Equal(t, maskOf(1, 3), half.FuelOutputs[1])
	assert.Equal(t, maskOf(0, 2), half.IgnOutputs[0])
	assert.Equal(t, uint16(360), half.InjAngleMax)
	assert.Equal(t, full.ReqFuelUS/2, half.ReqFuelUS)
}

func TestLayoutSemiSequentialPairing(t *testing.T) {
	cfg := layoutConfig(4, InjSemiSequential, SparkWasted)
	cfg.InjPairing = InjPair14_23
	l := computeLayout(cfg, 4, 4, true)
	assert.Equal(t, maskOf(0, 3), l.FuelOutputs[0])
	assert.Equal(t, maskOf(1, 2), l.FuelOutputs[1])

	six := computeLayout(layoutConfig(6, InjSemiSequential, SparkWasted), 6, 3, true)
	assert.Equal(t, uint8(3), six.PrimaryChannels)
	assert.Equal(t, []uint16{0, 120, 240}, six.FuelDegrees[:3])
	assert.Equal(t, maskOf(2, 5), six.FuelOutputs[2])
}

func TestLayoutDowngrades(t *testing.T) {
	t.Run("sequential without enough injectors", func(t *testing.T) {
		l := computeLayout(layoutConfig(6, InjSequential, SparkWasted), 4, 4, true)
		assert.Equal(t, InjPaired, l.InjLayout)
		assert.Equal(t, uint8(3), l.PrimaryChannels)
		assert.Equal(t, []uint16{0, 120, 240}, l.FuelDegrees[:3])
		assert.Equal(t, uint16(360), l.InjAngleMax)
	})

	t.Run("sequential spark without enough coils", func(t *testing.T) {
		l := computeLayout(layoutConfig(6, InjPaired, SparkSequential), 6, 3, true)
		assert.Equal(t, SparkWasted, l.SparkMode)
		assert.Equal(t, uint8(3), l.IgnChannels)
	})

	t.Run("cop without enough coils", func(t *testing.T) {
		l := computeLayout(layoutConfig(4, InjPaired, SparkWastedCOP), 4, 2, true)
		assert.Equal(t, SparkWasted, l.SparkMode)
		assert.Equal(t, maskOf(1), l.IgnOutputs[1])
	})

	t.Run("rotary on six cylinders", func(t *testing.T) {
		l := computeLayout(layoutConfig(6, InjPaired, SparkRotary), 6, 6, true)
		assert.Equal(t, SparkWasted, l.SparkMode)
	})

	t.Run("semi-sequential on an odd engine", func(t *testing.T) {
		l := computeLayout(layoutConfig(3, InjSemiSequential, SparkWasted), 4, 4, true)
		assert.Equal(t, InjPaired, l.InjLayout)
		assert.Equal(t, []uint16{0, 120, 240}, l.FuelDegrees[:3])
	})

	t.Run("fewer channels than slots keeps spacing", func(t *testing.T) {
		l := computeLayout(layoutConfig(8, InjPaired, SparkWasted), 2, 2, true)
		assert.Equal(t, uint8(2), l.PrimaryChannels)
		assert.Equal(t, []uint16{0, 90}, l.FuelDegrees[:2])
	})
}

func TestLayoutRotary(t *testing.T) {
	l := computeLayout(layoutConfig(4, InjPaired, SparkRotary), 4, 4, true)
	assert.Equal(t, SparkRotary, l.SparkMode)
	assert.Equal(t, uint8(4), l.IgnChannels)
	assert.Equal(t, []uint16{0, 180, 0, 180}, l.IgnDegrees[:4])
	assert.False(t, l.IsRotaryTrailing(1))
	assert.True(t, l.IsRotaryTrailing(2))
}

func TestLayoutSingleCoil(t *testing.T) {
	l := computeLayout(layoutConfig(4, InjPaired, SparkSingle), 4, 4, true)
	for i := uint8(0); i < l.IgnChannels; i++ {
		assert.Equal(t, maskOf(0), l.IgnOutputs[i])
	}
}

func TestLayoutStaging(t *testing.T) {
	cfg := layoutConfig(4, InjPaired, SparkWasted)
	cfg.Staging.Enabled = true

	full := computeLayout(cfg, 4, 4, true)
	assert.Equal(t, uint8(2), full.SecondaryChannels)
	assert.Equal(t, uint8(4), full.FuelChannels())
	assert.True(t, full.IsSecondary(2))
	assert.False(t, full.IsSecondary(1))
	assert.Equal(t, []uint16{0, 180, 0, 180}, full.FuelDegrees[:4])
	assert.Equal(t, maskOf(2), full.FuelOutputs[2])
	assert.Equal(t, maskOf(3), full.FuelOutputs[3])

	single := computeLayout(cfg, 3, 4, true)
	assert.Equal(t, uint8(1), single.SecondaryChannels)
	assert.Equal(t, maskOf(2), single.FuelOutputs[2])

	cfg.InjLayout = InjSemiSequential
	none := computeLayout(cfg, 4, 4, true)
	assert.Zero(t, none.SecondaryChannels, "semi-sequential uses every output")
}

func TestLayoutOddFireAndTiming(t *testing.T) {
	cfg := layoutConfig(2, InjPaired, SparkWasted)
	cfg.EngineType = OddFire
	cfg.OddFire = [3]uint16{270, 0, 0}
	l := computeLayout(cfg, 2, 2, true)
	assert.Equal(t, []uint16{0, 270}, l.FuelDegrees[:2])
	assert.Equal(t, []uint16{0, 270}, l.IgnDegrees[:2])

	cfg = layoutConfig(4, InjPaired, SparkWasted)
	cfg.InjTiming = false
	l = computeLayout(cfg, 4, 4, true)
	assert.Equal(t, []uint16{0, 0}, l.FuelDegrees[:2])
	assert.Equal(t, []uint16{0, 180}, l.IgnDegrees[:2])
}

func TestLayoutTwoStroke(t *testing.T) {
	cfg := layoutConfig(2, InjSequential, SparkSequential)
	cfg.Strokes = TwoStroke
	l := computeLayout(cfg, 2, 2, false)
	assert.Equal(t, InjSequential, l.InjLayout)
	assert.Equal(t, uint16(360), l.InjAngleMax)
	assert.Equal(t, uint16(360), l.IgnAngleMax)
	assert.Equal(t, []uint16{0, 180}, l.FuelDegrees[:2])
	assert.Equal(t, uint32(8600), l.ReqFuelUS, "two-strokes inject once per cycle")
}
