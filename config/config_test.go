package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparkcore/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	applyDefaults(cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint8(4), cfg.Engine.Cylinders)
	assert.Equal(t, core.SparkWasted, cfg.Engine.SparkMode)
}

func TestLoadEmptyGivesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	want := Default()
	applyDefaults(want)
	assert.Equal(t, want, cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`
engine:
  cylinders: 6
  inj_layout: sequential
  spark_mode: sequential
  hard_rev_lim: 72
serial:
  device: /dev/ttyACM0
telemetry:
  interval: 250ms
  broker: tcp://localhost:1883
sim:
  rpm: 4500
`))
	require.NoError(t, err)

	assert.Equal(t, uint8(6), cfg.Engine.Cylinders)
	assert.Equal(t, core.InjSequential, cfg.Engine.InjLayout)
	assert.Equal(t, core.SparkSequential, cfg.Engine.SparkMode)
	assert.Equal(t, uint8(72), cfg.Engine.HardRevLim)
	assert.Equal(t, uint16(86), cfg.Engine.ReqFuel, "untouched keys keep the default")

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Device)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, 250*time.Millisecond, cfg.Telemetry.Interval)
	assert.Equal(t, "sparkcore/status", cfg.Telemetry.Topic)
	assert.Equal(t, uint16(4500), cfg.Sim.RPM)
	assert.Equal(t, "recorder", cfg.Outputs.Driver)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown key", "engine:\n  cylindres: 4\n", nil},
		{"unknown enum name", "engine:\n  spark_mode: distributor\n", nil},
		{"cylinders", "engine:\n  cylinders: 9\n", core.ErrInvalidCylinders},
		{"driver", "outputs:\n  driver: relay\n", ErrUnknownDriver},
		{"gpio lines", "outputs:\n  driver: gpiocdev\n", ErrOutputLines},
		{"qos", "telemetry:\n  qos: 3\n", ErrQoS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Engine.SparkMode = core.SparkWastedCOP
	applyDefaults(cfg)

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "spark_mode: wasted-cop")

	back, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  cylinders: 8\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), cfg.Engine.Cylinders)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
