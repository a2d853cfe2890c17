package sim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparkcore/config"
	"sparkcore/core"
	"sparkcore/outputs"
	"sparkcore/protocol"
)

func newSim(t *testing.T) *Simulator {
	t.Helper()
	cfg := config.Default()
	cfg.Sim.PulseWidth = 3000
	cfg.Sim.Dwell = 3000
	return New(cfg, nil, nil)
}

func TestSimulateDefaultEngine(t *testing.T) {
	s := newSim(t)
	r := s.Simulate(3000, 20)

	assert.Equal(t, 20, r.Revolutions)
	assert.Equal(t, 400*time.Millisecond, r.Duration.Round(time.Millisecond))
	assert.Equal(t, uint16(3000), r.Diagnostics.RPM)
	assert.True(t, r.Diagnostics.FullSync, "cam pulses give full sync")

	// Paired injection and wasted spark on four cylinders: two channels
	// per bank, each firing once per revolution.
	require.Len(t, r.Fuel, 2)
	require.Len(t, r.Ignition, 2)
	for _, ch := range r.Fuel {
		assert.GreaterOrEqual(t, ch.Pulses, 15, "fuel channel %d", ch.Channel)
		assert.LessOrEqual(t, ch.Pulses, 20, "fuel channel %d", ch.Channel)
		assert.InDelta(t, 3000, ch.MeanWidth, 8, "fuel channel %d", ch.Channel)
	}
	for _, ch := range r.Ignition {
		assert.GreaterOrEqual(t, ch.Pulses, 15, "ignition channel %d", ch.Channel)
		assert.LessOrEqual(t, ch.Pulses, 20, "ignition channel %d", ch.Channel)
	}
	assert.Positive(t, r.Tacho)
	assert.LessOrEqual(t, r.Tacho, int(r.Diagnostics.Sparks))
}

func TestSimulateWithoutCamRunsHalfSync(t *testing.T) {
	s := newSim(t)
	s.SetCam(false)
	r := s.Simulate(2000, 10)

	assert.False(t, r.Diagnostics.FullSync)
	assert.Equal(t, uint16(2000), r.Diagnostics.RPM)
	for _, ch := range r.Fuel {
		assert.Positive(t, ch.Pulses)
	}
}

func TestSimulateStoppedCrank(t *testing.T) {
	s := newSim(t)
	r := s.Simulate(0, 10)
	assert.Zero(t, r.Revolutions)
	assert.Empty(t, s.Recorder().Events())
}

func TestEmergencyStopSilencesOutputs(t *testing.T) {
	s := newSim(t)
	s.Simulate(3000, 10)

	s.Lock()
	s.Engine().EmergencyStop()
	s.Unlock()

	r := s.Simulate(3000, 10)
	for _, ch := range append(r.Fuel, r.Ignition...) {
		assert.Zero(t, ch.Pulses)
	}
	for n := uint8(0); n < 4; n++ {
		assert.False(t, s.Recorder().Level(core.OutputFuel, n))
		assert.False(t, s.Recorder().Level(core.OutputIgnition, n))
	}
	assert.True(t, r.Diagnostics.Shutdown)

	s.Lock()
	s.Engine().Restart()
	s.Unlock()
	r = s.Simulate(3000, 10)
	assert.Positive(t, r.Fuel[0].Pulses)
}

func TestStallDropsSync(t *testing.T) {
	s := newSim(t)
	s.Simulate(3000, 5)
	s.SetRPM(0)
	s.Advance(2 * core.MaxRevolutionTime)

	d := s.Diagnostics()
	assert.Zero(t, d.RPM)
	assert.Zero(t, d.StartRevolutions)
	for n := uint8(0); n < 4; n++ {
		assert.False(t, s.Recorder().Level(core.OutputFuel, n))
	}
}

func TestRevLimiterCuts(t *testing.T) {
	s := newSim(t)
	free := s.Simulate(5000, 20)
	limited := s.Simulate(6600, 20)

	assert.True(t, limited.Diagnostics.Protect.Has(core.ProtectRPM))
	assert.Less(t, limited.Diagnostics.Injections-free.Diagnostics.Injections,
		free.Diagnostics.Injections, "full cut above the hard limit")
}

func TestTeeMirrorsEdges(t *testing.T) {
	extra := outputs.NewRecorder()
	cfg := config.Default()
	cfg.Sim.PulseWidth = 2000
	cfg.Sim.Dwell = 2000
	s := New(cfg, extra, nil)
	s.Simulate(3000, 6)

	assert.Equal(t, s.Recorder().Pulses(core.OutputFuel, 0), extra.Pulses(core.OutputFuel, 0))
	assert.Equal(t, s.Recorder().Pulses(core.OutputIgnition, 1), extra.Pulses(core.OutputIgnition, 1))
	assert.Equal(t, s.Recorder().TachoPulses(), extra.TachoPulses())
}

func TestServeLink(t *testing.T) {
	s := newSim(t)
	s.Advance(5000)

	host, fw := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.ServeLink(ctx, fw) }()

	tr := protocol.NewHostTransport(host)
	defer tr.Close()

	sendCtx, done := context.WithTimeout(ctx, 2*time.Second)
	defer done()

	// get_clock (2) answers with clock (3).
	require.NoError(t, tr.Send(sendCtx, 2, nil))
	resp, err := tr.Receive(sendCtx)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), resp.ID)
	args := protocol.NewArgs(&resp.Args)
	assert.Equal(t, uint32(5000), args.Uint())
	require.NoError(t, args.Err())

	cancel()
	select {
	case err := <-served:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeLink did not stop")
	}
}
