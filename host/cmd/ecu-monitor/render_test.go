package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparkcore/host/ecu"
	"sparkcore/telemetry"
)

func TestRenderStatus(t *testing.T) {
	s := telemetry.Snapshot{
		RPM:            6200,
		FullSync:       true,
		Cut:            "rolling",
		RollingPercent: 40,
		FuelMask:       0x05,
		IgnMask:        0xFF,
		Protect:        []string{"rpm"},
		Fuel:           []string{"RUNNING", "PENDING"},
		Ignition:       []string{"OFF", "OFF"},
		Injections:     120,
		Sparks:         118,
	}
	out := renderStatus(&s)
	assert.Contains(t, out, "rpm 6200")
	assert.Contains(t, out, "sync full")
	assert.Contains(t, out, "cut rolling 40%")
	assert.Contains(t, out, "fuel 00000101")
	assert.Contains(t, out, "protect rpm")
	assert.Contains(t, out, "RUNNING PENDING")
	assert.NotContains(t, out, "EMERGENCY STOP")

	s.Shutdown = true
	assert.Contains(t, renderStatus(&s), "EMERGENCY STOP")
}

func TestRenderDictionaryOrdersByID(t *testing.T) {
	out := renderDictionary(&ecu.Dictionary{
		Version:   "fw-1",
		Config:    map[string]string{"CYLINDERS": "4", "CLOCK_FREQ": "1000000"},
		Commands:  map[string]int{"restart": 12, "identify offset=%u count=%c": 1},
		Responses: map[string]int{"identify_response offset=%u data=%*s": 0},
	})
	assert.Less(t, strings.Index(out, "CLOCK_FREQ"), strings.Index(out, "CYLINDERS"))
	assert.Less(t, strings.Index(out, "identify offset"), strings.Index(out, "restart"))
	assert.Contains(t, out, "version fw-1")
}

func TestParsePulse(t *testing.T) {
	kind, ch, us, err := parsePulse([]string{"ignition", "2", "1500"})
	require.NoError(t, err)
	assert.Equal(t, "ignition", kind.String())
	assert.Equal(t, uint8(2), ch)
	assert.Equal(t, uint32(1500), us)

	_, _, _, err = parsePulse([]string{"horn", "0", "10"})
	assert.Error(t, err)
	_, _, _, err = parsePulse([]string{"fuel", "300", "10"})
	assert.Error(t, err)
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory("abc", []telemetry.Snapshot{{RPM: 900, Cut: "none"}, {RPM: 0, Shutdown: true, Cut: "full"}})
	assert.Contains(t, out, "session abc")
	assert.Contains(t, out, "rpm=900 cut=none")
	assert.Contains(t, out, "ESTOP")
}
