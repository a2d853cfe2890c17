// Package telemetry turns controller status into compact CBOR snapshots and
// republishes or records them on the host.
package telemetry

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"sparkcore/core"
)

// Snapshot is one status poll. Integer keys keep the payload small.
type Snapshot struct {
	Time             int64    `cbor:"1,keyasint" json:"time"` // unix ms
	RPM              uint16   `cbor:"2,keyasint" json:"rpm"`
	RevolutionTime   uint32   `cbor:"3,keyasint" json:"revolution_time"`
	StartRevolutions uint16   `cbor:"4,keyasint" json:"start_revolutions"`
	FullSync         bool     `cbor:"5,keyasint" json:"full_sync"`
	Shutdown         bool     `cbor:"6,keyasint" json:"shutdown"`
	Cut              string   `cbor:"7,keyasint" json:"cut"`
	FuelMask         uint8    `cbor:"8,keyasint" json:"fuel_mask"`
	IgnMask          uint8    `cbor:"9,keyasint" json:"ign_mask"`
	IgnPending       uint8    `cbor:"10,keyasint" json:"ign_pending"`
	Protect          []string `cbor:"11,keyasint,omitempty" json:"protect,omitempty"`
	RollingPercent   uint8    `cbor:"12,keyasint" json:"rolling_percent"`
	Fuel             []string `cbor:"13,keyasint" json:"fuel"`
	Ignition         []string `cbor:"14,keyasint" json:"ignition"`
	Injections       uint32   `cbor:"15,keyasint" json:"injections"`
	Sparks           uint32   `cbor:"16,keyasint" json:"sparks"`
	Overdwells       uint32   `cbor:"17,keyasint" json:"overdwells"`
}

var protectNames = []struct {
	flag core.ProtectStatus
	name string
}{
	{core.ProtectRPM, "rpm"},
	{core.ProtectMAP, "map"},
	{core.ProtectOil, "oil"},
	{core.ProtectAFR, "afr"},
	{core.ProtectCoolant, "coolant"},
}

// FromDiagnostics converts a decoded status into a snapshot taken at t.
func FromDiagnostics(d *core.Diagnostics, t time.Time) Snapshot {
	s := Snapshot{
		Time:             t.UnixMilli(),
		RPM:              d.RPM,
		RevolutionTime:   d.RevolutionTime,
		StartRevolutions: d.StartRevolutions,
		FullSync:         d.FullSync,
		Shutdown:         d.Shutdown,
		Cut:              d.Cut.Status.String(),
		FuelMask:         uint8(d.Cut.FuelChannels),
		IgnMask:          uint8(d.Cut.IgnitionChannels),
		IgnPending:       uint8(d.Cut.IgnitionChannelsPending),
		RollingPercent:   d.RollingPercent,
		Injections:       d.Injections,
		Sparks:           d.Sparks,
		Overdwells:       d.Overdwells,
	}
	for _, p := range protectNames {
		if d.Protect.Has(p.flag) {
			s.Protect = append(s.Protect, p.name)
		}
	}
	s.Fuel = statusNames(d.FuelStatus[:min(int(d.FuelChannels), core.MaxChannels)])
	s.Ignition = statusNames(d.IgnStatus[:min(int(d.IgnChannels), core.MaxChannels)])
	return s
}

func statusNames(states []core.ScheduleStatus) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = st.String()
	}
	return out
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encode renders s as deterministic CBOR.
func Encode(s Snapshot) ([]byte, error) {
	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a CBOR snapshot.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
