package core

// CutStatus summarises a SchedulerCutState.
type CutStatus uint8

const (
	CutNone CutStatus = iota
	CutRolling
	CutFull
)

func (c CutStatus) String() string {
	switch c {
	case CutRolling:
		return "rolling"
	case CutFull:
		return "full"
	default:
		return "none"
	}
}

// SchedulerCutState says which channels may be armed on this pass. A set bit
// enables the channel.
type SchedulerCutState struct {
	FuelChannels     ChannelMask
	IgnitionChannels ChannelMask
	// IgnitionChannelsPending are channels whose spark is held off until
	// their fuel has had a full cycle to return.
	IgnitionChannelsPending ChannelMask
	Status                  CutStatus
}

func cutAllOn() SchedulerCutState {
	return SchedulerCutState{
		FuelChannels:     AllChannels,
		IgnitionChannels: AllChannels,
		Status:           CutNone,
	}
}

func cutAllOff() SchedulerCutState {
	return SchedulerCutState{Status: CutFull}
}
