//go:build rp2040

package main

import (
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"sparkcore/core"
)

// RP2040 timer peripheral. The TinyGo runtime owns alarm 0 for sleeping;
// schedule compares use alarm 1.
const (
	timerBase     = 0x40054000
	timerALARM1   = timerBase + 0x14
	timerTIMERAWH = timerBase + 0x24 // raw high word, no latching
	timerTIMERAWL = timerBase + 0x28 // raw low word
	timerINTR     = timerBase + 0x34
	timerINTE     = timerBase + 0x38
	timerINTF     = timerBase + 0x3C

	alarmBit = 1 << 1
)

var (
	timerRAWH  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
	alarm1     = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM1)))
	timerIntR  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTR)))
	timerIntE  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTE)))
	timerIntF  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTF)))
	timerQueue *core.TimerQueue
)

// GetHardwareUptime reads the full 64-bit microsecond counter.
func GetHardwareUptime() uint64 {
	// Read high, low, high again to catch a carry between the two words.
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime copies the hardware counter into the core clock.
func UpdateSystemTime() {
	core.SetMicros(GetHardwareUptime())
}

// InitClock multiplexes every schedule compare channel onto alarm 1. The
// queue reads the live counter when arming and re-arms the alarm whenever
// a new earliest wake is queued.
func InitClock() *core.TimerQueue {
	q := core.NewTimerQueue()
	q.Clock = func() uint64 {
		return GetHardwareUptime() / core.TimerTickUS
	}
	q.Rearm = armAlarm
	q.AdvanceTo(q.Clock())
	timerQueue = q

	irq := interrupt.New(rp.IRQ_TIMER_IRQ_1, alarmHandler)
	irq.SetPriority(0x00)
	timerIntE.SetBits(alarmBit)
	irq.Enable()
	return q
}

// armAlarm programs alarm 1 for an absolute tick. The alarm matches the
// low 32 bits exactly, so a wake already in the past is forced instead.
func armAlarm(wake uint64) {
	us := wake * core.TimerTickUS
	alarm1.Set(uint32(us))
	if GetHardwareUptime() >= us {
		timerIntF.SetBits(alarmBit)
	}
}

func alarmHandler(interrupt.Interrupt) {
	timerIntF.ClearBits(alarmBit)
	timerIntR.Set(alarmBit)

	q := timerQueue
	for {
		q.AdvanceTo(GetHardwareUptime() / core.TimerTickUS)
		wake, ok := q.NextWake()
		if !ok {
			return
		}
		us := wake * core.TimerTickUS
		alarm1.Set(uint32(us))
		if GetHardwareUptime() < us {
			return
		}
	}
}
