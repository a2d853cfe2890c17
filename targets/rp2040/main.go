//go:build rp2040

package main

import (
	"machine"
	"time"

	"sparkcore/core"
	"sparkcore/protocol"
)

// Version is reported in the dictionary.
const Version = "sparkcore-rp2040"

// watchdogTimeoutMS must exceed the slowest main loop pass.
const watchdogTimeoutMS = 500

// controlPeriodUS paces the engine checks and arming at 1kHz.
const controlPeriodUS = 1000

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	engine  *core.Engine
	decoder *core.PulseDecoder

	msgerrors                uint32
	overdwells               uint32
	lastControl              uint32
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable the watchdog first so a state left by the previous reset
	// cannot fire during bring-up.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	InitDebugUART()
	core.InitAsyncDebug()
	queue := InitClock()

	cfg := engineConfig()
	if err := cfg.Validate(); err != nil {
		core.DebugPrintln("[MAIN] invalid config: " + err.Error())
		return
	}
	board, fuel, ign := newBoard(queue, int(cfg.Cylinders))
	decoder = core.NewPulseDecoder()
	engine = core.NewEngine(cfg, board, decoder, core.NewRandomSource(GetHardwareUptime()))
	decoder.Attach(engine)
	for i := range fuel {
		ch := uint8(i)
		fuel[i].Handler = func() { engine.FuelCompare(ch) }
		ign[i].Handler = func() { engine.IgnitionCompare(ch) }
	}
	initTriggers(decoder)

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	link := core.NewLink(engine, Version, func(cmdID uint16, args func(protocol.OutputBuffer)) {
		transport.SendCommand(cmdID, args)
	})
	transport = protocol.NewTransport(outputBuffer, link.Handle)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	transport.SetFlushCallback(writeUSB)

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogTimeoutMS})
	machine.Watchdog.Start()

	go usbReaderLoop()

	core.DebugPrintln("[MAIN] running")
	for {
		loop()
		machine.Watchdog.Update()
		time.Sleep(10 * time.Microsecond)
	}
}

// loop is one foreground pass: host link, stall and overdwell checks, then
// the fuel and spark arming for the current crank position.
func loop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			inputBuffer.Reset()
			outputBuffer.Reset()
		}
	}()

	UpdateSystemTime()

	if inputBuffer.Available() > 0 {
		data := inputBuffer.Data()
		in := protocol.NewSliceInputBuffer(data)
		transport.Receive(in)
		if consumed := len(data) - in.Available(); consumed > 0 {
			inputBuffer.Pop(consumed)
		}
	}
	if len(outputBuffer.Result()) > 0 {
		writeUSB()
	}

	now := core.Micros()
	if now-lastControl < controlPeriodUS {
		return
	}
	lastControl = now
	decoder.CheckStall(now)
	engine.CheckOverdwell(now)
	engine.Update(core.Sensors{}, benchRequest)

	if d := engine.Diagnostics(); d.Overdwells != overdwells {
		overdwells = d.Overdwells
		core.DebugAsync("[MAIN] overdwell, timing ring follows")
		core.DumpTimingRing()
	}
}

// usbReaderLoop moves bytes from USB CDC into the input FIFO. A host
// opening the port again gets a clean link; the engine keeps running.
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	attached := false
	for {
		now := hostAttached()
		if now && (!attached || usbWasDisconnected) {
			usbWasDisconnected = false
			inputBuffer.Reset()
			outputBuffer.Reset()
			transport.Reset()
			consecutiveWriteFailures = 0
		}
		attached = now

		if usbDrain(inputBuffer) == 0 && inputBuffer.Free() == 0 {
			msgerrors++
			time.Sleep(10 * time.Millisecond)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB drains the output buffer. Repeated failures mark the host gone
// and drop stale frames.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := usbWrite(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
