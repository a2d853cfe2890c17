package sim

import (
	"context"
	"errors"
	"io"

	"sparkcore/core"
	"sparkcore/protocol"
)

// Version is reported in the simulator's dictionary.
const Version = "sparkcore-sim"

// ServeLink answers the host protocol on rw until ctx is done or rw fails.
// If rw is also an io.Closer it is closed when ctx ends so a blocked read
// returns.
func (s *Simulator) ServeLink(ctx context.Context, rw io.ReadWriter) error {
	out := protocol.NewScratchOutput()
	var tr *protocol.Transport
	link := core.NewLink(s.engine, Version, func(cmdID uint16, args func(protocol.OutputBuffer)) {
		tr.SendCommand(cmdID, args)
	})
	tr = protocol.NewTransport(out, link.Handle)
	tr.SetResetCallback(func() {
		s.log.Info("host reset the link")
	})

	if c, ok := rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	log := s.log.With("link", "serve")
	fifo := protocol.NewFifoBuffer(4 * protocol.MessageMax)
	buf := make([]byte, protocol.MessageLengthMax)
	for {
		n, err := rw.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		data := buf[:n]
		for len(data) > 0 {
			written := fifo.Write(data)
			data = data[written:]

			s.mu.Lock()
			tr.Receive(fifo)
			s.mu.Unlock()

			if out.CurPosition() == 0 {
				continue
			}
			if _, err := rw.Write(out.Result()); err != nil {
				log.Warn("write failed", "err", err)
				return err
			}
			out.Reset()
		}
	}
}
