package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	ErrClosed          = errors.New("protocol: transport closed")
	ErrMessageTooLong  = errors.New("protocol: message too long")
	ErrRetriesExceeded = errors.New("protocol: block not acknowledged")
)

// sendRetries is how many NAKs a block survives before Send gives up.
const sendRetries = 3

// Response is one message received from the controller.
type Response struct {
	ID   uint16
	Args []byte
}

// ResponseHandler sees every response as it arrives, before it is queued
// for Receive. It runs on the read goroutine and must not block.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host end of the link: it frames commands, waits for
// the controller's ACK and queues responses.
type HostTransport struct {
	port io.ReadWriteCloser
	log  *slog.Logger

	sendMu sync.Mutex
	seq    uint8

	acks      chan uint8
	responses chan Response

	handlerMu sync.RWMutex
	handler   ResponseHandler

	closeOnce sync.Once
	done      chan struct{}
	readErr   error
}

// NewHostTransport starts reading port in the background.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		log:       slog.Default().With("component", "link"),
		seq:       MessageDest,
		acks:      make(chan uint8, 4),
		responses: make(chan Response, 32),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Send frames one command and waits for its ACK. A NAK retransmits.
func (t *HostTransport) Send(ctx context.Context, cmdID uint16, args func(output OutputBuffer)) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	select {
	case <-t.done:
		return t.closedErr()
	default:
	}

	var out BytesOutput
	n := encodeBlock(&out, t.seq, func(o OutputBuffer) {
		EncodeVLQUint(o, uint32(cmdID))
		if args != nil {
			args(o)
		}
	})
	if n > MessageLengthMax {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLong, n)
	}
	block := out.Bytes()
	want := nextSequence(t.seq)

	t.drainAcks()
	for attempt := 0; ; attempt++ {
		if _, err := t.port.Write(block); err != nil {
			return fmt.Errorf("write command %d: %w", cmdID, err)
		}
		for resend := false; !resend; {
			select {
			case ack := <-t.acks:
				switch {
				case ack == want:
					t.seq = want
					return nil
				case ack != t.seq:
					// stale ack from an earlier block
				case attempt >= sendRetries:
					return fmt.Errorf("%w: cmd %d seq 0x%02x", ErrRetriesExceeded, cmdID, t.seq)
				default:
					t.log.Debug("nak, retransmitting", "cmd", cmdID, "seq", t.seq)
					resend = true
				}
			case <-ctx.Done():
				return fmt.Errorf("ack for cmd %d: %w", cmdID, ctx.Err())
			case <-t.done:
				return t.closedErr()
			}
		}
	}
}

// Receive returns the next queued response.
func (t *HostTransport) Receive(ctx context.Context) (Response, error) {
	select {
	case r := <-t.responses:
		return r, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-t.done:
		return Response{}, t.closedErr()
	}
}

func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
}

// Reset restarts the sequence so the controller drops its own state, and
// discards anything queued.
func (t *HostTransport) Reset() {
	t.sendMu.Lock()
	t.seq = MessageDest
	t.drainAcks()
	for len(t.responses) > 0 {
		<-t.responses
	}
	t.sendMu.Unlock()
}

// Sequence is the sequence of the next block to send.
func (t *HostTransport) Sequence() uint8 {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return t.seq
}

// Close closes the port and waits for the reader to stop.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.port.Close()
		<-t.done
	})
	return err
}

func (t *HostTransport) closedErr() error {
	if t.readErr != nil && !errors.Is(t.readErr, io.EOF) {
		return fmt.Errorf("%w: %v", ErrClosed, t.readErr)
	}
	return ErrClosed
}

func (t *HostTransport) drainAcks() {
	for len(t.acks) > 0 {
		<-t.acks
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.done)
	in := NewFifoBuffer(4 * MessageMax)
	buf := make([]byte, 256)
	synced := true
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			in.Write(buf[:n])
			synced = t.process(in, synced)
		}
		if err != nil {
			t.readErr = err
			return
		}
	}
}

// process parses complete blocks out of in and reports the sync state.
func (t *HostTransport) process(in *FifoBuffer, synced bool) bool {
	data := in.Data()
	for len(data) > 0 {
		if !synced {
			n, found := skipToSync(data)
			data = data[n:]
			synced = found
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		msg, n, status := scanBlock(data)
		if status == blockIncomplete {
			break
		}
		if status == blockInvalid {
			t.log.Debug("bad block, resyncing")
			synced = false
			continue
		}
		data = data[n:]
		t.deliver(msg)
	}
	in.Pop(in.Available() - len(data))
	return synced
}

func (t *HostTransport) deliver(msg Message) {
	if msg.IsAck() {
		select {
		case t.acks <- msg.Sequence:
		default:
		}
		return
	}
	payload := append([]byte(nil), msg.Payload...)
	id, err := DecodeVLQUint(&payload)
	if err != nil {
		t.log.Debug("undecodable response", "err", err)
		return
	}
	t.handlerMu.RLock()
	h := t.handler
	t.handlerMu.RUnlock()
	if h != nil {
		args := payload
		_ = h(uint16(id), &args)
	}
	r := Response{ID: uint16(id), Args: payload}
	select {
	case t.responses <- r:
	default:
		// full: drop the oldest
		select {
		case <-t.responses:
		default:
		}
		t.responses <- r
	}
}
