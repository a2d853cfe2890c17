package protocol

import "sync/atomic"

// CommandHandler runs one decoded command. data is positioned at the
// command's arguments and must be advanced past them.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the controller end of the link. It validates blocks from the
// host, dispatches their commands in order, acknowledges each block and
// frames responses.
type Transport struct {
	synchronized atomic.Bool
	// expected sequence of the next host block, with MessageDest set
	nextSeq atomic.Uint32

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synchronized.Store(true)
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive consumes every complete block in input. Partial blocks stay
// buffered for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	for len(data) > 0 {
		if !t.synchronized.Load() {
			n, found := skipToSync(data)
			data = data[n:]
			if found {
				t.synchronized.Store(true)
				t.encodeAckNak()
			}
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
			t.synchronized.Store(false)
			continue
		}
		data = data[n:]

		expected := uint8(t.nextSeq.Load())
		if msg.Sequence == MessageDest && expected != MessageDest {
			// host restarted its sequence
			expected = MessageDest
			t.nextSeq.Store(MessageDest)
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}
		if msg.Sequence == expected {
			t.nextSeq.Store(uint32(nextSequence(expected)))
			_ = t.dispatch(msg.Payload)
		}
		// an out-of-order block gets a NAK naming the sequence we want
		t.encodeAckNak()
	}
	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatch runs every command in a block. A malformed id desyncs the
// link; a handler error drops the rest of the block.
func (t *Transport) dispatch(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.synchronized.Store(false)
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synchronized.Store(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) encodeAckNak() {
	encodeBlock(t.output, uint8(t.nextSeq.Load()), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame queues a block. Responses carry the current expected
// sequence; they never advance it.
func (t *Transport) EncodeFrame(frame func(output OutputBuffer)) {
	encodeBlock(t.output, uint8(t.nextSeq.Load()), frame)
}

// SendCommand queues a response block holding one message.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(out OutputBuffer) {
		EncodeVLQUint(out, uint32(cmdID))
		if args != nil {
			args(out)
		}
	})
}

// Reset returns to the power-on state, for a reconnected host.
func (t *Transport) Reset() {
	t.synchronized.Store(true)
	t.nextSeq.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// NextSequence is the sequence the next host block must carry.
func (t *Transport) NextSequence() uint8 {
	return uint8(t.nextSeq.Load())
}

func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback is called after every ACK so the host sees it before
// any response queued behind it.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
