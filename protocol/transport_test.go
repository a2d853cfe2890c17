package protocol

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	id   uint16
	args []uint32
}

// newFirmware returns a transport whose handler decodes every argument as a
// uint and records it.
func newFirmware(argc map[uint16]int) (*Transport, *ScratchOutput, *[]call) {
	out := NewScratchOutput()
	calls := &[]call{}
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		c := call{id: id}
		args := NewArgs(data)
		for range argc[id] {
			c.args = append(c.args, args.Uint())
		}
		*calls = append(*calls, c)
		return args.Err()
	})
	return tr, out, calls
}

func command(seq uint8, id uint16, args ...uint32) []byte {
	var payload BytesOutput
	EncodeVLQUint(&payload, uint32(id))
	for _, a := range args {
		EncodeVLQUint(&payload, a)
	}
	return AppendBlock(nil, seq, payload.Bytes())
}

// blocks parses every block in out.
func blocks(t *testing.T, out []byte) []Message {
	t.Helper()
	var msgs []Message
	for len(out) > 0 {
		msg, n, status := scanBlock(out)
		require.Equal(t, blockValid, status)
		msgs = append(msgs, msg)
		out = out[n:]
	}
	return msgs
}

func TestBlockRoundTrip(t *testing.T) {
	block := AppendBlock(nil, 0x13, []byte{1, 2, 3})
	assert.Len(t, block, MessageLengthMin+3)
	assert.Equal(t, byte(len(block)), block[MessagePositionLen])

	msg, n, status := scanBlock(block)
	assert.Equal(t, blockValid, status)
	assert.Equal(t, len(block), n)
	assert.Equal(t, uint8(0x13), msg.Sequence)
	assert.Equal(t, []byte{1, 2, 3}, msg.Payload)

	_, _, status = scanBlock(block[:len(block)-1])
	assert.Equal(t, blockIncomplete, status)

	bad := append([]byte(nil), block...)
	bad[2] ^= 0xFF
	_, _, status = scanBlock(bad)
	assert.Equal(t, blockInvalid, status)

	wrongDest := AppendBlock(nil, 0x03, nil)
	_, _, status = scanBlock(wrongDest)
	assert.Equal(t, blockInvalid, status)
}

func TestTransportDispatchesAndAcks(t *testing.T) {
	tr, out, calls := newFirmware(map[uint16]int{5: 2})
	in := NewSliceInputBuffer(command(MessageDest, 5, 300, 7))
	tr.Receive(in)

	assert.Zero(t, in.Available())
	require.Len(t, *calls, 1)
	assert.Equal(t, call{id: 5, args: []uint32{300, 7}}, (*calls)[0])

	msgs := blocks(t, out.Result())
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsAck())
	assert.Equal(t, uint8(0x11), msgs[0].Sequence)
	assert.Equal(t, uint8(0x11), tr.NextSequence())
}

func TestTransportKeepsPartialBlock(t *testing.T) {
	tr, out, calls := newFirmware(nil)
	block := command(MessageDest, 2)
	fifo := NewFifoBuffer(128)
	fifo.Write(block[:4])
	tr.Receive(fifo)
	assert.Empty(t, *calls)
	assert.Equal(t, 4, fifo.Available())

	fifo.Write(block[4:])
	tr.Receive(fifo)
	assert.Len(t, *calls, 1)
	assert.Len(t, blocks(t, out.Result()), 1)
}

func TestTransportNaksOutOfOrder(t *testing.T) {
	tr, out, calls := newFirmware(nil)
	tr.Receive(NewSliceInputBuffer(command(MessageDest, 1)))
	tr.Receive(NewSliceInputBuffer(command(0x15, 1)))

	assert.Len(t, *calls, 1, "out-of-order block is not run")
	msgs := blocks(t, out.Result())
	require.Len(t, msgs, 2)
	assert.Equal(t, uint8(0x11), msgs[1].Sequence, "nak names the expected sequence")
}

func TestTransportHostReset(t *testing.T) {
	tr, _, calls := newFirmware(nil)
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(command(0x10, 1)))
	tr.Receive(NewSliceInputBuffer(command(0x11, 1)))
	tr.Receive(NewSliceInputBuffer(command(0x10, 1)))

	assert.Equal(t, 1, resets)
	assert.Len(t, *calls, 3)
	assert.Equal(t, uint8(0x11), tr.NextSequence())
}

func TestTransportResyncsAfterGarbage(t *testing.T) {
	tr, out, calls := newFirmware(nil)
	data := append([]byte{0x42, 0x99, MessageValueSync}, command(MessageDest, 1)...)
	tr.Receive(NewSliceInputBuffer(data))

	assert.Len(t, *calls, 1)
	msgs := blocks(t, out.Result())
	require.NotEmpty(t, msgs)
	assert.Equal(t, uint8(0x11), msgs[len(msgs)-1].Sequence)
}

func TestTransportSendCommand(t *testing.T) {
	tr, out, _ := newFirmware(nil)
	tr.SendCommand(9, func(o OutputBuffer) { EncodeVLQUint(o, 1234) })

	msgs := blocks(t, out.Result())
	require.Len(t, msgs, 1)
	payload := msgs[0].Payload
	args := NewArgs(&payload)
	assert.Equal(t, uint32(9), args.Uint())
	assert.Equal(t, uint32(1234), args.Uint())
	require.NoError(t, args.Err())
}

// serveFirmware runs a firmware transport on one end of a pipe. Command 1
// echoes its argument back as response 2.
func serveFirmware(t *testing.T, conn net.Conn) {
	t.Helper()
	var (
		tr  *Transport
		out = NewScratchOutput()
	)
	tr = NewTransport(out, func(id uint16, data *[]byte) error {
		args := NewArgs(data)
		v := args.Uint()
		if id == 1 {
			tr.SendCommand(2, func(o OutputBuffer) { EncodeVLQUint(o, v+1) })
		}
		return args.Err()
	})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fifo := NewFifoBuffer(1024)
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			tr.Receive(fifo)
			if out.CurPosition() == 0 {
				continue
			}
			if _, err := conn.Write(out.Result()); err != nil {
				return
			}
			out.Reset()
		}
	}()
	t.Cleanup(func() {
		conn.Close()
		wg.Wait()
	})
}

func TestHostTransportLoopback(t *testing.T) {
	hostEnd, fwEnd := net.Pipe()
	serveFirmware(t, fwEnd)
	host := NewHostTransport(hostEnd)
	defer host.Close()

	var seen []uint16
	var mu sync.Mutex
	host.SetResponseHandler(func(id uint16, _ *[]byte) error {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := range uint32(20) {
		require.NoError(t, host.Send(ctx, 1, func(o OutputBuffer) { EncodeVLQUint(o, i) }))
		resp, err := host.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint16(2), resp.ID)
		v, err := DecodeVLQUint(&resp.Args)
		require.NoError(t, err)
		assert.Equal(t, i+1, v)
	}
	assert.Equal(t, uint8(MessageDest|20&MessageSeqMask), host.Sequence())

	mu.Lock()
	assert.Len(t, seen, 20)
	mu.Unlock()
}

func TestHostTransportRejectsLongMessage(t *testing.T) {
	hostEnd, fwEnd := net.Pipe()
	serveFirmware(t, fwEnd)
	host := NewHostTransport(hostEnd)
	defer host.Close()

	err := host.Send(context.Background(), 1, func(o OutputBuffer) {
		o.Output(make([]byte, MessageLengthMax))
	})
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestHostTransportClosed(t *testing.T) {
	hostEnd, fwEnd := net.Pipe()
	defer fwEnd.Close()
	host := NewHostTransport(hostEnd)
	require.NoError(t, host.Close())

	_, err := host.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, host.Send(context.Background(), 1, nil), ErrClosed)
}
