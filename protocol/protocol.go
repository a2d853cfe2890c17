// Package protocol implements the framed serial link between the engine
// controller and a host: VLQ-encoded commands inside CRC16-checked message
// blocks with a 4-bit sequence number.
//
// Block layout:
//
//	len | seq | payload ... | crc_hi | crc_lo | 0x7E
//
// len counts the whole block. seq carries MessageDest in its high bits. A
// block with an empty payload is an ACK (or NAK) naming the next sequence
// the receiver expects.
package protocol

// Version of the link protocol.
const Version = "sparkcore-link-1"

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F

	// MessageMax sizes the firmware output buffer: several blocks may be
	// queued between USB flushes.
	MessageMax = 512
)

// Message is one validated block.
type Message struct {
	Sequence uint8
	Payload  []byte // without header and trailer
}

// IsAck reports whether the block carries no payload.
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}

// nextSequence returns the sequence that follows seq.
func nextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
