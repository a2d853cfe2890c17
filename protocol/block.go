package protocol

type blockStatus uint8

const (
	blockIncomplete blockStatus = iota
	blockInvalid
	blockValid
)

// scanBlock validates the block at the front of data. On blockValid, n is
// the block length and the returned payload aliases data.
func scanBlock(data []byte) (msg Message, n int, status blockStatus) {
	if len(data) < MessageLengthMin {
		return msg, 0, blockIncomplete
	}
	length := int(data[MessagePositionLen])
	if length < MessageLengthMin || length > MessageLengthMax {
		return msg, 0, blockInvalid
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return msg, 0, blockInvalid
	}
	if len(data) < length {
		return msg, 0, blockIncomplete
	}
	if data[length-MessageTrailerSync] != MessageValueSync {
		return msg, 0, blockInvalid
	}
	crc := uint16(data[length-MessageTrailerCRC])<<8 | uint16(data[length-MessageTrailerCRC+1])
	if crc != CRC16(data[:length-MessageTrailerSize]) {
		return msg, 0, blockInvalid
	}
	msg.Sequence = seq
	msg.Payload = data[MessageHeaderSize : length-MessageTrailerSize]
	return msg, length, blockValid
}

// skipToSync returns how many bytes to drop to get past the next sync byte,
// and whether one was found.
func skipToSync(data []byte) (int, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return i + 1, true
		}
	}
	return len(data), false
}

// encodeBlock writes one block around whatever payload writes and returns
// its total length.
func encodeBlock(out OutputBuffer, seq uint8, payload func(OutputBuffer)) int {
	start := out.CurPosition()
	out.Output([]byte{0, seq})
	if payload != nil {
		payload(out)
	}
	length := out.CurPosition() - start + MessageTrailerSize
	out.Update(start+MessagePositionLen, uint8(length))
	crc := CRC16(out.DataSince(start))
	out.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
	return length
}

// AppendBlock appends a block carrying payload to dst.
func AppendBlock(dst []byte, seq uint8, payload []byte) []byte {
	out := BytesOutput{buf: dst}
	encodeBlock(&out, seq, func(o OutputBuffer) { o.Output(payload) })
	return out.Bytes()
}
