package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("protocol: invalid vlq")
	ErrBufferTooSmall = errors.New("protocol: truncated vlq")
)

// EncodeVLQInt writes v most significant group first, seven bits per byte,
// with the top bit flagging continuation. Values in [-32, 96) take a single
// byte; the range test at each width keeps negative numbers short.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var tmp [5]byte
	n := 0
	if v < -(1<<26) || v >= 3<<26 {
		tmp[n] = byte(v>>28)&0x7F | 0x80
		n++
	}
	if v < -(1<<19) || v >= 3<<19 {
		tmp[n] = byte(v>>21)&0x7F | 0x80
		n++
	}
	if v < -(1<<12) || v >= 3<<12 {
		tmp[n] = byte(v>>14)&0x7F | 0x80
		n++
	}
	if v < -(1<<5) || v >= 3<<5 {
		tmp[n] = byte(v>>7)&0x7F | 0x80
		n++
	}
	tmp[n] = byte(v) & 0x7F
	output.Output(tmp[:n+1])
}

// EncodeVLQUint writes v with the same encoding; values above 2^31 wrap.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one value and advances data past it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}
	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		if i >= 5 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(buf[i])
		v = v<<7 | c&0x7F
		i++
	}
	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint reads one unsigned value.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes writes a length-prefixed buffer.
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes reads a length-prefixed buffer. The result aliases data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	rest := *data
	n, err := DecodeVLQUint(&rest)
	if err != nil {
		return nil, err
	}
	if uint32(len(rest)) < n {
		return nil, ErrBufferTooSmall
	}
	*data = rest[n:]
	return rest[:n], nil
}

// EncodeVLQString writes a length-prefixed string.
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQBytes(output, []byte(s))
}

// DecodeVLQString reads a length-prefixed string.
func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Args decodes a command's parameters in order. The first failure sticks:
// later reads return zero and Err reports it.
type Args struct {
	data *[]byte
	err  error
}

// NewArgs reads parameters from data, advancing it.
func NewArgs(data *[]byte) *Args {
	return &Args{data: data}
}

func (a *Args) Uint() uint32 {
	if a.err != nil {
		return 0
	}
	v, err := DecodeVLQUint(a.data)
	a.err = err
	return v
}

func (a *Args) Int() int32 {
	if a.err != nil {
		return 0
	}
	v, err := DecodeVLQInt(a.data)
	a.err = err
	return v
}

func (a *Args) Bytes() []byte {
	if a.err != nil {
		return nil
	}
	v, err := DecodeVLQBytes(a.data)
	a.err = err
	return v
}

func (a *Args) Err() error {
	return a.err
}
