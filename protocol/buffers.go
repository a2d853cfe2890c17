package protocol

// InputBuffer is received data waiting to be parsed.
type InputBuffer interface {
	Data() []byte
	Available() int
	// Pop discards n bytes from the front.
	Pop(n int)
}

// OutputBuffer collects outgoing blocks. Update and DataSince let a block
// writer patch its length byte and checksum the bytes it wrote.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer reads from a fixed slice.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is a fixed MessageMax buffer with no allocation, for the
// firmware's USB queue. Writes past the end are truncated.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result is everything written since the last Reset.
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

func (s *ScratchOutput) Reset() { s.pos = 0 }

// BytesOutput is a growable OutputBuffer for the host side.
type BytesOutput struct {
	buf []byte
}

func (b *BytesOutput) Output(data []byte) { b.buf = append(b.buf, data...) }
func (b *BytesOutput) CurPosition() int   { return len(b.buf) }

func (b *BytesOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < len(b.buf) {
		b.buf[pos] = val
	}
}

func (b *BytesOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > len(b.buf) {
		return nil
	}
	return b.buf[pos:]
}

func (b *BytesOutput) Bytes() []byte { return b.buf }
func (b *BytesOutput) Reset()        { b.buf = b.buf[:0] }

// FifoBuffer is a ring of received bytes. One slot stays empty to tell full
// from empty, so it holds capacity-1 bytes.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count.
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), f.Free())
	for _, b := range data[:n] {
		f.buf[f.write] = b
		f.write = (f.write + 1) % len(f.buf)
	}
	return n
}

// Read moves up to len(data) bytes out of the ring.
func (f *FifoBuffer) Read(data []byte) int {
	n := min(len(data), f.Available())
	for i := range n {
		data[i] = f.buf[f.read]
		f.read = (f.read + 1) % len(f.buf)
	}
	return n
}

func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns the buffered bytes contiguously, copying when they wrap.
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	out := make([]byte, 0, f.Available())
	out = append(out, f.buf[f.read:]...)
	return append(out, f.buf[:f.write]...)
}

func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.Available())
	f.read = (f.read + n) % len(f.buf)
}

func (f *FifoBuffer) IsEmpty() bool { return f.read == f.write }

func (f *FifoBuffer) Reset() {
	f.read, f.write = 0, 0
}
