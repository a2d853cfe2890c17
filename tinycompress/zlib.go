// Package tinycompress produces zlib streams small enough to build on a
// microcontroller. It emits stored (uncompressed) DEFLATE blocks, so the
// output is a valid zlib stream any inflater accepts, a few bytes larger
// than the input.
package tinycompress

import (
	"hash/adler32"
	"io"
)

// maxStoredBlock is the largest payload of one stored DEFLATE block.
const maxStoredBlock = 0xFFFF

// zlib header: deflate, 32K window, default level; 0x789C is divisible by 31.
var zlibHeader = [2]byte{0x78, 0x9C}

// Compress wraps data in a zlib stream of stored blocks.
func Compress(data []byte) []byte {
	blocks := (len(data) + maxStoredBlock - 1) / maxStoredBlock
	if blocks == 0 {
		blocks = 1
	}
	out := make([]byte, 0, len(zlibHeader)+len(data)+blocks*5+4)
	out = append(out, zlibHeader[:]...)

	rest := data
	for {
		n := len(rest)
		final := byte(1)
		if n > maxStoredBlock {
			n = maxStoredBlock
			final = 0
		}
		length := uint16(n)
		out = append(out, final,
			byte(length), byte(length>>8),
			byte(^length), byte(^length>>8))
		out = append(out, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(data)
	return append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}

// Writer buffers everything written and emits one zlib stream on Close.
type Writer struct {
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer that compresses to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the stream.
func (w *Writer) Close() error {
	_, err := w.w.Write(Compress(w.buf))
	w.buf = nil
	return err
}
