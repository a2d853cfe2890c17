package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inflate(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return out
}

func TestCompressInflates(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", []byte{}},
		{"dictionary", []byte(`{"version":"sparkcore","commands":{"identify offset=%u count=%c":1}}`)},
		{"two blocks", []byte(strings.Repeat("x", maxStoredBlock+10))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, inflate(t, Compress(tt.in)))
		})
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := w.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = w.Write([]byte("ecu"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "hello ecu", string(inflate(t, buf.Bytes())))
}
