package serial

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, 115200, cfg.Baud)
	assert.Positive(t, cfg.ReadTimeout)
}

func TestOpenRequiresDevice(t *testing.T) {
	_, err := Open(nil)
	assert.ErrorIs(t, err, ErrNoDevice)
	_, err = Open(&Config{})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestIsWebSocket(t *testing.T) {
	assert.True(t, IsWebSocket("ws://gateway:8080/link"))
	assert.True(t, IsWebSocket("wss://gateway/link"))
	assert.False(t, IsWebSocket("/dev/ttyACM0"))
	assert.False(t, IsWebSocket("COM3"))
}

func TestSortPortsPutsUSBFirst(t *testing.T) {
	ports := []string{"/dev/ttyS1", "/dev/ttyUSB0", "/dev/ttyS0", "/dev/ttyACM0"}
	sortPorts(ports)
	assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyS0", "/dev/ttyS1"}, ports)
}

// echoServer answers every binary message with the same bytes and drops
// text frames.
func echoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ignored")); err != nil {
					return
				}
				if err := conn.WriteMessage(kind, data); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketPort(t *testing.T) {
	url := echoServer(t)
	port, err := Open(&Config{Device: url})
	require.NoError(t, err)
	defer port.Close()

	block := []byte{0x05, 0x10, 0x8c, 0x40, 0x7e}
	n, err := port.Write(block)
	require.NoError(t, err)
	assert.Equal(t, len(block), n)

	// A small buffer splits the message over several reads.
	var got []byte
	buf := make([]byte, 2)
	for len(got) < len(block) {
		n, err := port.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, block, got)
	require.NoError(t, port.Flush())
}

func TestWebSocketDialFailure(t *testing.T) {
	_, err := DialWebSocket("ws://127.0.0.1:1/none")
	assert.Error(t, err)
}
