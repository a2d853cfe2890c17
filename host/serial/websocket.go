package serial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

var ErrConnectionClosed = errors.New("websocket connection closed")

const websocketHandshakeTimeout = 10 * time.Second

// WebSocketPort carries the link byte stream in binary WebSocket messages.
// Message boundaries carry no meaning; a message larger than the read
// buffer is handed out over several reads.
type WebSocketPort struct {
	conn   *websocket.Conn
	buf    []byte
	closed bool
}

// DialWebSocket connects to a ws:// or wss:// bridge.
func DialWebSocket(url string) (*WebSocketPort, error) {
	dialer := websocket.Dialer{HandshakeTimeout: websocketHandshakeTimeout}
	ctx, cancel := context.WithTimeout(context.Background(), 2*websocketHandshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket %s (HTTP %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket %s: %w", url, err)
	}
	return NewWebSocketPort(conn), nil
}

// NewWebSocketPort wraps an established connection, client or server side.
func NewWebSocketPort(conn *websocket.Conn) *WebSocketPort {
	return &WebSocketPort{conn: conn}
}

func (w *WebSocketPort) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}
	for len(w.buf) == 0 {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		w.buf = data
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketPort) Close() error {
	return w.conn.Close()
}

// Flush drops any partly consumed message.
func (w *WebSocketPort) Flush() error {
	w.buf = nil
	return nil
}
