package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 32
)

// client is one upgraded connection. Its send channel is owned by the hub goroutine.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closed bool
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue hands a frame to the write pump. It reports false when the client is gone or too slow.
func (that *client) enqueue(frame []byte) bool {
	if that.closed {
		return false
	}

	select {
	case that.send <- frame:
		return true
	default:
		return false
	}
}

func (that *client) close() {
	if that.closed {
		return
	}

	that.closed = true
	close(that.send)
}

// readPump - forwards every inbound frame to the hub until the connection fails.
func (that *client) readPump(hub *Server) {
	log := hub.logger.With("method", "readPump", "connID", that.id)

	defer func() {
		hub.publish(disconnectedEvent{client: that})
		_ = that.conn.Close()
	}()

	that.conn.SetReadLimit(maxMessageSize)
	_ = that.conn.SetReadDeadline(time.Now().Add(pongWait))
	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("connection closed unexpectedly", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Debug("failed to unmarshal message", "error", err)
			message = Message{}
		}

		if !hub.publish(requestEvent{client: that, message: message}) {
			return
		}
	}
}

// writePump - drains the send channel to the connection and keeps it alive with pings.
// It also closes the connection once the hub has stopped, so a client the hub never registered does not linger.
func (that *client) writePump(hubDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-hubDone:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = that.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
