package network

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrSendBufferFull = errors.New("send buffer full")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Connection wraps the WebSocket connection with additional fields
type Connection struct {
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewConnection creates a new connection wrapper
func NewConnection(ws *websocket.Conn, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Connection{
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("remote", ws.RemoteAddr().String()),
	}
}

// ReadPump reads messages from the WebSocket connection until it fails or
// the connection is closed. Messages are handled one at a time.
func (c *Connection) ReadPump(h MessageHandler) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("error reading message", "error", err)
			}
			return
		}

		h.HandleMessage(c, message)
	}
}

// WritePump writes queued messages and keeps the connection alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// SendMessage queues a message for the client. A client that cannot keep up
// is disconnected.
func (c *Connection) SendMessage(msg interface{}) error {
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		c.logger.Warn("send buffer full, closing connection")
		c.Close()
		return ErrSendBufferFull
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
		// the write pump sends the close frame; give it a moment before dropping the socket
		go func() {
			time.Sleep(writeWait / 10)
			_ = c.ws.Close()
		}()
	})
}

// Done is closed once the connection shuts down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// MessageHandler interface for handling messages
type MessageHandler interface {
	HandleMessage(conn *Connection, message []byte)
}
