package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/npezzotti/go-chatroom/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one authenticated websocket connection.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *slog.Logger
	user       types.User
	send       chan *ServerMessage
	// rooms is owned by the hub goroutine.
	rooms    map[string]struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *slog.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l.With("user_id", user.Id),
		user:       user,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Error("failed to serialize message", "err", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn("ws: read", "err", err)
			}
			break
		}

		c.dispatch(raw)
	}
}

// dispatch handles one inbound frame. A failure never escapes the socket:
// it is reported to the client as message.error.
func (c *Client) dispatch(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic while handling frame", "panic", r)
			c.queueMessage(ErrInternalError())
		}
	}()

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Info("error parsing frame", "err", err)
		c.queueMessage(ErrInvalidMessage("invalid message format"))
		return
	}

	switch msg.Event {
	case EventRoomJoin:
		c.chatServer.handleJoinEvent(c, msg.Data)
	case EventMessage:
		c.chatServer.handleMessage(c, msg.Data)
	default:
		c.queueMessage(ErrInvalidMessage(fmt.Sprintf("unknown event %q", msg.Event)))
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn("write message", "err", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.deRegisterClient(c)
	c.stopClient()
}
