package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"ridematch/internal/models"

	"github.com/gorilla/websocket"
)

// ClientOptions are the connection timings, taken from WebSocketConfig.
type ClientOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	options   ClientOptions
	Principal models.Principal
	rooms     map[string]bool
}

func NewClient(hub *Hub, conn *websocket.Conn, principal models.Principal, options ClientOptions) *Client {
	options = options.withDefaults()
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, options.SendBuffer),
		options:   options,
		Principal: principal,
		rooms:     make(map[string]bool),
	}
}

// enqueue must be called with the hub lock held.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.options.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.options.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.options.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).WithUserID(c.Principal.ID).Debug("WebSocket read error")
			}
			break
		}

		c.handleMessage(ctx, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.options.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage serves the client control protocol. Only ride rooms can be
// joined or left by hand; personal and vehicle rooms follow the identity.
func (c *Client) handleMessage(ctx context.Context, message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.hub.reply(c, Message{Type: MessageError, Error: "malformed message"})
		return
	}

	switch msg.Type {
	case MessageJoin:
		rideID, ok := rideIDFromTopic(msg.Topic)
		if !ok || !c.hub.JoinRide(ctx, c, rideID) {
			c.hub.reply(c, Message{Type: MessageError, Topic: msg.Topic, Error: "not allowed to join"})
			return
		}
		c.hub.reply(c, Message{Type: MessageJoined, Topic: msg.Topic})

	case MessageLeave:
		if _, ok := rideIDFromTopic(msg.Topic); !ok {
			c.hub.reply(c, Message{Type: MessageError, Topic: msg.Topic, Error: "only ride rooms can be left"})
			return
		}
		c.hub.LeaveRoom(c, msg.Topic)
		c.hub.reply(c, Message{Type: MessageLeft, Topic: msg.Topic})

	case MessagePing:
		c.hub.reply(c, Message{Type: MessagePong})

	default:
		c.hub.reply(c, Message{Type: MessageError, Error: "unknown message type"})
	}
}

func rideIDFromTopic(topic string) (string, bool) {
	rideID := strings.TrimPrefix(topic, "ride:")
	if rideID == topic || rideID == "" {
		return "", false
	}
	return rideID, true
}
