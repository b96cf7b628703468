// Package edge is the WebSocket and HTTP front door: framing, schema
// validation, connection lifecycle and routing into rooms.
package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/protocol"
	"github.com/infinitune/roomserver/internal/room"
	"github.com/infinitune/roomserver/internal/utils"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead. Transport-level, independent of protocol pings.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound messages.
	maxMessageSize = 32 * 1024
)

// Client is one WebSocket connection. Until a join succeeds it is unbound;
// after binding it relays messages into its room and implements room.Sender
// for the way back.
type Client struct {
	edge *Edge
	conn *websocket.Conn

	// send is the bounded outbound queue. Overflow means eviction.
	send chan []byte

	// room and deviceID are the binding. Only the read pump touches them.
	room     *room.Room
	deviceID string

	logger *utils.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newClient(edge *Edge, conn *websocket.Conn) *Client {
	return &Client{
		edge:   edge,
		conn:   conn,
		send:   make(chan []byte, edge.queueMax),
		logger: edge.logger.With("remote", conn.RemoteAddr().String()),
		done:   make(chan struct{}),
	}
}

// Send queues a frame for delivery. Never blocks; returns false when the
// outbound queue is full or the connection is closing, which the room treats
// as a dead socket.
func (c *Client) Send(frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Failed to marshal frame", err)
		return true // not the socket's fault, do not evict
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		c.edge.metrics.MessageSent(protocol.FrameType(frame))
		return true
	default:
		c.edge.metrics.SocketEvicted()
		return false
	}
}

// Close shuts the connection down. Idempotent; callable from any goroutine.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
}

// readPump pumps messages from the connection into the room. It owns the
// binding and runs until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
		if c.room != nil {
			c.room.Leave(c.deviceID)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Unexpected close", "err", err.Error())
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump pumps queued frames onto the connection and keeps the transport
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes, validates and dispatches one inbound message.
// Validation failures answer with an error frame; the socket stays open.
func (c *Client) handleMessage(message []byte) {
	var envelope protocol.Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		c.Send(protocol.NewError("invalid JSON"))
		return
	}
	c.edge.metrics.MessageReceived(envelope.Type)

	switch envelope.Type {
	case protocol.MsgJoin:
		c.handleJoin(message)

	case protocol.MsgCommand:
		var msg protocol.CommandMessage
		if !c.decode(message, &msg) {
			return
		}
		if !c.requireBound() {
			return
		}
		c.edge.metrics.CommandHandled(msg.Action)
		c.room.HandleCommand(c.deviceID, msg.Action, msg.Payload, msg.TargetDeviceID)

	case protocol.MsgSync:
		var msg protocol.SyncMessage
		if !c.decode(message, &msg) {
			return
		}
		if !c.requireBound() {
			return
		}
		c.room.HandleSync(c.deviceID, msg.CurrentSongID, msg.IsPlaying, msg.CurrentTime, msg.Duration)

	case protocol.MsgSetRole:
		var msg protocol.SetRoleMessage
		if !c.decode(message, &msg) {
			return
		}
		if !c.requireBound() {
			return
		}
		c.room.SetRole(c.deviceID, models.DeviceRole(msg.Role))

	case protocol.MsgSongEnded:
		if !c.requireBound() {
			return
		}
		c.room.HandleSongEnded(c.deviceID)

	case protocol.MsgRenameDevice:
		var msg protocol.RenameDeviceMessage
		if !c.decode(message, &msg) {
			return
		}
		if !c.requireBound() {
			return
		}
		c.room.RenameDevice(c.deviceID, msg.TargetDeviceID, msg.Name)

	case protocol.MsgPing:
		var msg protocol.PingMessage
		if !c.decode(message, &msg) {
			return
		}
		if c.room != nil {
			c.room.HandlePing(c.deviceID, msg.ClientTime)
			return
		}
		// Unbound sockets still get time sync.
		c.Send(protocol.PongFrame{
			Type:       protocol.FramePong,
			ClientTime: msg.ClientTime,
			ServerTime: time.Now().UnixMilli(),
		})

	case protocol.MsgLeaveRoom:
		if !c.requireBound() {
			return
		}
		r := c.room
		c.room = nil
		r.RemoveDevice(c.deviceID)
		c.deviceID = ""

	default:
		c.Send(protocol.NewError(fmt.Sprintf("unknown message type %q", envelope.Type)))
	}
}

// handleJoin resolves or creates the target room and binds the socket to it.
func (c *Client) handleJoin(message []byte) {
	var msg protocol.JoinMessage
	if !c.decode(message, &msg) {
		return
	}
	if msg.RoomID == "" && msg.PlaylistID == "" {
		c.Send(protocol.NewError("join requires roomId or playlistId"))
		return
	}
	if msg.ProtocolVersion > protocol.Version {
		c.Send(protocol.NewError(fmt.Sprintf("protocol version %d not supported", msg.ProtocolVersion)))
		c.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	target, err := c.edge.resolveRoom(ctx, msg)
	if err != nil {
		c.Send(protocol.NewError(err.Error()))
		return
	}

	// Rebinding to another room or identity implies leaving the previous
	// binding; a socket never holds two sender entries in a room.
	if c.room != nil && (c.room != target || c.deviceID != msg.DeviceID) {
		c.room.Leave(c.deviceID)
	}
	c.room = target
	c.deviceID = msg.DeviceID
	target.Join(msg.DeviceID, msg.DeviceName, models.DeviceRole(msg.Role), c)
}

// decode unmarshals and validates an inbound message, answering with an
// error frame on failure.
func (c *Client) decode(message []byte, v any) bool {
	if err := json.Unmarshal(message, v); err != nil {
		c.Send(protocol.NewError("invalid JSON: " + err.Error()))
		return false
	}
	if err := utils.ValidateStruct(v); err != nil {
		c.Send(protocol.NewError("invalid message: " + err.Error()))
		return false
	}
	return true
}

func (c *Client) requireBound() bool {
	if c.room == nil {
		c.Send(protocol.NewError("not joined to a room"))
		return false
	}
	return true
}
