package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zetxtech/websole/internal/session"
)

// MessageType represents the type of a JSON WebSocket message.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeInput   MessageType = "input"
	MessageTypeResize  MessageType = "resize"
	MessageTypeRestart MessageType = "restart"
	MessageTypePing    MessageType = "ping"

	// Server -> Client message types
	MessageTypeExited    MessageType = "exited"
	MessageTypeRestarted MessageType = "restarted"
	MessageTypeError     MessageType = "error"
	MessageTypePong      MessageType = "pong"
)

// Message is a control message carried in a text frame. Program output is
// never wrapped in a Message; it travels as raw binary frames.
type Message struct {
	Type  MessageType `json:"type"`
	Data  string      `json:"data,omitempty"`
	Rows  uint16      `json:"rows,omitempty"`
	Cols  uint16      `json:"cols,omitempty"`
	Code  *int        `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

// DefaultQueueDepth is the number of frames a client may lag behind before
// it is disconnected.
const DefaultQueueDepth = 256

// frame is one outbound WebSocket message.
type frame struct {
	messageType int
	data        []byte
}

// Client is one WebSocket connection attached to the session hub.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan frame

	mu         sync.Mutex
	closed     bool
	rows, cols uint16
}

// NewClient creates a client with a send queue of the given depth.
func NewClient(conn *websocket.Conn, depth int) *Client {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan frame, depth),
	}
}

// ID returns the unique client id.
func (c *Client) ID() string {
	return c.id
}

// Send queues a hub event. It never blocks; when the queue is full the
// client is closed and false is returned.
func (c *Client) Send(ev session.Event) bool {
	f, err := encodeEvent(ev)
	if err != nil {
		return true
	}
	return c.enqueue(f)
}

// SendMessage queues a control message.
func (c *Client) SendMessage(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return true
	}
	return c.enqueue(frame{messageType: websocket.TextMessage, data: data})
}

func (c *Client) enqueue(f frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- f:
		return true
	default:
		// Buffer full, close the client
		c.closeLocked()
		return false
	}
}

// Close closes the send queue. The write pump then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Closed returns true if the client is closed.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Size returns the last window size this client reported.
func (c *Client) Size() (rows, cols uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows, c.cols
}

func (c *Client) setSize(rows, cols uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows, c.cols = rows, cols
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func encodeEvent(ev session.Event) (frame, error) {
	var msg Message
	switch ev.Type {
	case session.EventOutput:
		return frame{messageType: websocket.BinaryMessage, data: ev.Data}, nil
	case session.EventExited:
		code := ev.Code
		msg = Message{Type: MessageTypeExited, Code: &code}
	case session.EventRestarted:
		msg = Message{Type: MessageTypeRestarted}
	default:
		msg = Message{Type: MessageTypeError, Error: ev.Error}
	}

	data, err := json.Marshal(&msg)
	if err != nil {
		return frame{}, err
	}
	return frame{messageType: websocket.TextMessage, data: data}, nil
}
