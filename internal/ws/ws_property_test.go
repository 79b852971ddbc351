package ws

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/zetxtech/websole/internal/session"
)

func TestClientQueueProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// A client accepts exactly depth events and is closed by the next one.
	properties.Property("overflow closes the client", prop.ForAll(
		func(depth int, n int) bool {
			c := NewClient(nil, depth)
			accepted := 0
			for i := 0; i < n; i++ {
				if c.Send(session.Event{Type: session.EventOutput, Data: []byte{byte(i)}}) {
					accepted++
				}
			}
			if n <= depth {
				return accepted == n && !c.Closed()
			}
			return accepted == depth && c.Closed()
		},
		gen.IntRange(1, 32),
		gen.IntRange(0, 64),
	))

	// Output bytes reach the queue untouched, in order, as binary frames.
	properties.Property("output is queued verbatim", prop.ForAll(
		func(chunks [][]byte) bool {
			c := NewClient(nil, len(chunks)+1)
			for _, chunk := range chunks {
				if !c.Send(session.Event{Type: session.EventOutput, Data: chunk}) {
					return false
				}
			}
			for _, chunk := range chunks {
				f := <-c.send
				if f.messageType != websocket.BinaryMessage || string(f.data) != string(chunk) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.SliceOf(gen.UInt8())),
	))

	properties.TestingRun(t)
}

func TestEncodeEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   session.Event
		want string
	}{
		{"exited with zero code", session.Event{Type: session.EventExited, Code: 0}, `{"type":"exited","code":0}`},
		{"exited with code", session.Event{Type: session.EventExited, Code: 3}, `{"type":"exited","code":3}`},
		{"restarted", session.Event{Type: session.EventRestarted}, `{"type":"restarted"}`},
		{"error", session.Event{Type: session.EventError, Error: "boom"}, `{"type":"error","error":"boom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := encodeEvent(tt.ev)
			if err != nil {
				t.Fatalf("encodeEvent failed: %v", err)
			}
			if f.messageType != websocket.TextMessage {
				t.Errorf("messageType = %d, want text", f.messageType)
			}
			if string(f.data) != tt.want {
				t.Errorf("data = %s, want %s", f.data, tt.want)
			}
			var msg Message
			if err := json.Unmarshal(f.data, &msg); err != nil {
				t.Errorf("not valid JSON: %v", err)
			}
		})
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	c := NewClient(nil, 4)
	c.Close()
	c.Close()
	if !c.Closed() {
		t.Error("client should be closed")
	}
	if c.Send(session.Event{Type: session.EventOutput, Data: []byte("x")}) {
		t.Error("Send on closed client should fail")
	}
	if c.SendMessage(&Message{Type: MessageTypePong}) {
		t.Error("SendMessage on closed client should fail")
	}
}

func TestClientSize(t *testing.T) {
	c := NewClient(nil, 4)
	if rows, cols := c.Size(); rows != 0 || cols != 0 {
		t.Errorf("Size before any resize = %dx%d, want 0x0", rows, cols)
	}
	c.setSize(24, 80)
	c.setSize(40, 120)
	if rows, cols := c.Size(); rows != 40 || cols != 120 {
		t.Errorf("Size = %dx%d, want the last reported 40x120", rows, cols)
	}
}
