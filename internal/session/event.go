package session

// EventType identifies what an Event carries to a client.
type EventType string

const (
	// EventOutput carries raw program output.
	EventOutput EventType = "output"

	// EventExited reports that the program exited with Code.
	EventExited EventType = "exited"

	// EventRestarted reports that a new program instance replaced the old one.
	EventRestarted EventType = "restarted"

	// EventError carries a notice that a start attempt failed.
	EventError EventType = "error"
)

// Event is one item delivered to an attached client. Data is shared between
// all clients and must not be modified.
type Event struct {
	Type  EventType
	Data  []byte
	Code  int
	Error string
}

// Subscriber is an attached client as seen by the hub.
type Subscriber interface {
	// ID uniquely identifies the connection.
	ID() string

	// Send queues ev without blocking. It returns false when the subscriber
	// is closed or could not keep up; the hub then drops it.
	Send(ev Event) bool

	// Close stops delivery and releases the subscriber's queue. It must be
	// safe to call more than once.
	Close()

	// Closed reports whether Close was called.
	Closed() bool
}
