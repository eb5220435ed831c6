// Package hub fans session events out to websocket subscribers using a
// channel-based broadcast loop.
package hub

// MessageType indicates the websocket frame type.
type MessageType int

const (
	// JSONMessage is sent as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage is sent as a binary frame.
	BinaryMessage
)

// Message is one broadcast frame. Room scopes it; subscribers that filter
// on a room only receive messages for that room. An empty Room reaches
// every subscriber.
type Message struct {
	Type MessageType
	Room string
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes.
func NewJSONMessage(room string, data []byte) Message {
	return Message{Type: JSONMessage, Room: room, Data: data}
}
