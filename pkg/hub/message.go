// Package hub fans telemetry out to websocket subscribers using a single
// goroutine that owns the client set.
package hub

// Message is one encoded payload queued for broadcast.
type Message struct {
	Topic string
	Data  []byte
}

// NewMessage creates a message for topic from pre-encoded JSON.
func NewMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Data: data}
}
