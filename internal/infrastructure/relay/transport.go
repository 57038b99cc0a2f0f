package relay

import "errors"

// ErrTransportClosed marks an orderly end of a connection. It is a normal
// terminal event, not a failure.
var ErrTransportClosed = errors.New("transport closed")

type MessageType int

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
)

// Message is one inbound unit: a textual control message or a raw frame.
type Message struct {
	Type MessageType
	Data []byte
}

// Transport is the bidirectional channel a connection runs over. Receive is
// called from one goroutine at a time and so are the Send methods; Close may
// be called from anywhere, any number of times, and unblocks Receive.
type Transport interface {
	Receive() (Message, error)
	SendJSON(v interface{}) error
	SendBinary(frame []byte) error
	Close() error
}
