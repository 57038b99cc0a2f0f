package relay

import (
	"errors"

	"framerelay/internal/core/domain"
)

const (
	TypeRegister    = "register"
	TypeRegistered  = "registered"
	TypeSubscribe   = "subscribe"
	TypeSubscribed  = "subscribed"
	TypeError       = "error"
	TypeStreamEnded = "stream_ended"
)

// ControlMessage is the JSON envelope for every textual message in both
// directions.
type ControlMessage struct {
	Type     string          `json:"type"`
	StreamID domain.StreamID `json:"stream_id,omitempty"`
	Message  string          `json:"message,omitempty"`
}

func errorMessage(err error) ControlMessage {
	return ControlMessage{Type: TypeError, Message: errorText(err)}
}

// errorText keeps client-facing texts stable regardless of how the error
// was wrapped on the way up.
func errorText(err error) string {
	for _, known := range []error{
		domain.ErrMaxStreamsReached,
		domain.ErrMaxViewersReached,
		domain.ErrStreamNotFound,
		domain.ErrStreamIDTaken,
		domain.ErrRegistryUnavailable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return domain.ErrRegistryUnavailable.Error()
}
