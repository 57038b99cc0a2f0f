package domain

import "errors"

// RejectReason labels admission and lookup failures in metrics.
type RejectReason string

const (
	RejectMaxStreams  RejectReason = "max_streams"
	RejectMaxViewers  RejectReason = "max_viewers"
	RejectNotFound    RejectReason = "not_found"
	RejectIDTaken     RejectReason = "id_taken"
	RejectUnavailable RejectReason = "unavailable"
)

// ReasonFor maps a registry error onto its metrics label.
func ReasonFor(err error) RejectReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMaxStreamsReached):
		return RejectMaxStreams
	case errors.Is(err, ErrMaxViewersReached):
		return RejectMaxViewers
	case errors.Is(err, ErrStreamNotFound):
		return RejectNotFound
	case errors.Is(err, ErrStreamIDTaken):
		return RejectIDTaken
	default:
		return RejectUnavailable
	}
}
