package domain

import "errors"

var (
	ErrStreamNotFound      = errors.New("stream not found")
	ErrMaxStreamsReached   = errors.New("max streams reached")
	ErrMaxViewersReached   = errors.New("max viewers reached")
	ErrStreamIDTaken       = errors.New("stream id already in use")
	ErrRegistryUnavailable = errors.New("service unavailable")
)

// IsAdmissionRejected reports whether err is one of the admission control
// rejections.
func IsAdmissionRejected(err error) bool {
	return errors.Is(err, ErrMaxStreamsReached) || errors.Is(err, ErrMaxViewersReached)
}
