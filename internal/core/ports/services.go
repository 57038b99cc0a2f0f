package ports

import (
	"framerelay/internal/core/domain"
	"framerelay/pkg/broadcast"
)

// StreamSession is the live state of one publisher: its frame channel and
// the number of attached viewers.
type StreamSession interface {
	ID() domain.StreamID
	Publish(frame []byte) bool
	Subscribe() *broadcast.Receiver
	AdmitViewer() (release func(), err error)
	Viewers() int64
	Info() domain.StreamInfo
}

// SessionRegistry maps stream ids to live sessions and enforces the
// max-streams limit.
type SessionRegistry interface {
	Register(requested domain.StreamID) (StreamSession, error)
	Lookup(id domain.StreamID) (StreamSession, error)
	Unregister(id domain.StreamID)
	List() []domain.StreamInfo
	Len() int
}

// RelayMetrics receives relay events for monitoring.
type RelayMetrics interface {
	RecordStreamRegistered(streamID domain.StreamID)
	RecordStreamEnded(streamID domain.StreamID)
	RecordViewerJoined(streamID domain.StreamID)
	RecordViewerLeft(streamID domain.StreamID)
	RecordFrame(bytes int, delivered bool)
	RecordLagged(missed uint64)
	RecordRejected(reason domain.RejectReason)
}
