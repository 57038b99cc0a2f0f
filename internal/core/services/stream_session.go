package services

import (
	"sync"
	"sync/atomic"
	"time"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"
	"framerelay/pkg/broadcast"
)

// StreamSession pairs a broadcast channel with its live viewer counter. It is
// created by SessionRegistry.Register and closed by Unregister.
type StreamSession struct {
	id        domain.StreamID
	createdAt time.Time

	channel *broadcast.Channel
	viewers atomic.Int64

	admission *AdmissionController
	metrics   ports.RelayMetrics
}

func newStreamSession(id domain.StreamID, capacity int, admission *AdmissionController, metrics ports.RelayMetrics) *StreamSession {
	return &StreamSession{
		id:        id,
		createdAt: time.Now(),
		channel:   broadcast.NewChannel(capacity),
		admission: admission,
		metrics:   metrics,
	}
}

func (s *StreamSession) ID() domain.StreamID {
	return s.id
}

// Publish hands frame to every subscribed viewer without waiting on any of
// them. It returns false if the frame was dropped because nobody is watching.
func (s *StreamSession) Publish(frame []byte) bool {
	delivered := s.channel.Send(frame)
	s.metrics.RecordFrame(len(frame), delivered)
	return delivered
}

// Subscribe attaches a receiver at the current head of the stream.
func (s *StreamSession) Subscribe() *broadcast.Receiver {
	return s.channel.Subscribe()
}

// AdmitViewer reserves a viewer slot. The returned release func gives the
// slot back and is safe to call more than once; only the first call counts.
func (s *StreamSession) AdmitViewer() (func(), error) {
	if err := s.admission.ReserveViewer(&s.viewers); err != nil {
		return nil, err
	}
	s.metrics.RecordViewerJoined(s.id)

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.admission.ReleaseViewer(&s.viewers)
			s.metrics.RecordViewerLeft(s.id)
		})
	}
	return release, nil
}

func (s *StreamSession) Viewers() int64 {
	return s.viewers.Load()
}

func (s *StreamSession) Info() domain.StreamInfo {
	return domain.StreamInfo{
		ID:        s.id,
		Viewers:   s.viewers.Load(),
		CreatedAt: s.createdAt,
	}
}

func (s *StreamSession) close() {
	s.channel.Close()
}
