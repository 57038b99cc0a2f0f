package services

import (
	"sync"
	"sync/atomic"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"
)

// MetricsSnapshot is a point-in-time copy of the in-process relay counters.
type MetricsSnapshot struct {
	ActiveStreams   int64                         `json:"active_streams"`
	ActiveViewers   int64                         `json:"active_viewers"`
	StreamsTotal    int64                         `json:"streams_total"`
	FramesRelayed   int64                         `json:"frames_relayed"`
	FramesDropped   int64                         `json:"frames_dropped"`
	BytesRelayed    int64                         `json:"bytes_relayed"`
	LaggedFrames    int64                         `json:"lagged_frames"`
	Rejections      map[domain.RejectReason]int64 `json:"rejections"`
	ViewersByStream map[domain.StreamID]int64     `json:"-"`
}

// MetricsService keeps relay counters in memory. It backs the health
// endpoint and is cheap enough to sit on the frame path.
type MetricsService struct {
	activeStreams atomic.Int64
	activeViewers atomic.Int64
	streamsTotal  atomic.Int64
	framesRelayed atomic.Int64
	framesDropped atomic.Int64
	bytesRelayed  atomic.Int64
	laggedFrames  atomic.Int64

	mu              sync.Mutex
	rejections      map[domain.RejectReason]int64
	viewersByStream map[domain.StreamID]int64
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		rejections:      make(map[domain.RejectReason]int64),
		viewersByStream: make(map[domain.StreamID]int64),
	}
}

func (m *MetricsService) RecordStreamRegistered(streamID domain.StreamID) {
	m.activeStreams.Add(1)
	m.streamsTotal.Add(1)
}

func (m *MetricsService) RecordStreamEnded(streamID domain.StreamID) {
	m.activeStreams.Add(-1)
}

func (m *MetricsService) RecordViewerJoined(streamID domain.StreamID) {
	m.activeViewers.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewersByStream[streamID]++
}

func (m *MetricsService) RecordViewerLeft(streamID domain.StreamID) {
	m.activeViewers.Add(-1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.viewersByStream[streamID] > 1 {
		m.viewersByStream[streamID]--
	} else {
		delete(m.viewersByStream, streamID)
	}
}

func (m *MetricsService) RecordFrame(bytes int, delivered bool) {
	if !delivered {
		m.framesDropped.Add(1)
		return
	}
	m.framesRelayed.Add(1)
	m.bytesRelayed.Add(int64(bytes))
}

func (m *MetricsService) RecordLagged(missed uint64) {
	m.laggedFrames.Add(int64(missed))
}

func (m *MetricsService) RecordRejected(reason domain.RejectReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[reason]++
}

func (m *MetricsService) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	rejections := make(map[domain.RejectReason]int64, len(m.rejections))
	for k, v := range m.rejections {
		rejections[k] = v
	}
	viewers := make(map[domain.StreamID]int64, len(m.viewersByStream))
	for k, v := range m.viewersByStream {
		viewers[k] = v
	}
	m.mu.Unlock()

	return MetricsSnapshot{
		ActiveStreams:   m.activeStreams.Load(),
		ActiveViewers:   m.activeViewers.Load(),
		StreamsTotal:    m.streamsTotal.Load(),
		FramesRelayed:   m.framesRelayed.Load(),
		FramesDropped:   m.framesDropped.Load(),
		BytesRelayed:    m.bytesRelayed.Load(),
		LaggedFrames:    m.laggedFrames.Load(),
		Rejections:      rejections,
		ViewersByStream: viewers,
	}
}

// MultiMetrics fans every event out to several sinks.
type MultiMetrics []ports.RelayMetrics

func (mm MultiMetrics) RecordStreamRegistered(streamID domain.StreamID) {
	for _, m := range mm {
		m.RecordStreamRegistered(streamID)
	}
}

func (mm MultiMetrics) RecordStreamEnded(streamID domain.StreamID) {
	for _, m := range mm {
		m.RecordStreamEnded(streamID)
	}
}

func (mm MultiMetrics) RecordViewerJoined(streamID domain.StreamID) {
	for _, m := range mm {
		m.RecordViewerJoined(streamID)
	}
}

func (mm MultiMetrics) RecordViewerLeft(streamID domain.StreamID) {
	for _, m := range mm {
		m.RecordViewerLeft(streamID)
	}
}

func (mm MultiMetrics) RecordFrame(bytes int, delivered bool) {
	for _, m := range mm {
		m.RecordFrame(bytes, delivered)
	}
}

func (mm MultiMetrics) RecordLagged(missed uint64) {
	for _, m := range mm {
		m.RecordLagged(missed)
	}
}

func (mm MultiMetrics) RecordRejected(reason domain.RejectReason) {
	for _, m := range mm {
		m.RecordRejected(reason)
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordStreamRegistered(domain.StreamID) {}
func (nopMetrics) RecordStreamEnded(domain.StreamID)      {}
func (nopMetrics) RecordViewerJoined(domain.StreamID)     {}
func (nopMetrics) RecordViewerLeft(domain.StreamID)       {}
func (nopMetrics) RecordFrame(int, bool)                  {}
func (nopMetrics) RecordLagged(uint64)                    {}
func (nopMetrics) RecordRejected(domain.RejectReason)     {}
