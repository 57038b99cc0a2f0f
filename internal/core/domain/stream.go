package domain

import (
	"time"
)

// StreamID names an active stream. It is either chosen by the publisher or
// generated by the registry.
type StreamID string

// ConnID identifies a single transport connection in logs and metrics.
type ConnID string

// StreamInfo is a read-only snapshot of a registered stream.
type StreamInfo struct {
	ID        StreamID  `json:"stream_id"`
	Viewers   int64     `json:"viewers"`
	CreatedAt time.Time `json:"created_at"`
}

// Limits bounds what the admission controller lets in.
type Limits struct {
	MaxStreams          int
	MaxViewersPerStream int
}
