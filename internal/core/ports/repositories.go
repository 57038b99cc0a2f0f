package ports

import (
	"context"

	"framerelay/internal/core/domain"
)

// StreamDirectory advertises which streams are live so that other
// processes can discover them. It never carries frames.
type StreamDirectory interface {
	Announce(ctx context.Context, streamID domain.StreamID) error
	Withdraw(ctx context.Context, streamID domain.StreamID) error
	ListActive(ctx context.Context) ([]domain.StreamID, error)
	HealthCheck(ctx context.Context) error
}
