package memory

import (
	"context"
	"sort"
	"sync"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"
)

// MemoryStreamDirectory is the single-process directory. It only knows the
// streams announced by this relay.
type MemoryStreamDirectory struct {
	streams map[domain.StreamID]struct{}
	mu      sync.RWMutex
}

func NewMemoryStreamDirectory() ports.StreamDirectory {
	return &MemoryStreamDirectory{
		streams: make(map[domain.StreamID]struct{}),
	}
}

func (d *MemoryStreamDirectory) Announce(ctx context.Context, streamID domain.StreamID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.streams[streamID] = struct{}{}
	return nil
}

func (d *MemoryStreamDirectory) Withdraw(ctx context.Context, streamID domain.StreamID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.streams, streamID)
	return nil
}

func (d *MemoryStreamDirectory) ListActive(ctx context.Context) ([]domain.StreamID, error) {
	d.mu.RLock()
	ids := make([]domain.StreamID, 0, len(d.streams))
	for id := range d.streams {
		ids = append(ids, id)
	}
	d.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (d *MemoryStreamDirectory) HealthCheck(ctx context.Context) error {
	return nil
}
