package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"framerelay/internal/core/domain"
	"framerelay/pkg/broadcast"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(maxStreams, maxViewers int) (*SessionRegistry, *MetricsService) {
	metrics := NewMetricsService()
	registry := NewSessionRegistry(RegistryConfig{
		Limits: domain.Limits{
			MaxStreams:          maxStreams,
			MaxViewersPerStream: maxViewers,
		},
		ChannelCapacity: broadcast.DefaultCapacity,
	}, metrics, nil)
	return registry, metrics
}

func TestSessionRegistry_MaxStreams(t *testing.T) {
	const maxStreams = 3
	registry, metrics := newTestRegistry(maxStreams, 10)

	ids := make([]domain.StreamID, 0, maxStreams)
	for i := 0; i < maxStreams; i++ {
		session, err := registry.Register("")
		require.NoError(t, err)
		ids = append(ids, session.ID())
	}

	_, err := registry.Register("")
	assert.ErrorIs(t, err, domain.ErrMaxStreamsReached)
	_, err = registry.Register("explicit")
	assert.ErrorIs(t, err, domain.ErrMaxStreamsReached)

	assert.Equal(t, maxStreams, registry.Len())
	for _, id := range ids {
		_, err := registry.Lookup(id)
		assert.NoError(t, err, "stream %s should remain reachable", id)
	}
	assert.Equal(t, int64(maxStreams), metrics.Snapshot().ActiveStreams)
}

func TestSessionRegistry_ConcurrentRegisterNeverExceedsLimit(t *testing.T) {
	const (
		maxStreams = 10
		attempts   = 100
	)
	registry, _ := newTestRegistry(maxStreams, 10)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int64
		rejected atomic.Int64
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := registry.Register(domain.StreamID(fmt.Sprintf("stream-%d", i)))
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, domain.ErrMaxStreamsReached):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(maxStreams), admitted.Load())
	assert.Equal(t, int64(attempts-maxStreams), rejected.Load())
	assert.Equal(t, maxStreams, registry.Len())
}

func TestSessionRegistry_RequestedIDAndDuplicates(t *testing.T) {
	registry, _ := newTestRegistry(5, 10)

	session, err := registry.Register("cam-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StreamID("cam-1"), session.ID())

	_, err = registry.Register("cam-1")
	assert.ErrorIs(t, err, domain.ErrStreamIDTaken)
	assert.Equal(t, 1, registry.Len())
}

func TestSessionRegistry_GeneratedIDRetriesOnCollision(t *testing.T) {
	registry, _ := newTestRegistry(5, 10)

	_, err := registry.Register("AAAAAAAA")
	require.NoError(t, err)

	sequence := []domain.StreamID{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB"}
	registry.newID = func() (domain.StreamID, error) {
		id := sequence[0]
		sequence = sequence[1:]
		return id, nil
	}

	session, err := registry.Register("")
	require.NoError(t, err)
	assert.Equal(t, domain.StreamID("BBBBBBBB"), session.ID())
}

func TestSessionRegistry_GeneratedIDExhausted(t *testing.T) {
	registry, _ := newTestRegistry(5, 10)
	_, err := registry.Register("same")
	require.NoError(t, err)

	registry.newID = func() (domain.StreamID, error) { return "same", nil }

	_, err = registry.Register("")
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)
	assert.Equal(t, 1, registry.Len())
}

func TestSessionRegistry_PanicDegradesToUnavailable(t *testing.T) {
	registry, _ := newTestRegistry(5, 10)
	registry.newID = func() (domain.StreamID, error) { panic("boom") }

	_, err := registry.Register("")
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)

	// The lock was released: the registry keeps serving.
	session, err := registry.Register("after-panic")
	require.NoError(t, err)
	_, err = registry.Lookup(session.ID())
	assert.NoError(t, err)
}

func TestSessionRegistry_LookupNotFound(t *testing.T) {
	registry, metrics := newTestRegistry(5, 10)

	_, err := registry.Lookup("missing")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveViewers)
}

func TestSessionRegistry_UnregisterClosesChannelAndIsIdempotent(t *testing.T) {
	registry, metrics := newTestRegistry(5, 10)

	session, err := registry.Register("live")
	require.NoError(t, err)

	rx := session.Subscribe()
	defer rx.Close()

	registry.Unregister("live")
	registry.Unregister("live")
	registry.Unregister("never-existed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = rx.Receive(ctx)
	assert.ErrorIs(t, err, broadcast.ErrClosed)

	_, err = registry.Lookup("live")
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveStreams)

	// The id is free again right away.
	_, err = registry.Register("live")
	assert.NoError(t, err)
}

func TestSessionRegistry_List(t *testing.T) {
	registry, _ := newTestRegistry(5, 10)
	_, err := registry.Register("b")
	require.NoError(t, err)
	a, err := registry.Register("a")
	require.NoError(t, err)

	release, err := a.AdmitViewer()
	require.NoError(t, err)
	defer release()

	infos := registry.List()
	require.Len(t, infos, 2)
	assert.Equal(t, domain.StreamID("a"), infos[0].ID)
	assert.Equal(t, int64(1), infos[0].Viewers)
	assert.Equal(t, domain.StreamID("b"), infos[1].ID)
	assert.Equal(t, int64(0), infos[1].Viewers)
}

func TestStreamSession_ViewerAdmissionUnderContention(t *testing.T) {
	const (
		maxViewers = 10
		attempts   = 200
	)
	registry, metrics := newTestRegistry(1, maxViewers)
	session, err := registry.Register("hot")
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		releases []func()
		rejected atomic.Int64
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			release, err := session.AdmitViewer()
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrMaxViewersReached)
				rejected.Add(1)
				return
			}
			assert.LessOrEqual(t, session.Viewers(), int64(maxViewers))
			mu.Lock()
			releases = append(releases, release)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Len(t, releases, maxViewers)
	assert.Equal(t, int64(attempts-maxViewers), rejected.Load())
	assert.Equal(t, int64(maxViewers), session.Viewers())
	assert.Equal(t, int64(maxViewers), metrics.Snapshot().ActiveViewers)

	// One departure frees exactly one slot, and releasing twice is harmless.
	releases[0]()
	releases[0]()
	assert.Equal(t, int64(maxViewers-1), session.Viewers())

	again, err := session.AdmitViewer()
	require.NoError(t, err)
	_, err = session.AdmitViewer()
	assert.ErrorIs(t, err, domain.ErrMaxViewersReached)

	again()
	for _, release := range releases[1:] {
		release()
	}
	assert.Equal(t, int64(0), session.Viewers())
	assert.Equal(t, int64(0), metrics.Snapshot().ActiveViewers)
}

func TestStreamSession_PublishCountsDroppedFrames(t *testing.T) {
	registry, metrics := newTestRegistry(1, 1)
	session, err := registry.Register("s")
	require.NoError(t, err)

	assert.False(t, session.Publish([]byte("nobody")))

	rx := session.Subscribe()
	defer rx.Close()
	assert.True(t, session.Publish([]byte("someone")))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.FramesDropped)
	assert.Equal(t, int64(1), snap.FramesRelayed)
	assert.Equal(t, int64(len("someone")), snap.BytesRelayed)
}
