package services

import (
	"fmt"
	"sort"
	"sync"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"
	"framerelay/pkg/broadcast"
	"framerelay/pkg/utils"

	"go.uber.org/zap"
)

// generateAttempts bounds retries when a generated id collides with a live one.
const generateAttempts = 8

type RegistryConfig struct {
	Limits          domain.Limits
	ChannelCapacity int
	StreamIDLength  int
}

// SessionRegistry owns every live StreamSession. Writes (one per stream
// lifetime) take the exclusive lock, lookups (one per viewer attach) share
// it. The lock is never held across network I/O.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[domain.StreamID]*StreamSession

	admission *AdmissionController
	capacity  int
	newID     func() (domain.StreamID, error)

	metrics ports.RelayMetrics
	logger  *zap.SugaredLogger
}

func NewSessionRegistry(cfg RegistryConfig, metrics ports.RelayMetrics, logger *zap.SugaredLogger) *SessionRegistry {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = broadcast.DefaultCapacity
	}
	if cfg.StreamIDLength <= 0 {
		cfg.StreamIDLength = utils.DefaultStreamIDLength
	}

	idLength := cfg.StreamIDLength
	return &SessionRegistry{
		sessions:  make(map[domain.StreamID]*StreamSession),
		admission: NewAdmissionController(cfg.Limits),
		capacity:  cfg.ChannelCapacity,
		newID: func() (domain.StreamID, error) {
			id, err := utils.GenerateStreamID(idLength)
			return domain.StreamID(id), err
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Register admits and inserts a new session keyed by requested, or by a
// freshly generated id when requested is empty. The limit check and the
// insert happen under one exclusive lock.
func (r *SessionRegistry) Register(requested domain.StreamID) (session ports.StreamSession, err error) {
	defer r.recoverUnavailable("register", &err)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.admission.AdmitStream(len(r.sessions)); err != nil {
		return nil, err
	}

	id := requested
	if id == "" {
		id, err = r.generateUniqueID()
		if err != nil {
			return nil, err
		}
	} else if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrStreamIDTaken, id)
	}

	s := newStreamSession(id, r.capacity, r.admission, r.metrics)
	r.sessions[id] = s
	r.metrics.RecordStreamRegistered(id)

	r.logger.Infow("stream registered",
		"stream_id", id,
		"active_streams", len(r.sessions),
	)
	return s, nil
}

// Lookup returns the live session for id.
func (r *SessionRegistry) Lookup(id domain.StreamID) (session ports.StreamSession, err error) {
	defer r.recoverUnavailable("lookup", &err)

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrStreamNotFound, id)
	}
	return s, nil
}

// Unregister removes id and closes its broadcast channel, so attached
// viewers drain and then observe the end of the stream. Unknown ids are
// ignored.
func (r *SessionRegistry) Unregister(id domain.StreamID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	if !exists {
		return
	}
	delete(r.sessions, id)
	s.close()
	r.metrics.RecordStreamEnded(id)

	r.logger.Infow("stream unregistered",
		"stream_id", id,
		"viewers", s.Viewers(),
		"active_streams", len(r.sessions),
	)
}

// List returns a snapshot of live streams ordered by id.
func (r *SessionRegistry) List() []domain.StreamInfo {
	r.mu.RLock()
	infos := make([]domain.StreamInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, s.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) Limits() domain.Limits {
	return r.admission.Limits()
}

// generateUniqueID must be called with the write lock held.
func (r *SessionRegistry) generateUniqueID() (domain.StreamID, error) {
	for attempt := 0; attempt < generateAttempts; attempt++ {
		id, err := r.newID()
		if err != nil {
			return "", fmt.Errorf("%w: generate stream id: %v", domain.ErrRegistryUnavailable, err)
		}
		if _, exists := r.sessions[id]; !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no free stream id after %d attempts", domain.ErrRegistryUnavailable, generateAttempts)
}

// recoverUnavailable turns a panic inside a registry operation into
// ErrRegistryUnavailable for that caller only. Deferred unlocks have already
// run by the time it executes.
func (r *SessionRegistry) recoverUnavailable(op string, err *error) {
	if rec := recover(); rec != nil {
		r.logger.Errorw("registry operation panicked",
			"op", op,
			"panic", rec,
		)
		*err = domain.ErrRegistryUnavailable
	}
}
