package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"
	"framerelay/pkg/utils"

	"go.uber.org/zap"
)

// directoryTimeout bounds each call to the stream directory.
const directoryTimeout = 2 * time.Second

// State is a connection's position in its lifecycle. Publishers and viewers
// share the same three states.
type State int

const (
	StateAwaitingHandshake State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Relay drives publisher and viewer connections against the session
// registry. One Relay is shared by every connection.
type Relay struct {
	registry  ports.SessionRegistry
	directory ports.StreamDirectory
	metrics   ports.RelayMetrics
	logger    *zap.SugaredLogger
}

// NewRelay wires a relay. directory and metrics may be nil.
func NewRelay(registry ports.SessionRegistry, directory ports.StreamDirectory, metrics ports.RelayMetrics, logger *zap.SugaredLogger) *Relay {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Relay{
		registry:  registry,
		directory: directory,
		metrics:   metrics,
		logger:    logger,
	}
}

// awaitHandshake reads until a text message of type want arrives. Anything
// else, including malformed JSON, is ignored and the connection keeps
// waiting; there is no handshake timeout.
func (r *Relay) awaitHandshake(t Transport, want string, log *zap.SugaredLogger) (ControlMessage, error) {
	for {
		msg, err := t.Receive()
		if err != nil {
			return ControlMessage{}, err
		}
		if msg.Type != TextMessage {
			continue
		}

		var ctrl ControlMessage
		if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
			log.Debugw("ignoring malformed handshake message",
				"error", err,
				"payload", utils.TruncateString(string(msg.Data), 128),
			)
			continue
		}
		if ctrl.Type != want {
			log.Debugw("ignoring out-of-order message", "type", ctrl.Type, "want", want)
			continue
		}
		if want == TypeSubscribe && ctrl.StreamID == "" {
			log.Debugw("ignoring subscribe without stream_id")
			continue
		}
		return ctrl, nil
	}
}

// reject reports err to the client and records it. The caller then closes
// the connection.
func (r *Relay) reject(t Transport, err error, log *zap.SugaredLogger) {
	reason := domain.ReasonFor(err)
	if r.metrics != nil {
		r.metrics.RecordRejected(reason)
	}
	log.Infow("handshake rejected", "reason", reason, "error", err)

	if sendErr := t.SendJSON(errorMessage(err)); sendErr != nil {
		log.Debugw("failed to send error indication", "error", sendErr)
	}
}

func (r *Relay) logDisconnect(err error, log *zap.SugaredLogger, msg string) {
	if err == nil || errors.Is(err, ErrTransportClosed) || errors.Is(err, context.Canceled) {
		log.Infow(msg)
		return
	}
	log.Infow(msg, "error", err)
}

// watchContext closes t when ctx is done so that every blocked call on the
// transport returns.
func watchContext(ctx context.Context, t Transport) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = t.Close()
	})
}
