package relay

import (
	"context"

	"framerelay/internal/core/domain"
	"framerelay/pkg/tracing"

	"go.uber.org/zap"
)

// ServePublisher runs one publisher connection to completion:
// AwaitingHandshake -> Active -> Closed. It owns t and closes it on return.
// Once a session was created it is unregistered exactly once, whatever ends
// the connection.
func (r *Relay) ServePublisher(ctx context.Context, t Transport, connID domain.ConnID) {
	log := r.logger.With("conn_id", connID, "role", "publisher")
	stop := watchContext(ctx, t)
	defer stop()
	defer t.Close()

	state := StateAwaitingHandshake
	hello, err := r.awaitHandshake(t, TypeRegister, log)
	if err != nil {
		r.logDisconnect(err, log, "publisher left before registering")
		return
	}

	spanCtx, span := tracing.TraceHandshake(ctx, TypeRegister, string(connID), string(hello.StreamID))
	session, err := r.registry.Register(hello.StreamID)
	if err != nil {
		tracing.RecordError(spanCtx, err)
		span.End()
		r.reject(t, err, log)
		return
	}
	streamID := session.ID()
	tracing.AddSpanAttributes(spanCtx, tracing.StreamIDKey.String(string(streamID)))
	span.End()

	log = log.With("stream_id", streamID)
	announced := r.announce(streamID, log)
	defer func() {
		r.registry.Unregister(streamID)
		<-announced
		r.withdraw(streamID, log)
		log.Infow("publisher state changed", "from", state, "to", StateClosed)
	}()

	if err := t.SendJSON(ControlMessage{Type: TypeRegistered, StreamID: streamID}); err != nil {
		r.logDisconnect(err, log, "failed to acknowledge registration")
		return
	}
	state = StateActive
	log.Infow("publisher state changed", "from", StateAwaitingHandshake, "to", state)

	for {
		msg, err := t.Receive()
		if err != nil {
			r.logDisconnect(err, log, "publisher disconnected")
			return
		}
		// Frames are forwarded as-is. Text messages are ignored once active.
		if msg.Type == BinaryMessage {
			session.Publish(msg.Data)
		}
	}
}

// announce registers streamID with the directory in the background and
// returns a channel closed when that attempt is over.
func (r *Relay) announce(streamID domain.StreamID, log *zap.SugaredLogger) <-chan struct{} {
	done := make(chan struct{})
	if r.directory == nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
		defer cancel()
		if err := r.directory.Announce(ctx, streamID); err != nil {
			log.Warnw("failed to announce stream", "error", err)
		}
	}()
	return done
}

func (r *Relay) withdraw(streamID domain.StreamID, log *zap.SugaredLogger) {
	if r.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	if err := r.directory.Withdraw(ctx, streamID); err != nil {
		log.Warnw("failed to withdraw stream", "error", err)
	}
}
