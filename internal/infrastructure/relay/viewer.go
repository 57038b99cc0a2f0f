package relay

import (
	"context"
	"errors"

	"framerelay/internal/core/domain"
	"framerelay/pkg/broadcast"
	"framerelay/pkg/tracing"

	"go.uber.org/zap"
)

// ServeViewer runs one viewer connection to completion:
// AwaitingHandshake -> Active -> Closed. It owns t and closes it on return.
// An admitted viewer gives its slot back exactly once.
func (r *Relay) ServeViewer(ctx context.Context, t Transport, connID domain.ConnID) {
	log := r.logger.With("conn_id", connID, "role", "viewer")
	stop := watchContext(ctx, t)
	defer stop()
	defer t.Close()

	hello, err := r.awaitHandshake(t, TypeSubscribe, log)
	if err != nil {
		r.logDisconnect(err, log, "viewer left before subscribing")
		return
	}
	streamID := hello.StreamID
	log = log.With("stream_id", streamID)

	spanCtx, span := tracing.TraceHandshake(ctx, TypeSubscribe, string(connID), string(streamID))
	session, err := r.registry.Lookup(streamID)
	if err == nil {
		var release func()
		release, err = session.AdmitViewer()
		if err == nil {
			defer release()
		}
	}
	if err != nil {
		tracing.RecordError(spanCtx, err)
		span.End()
		r.reject(t, err, log)
		return
	}
	span.End()

	rx := session.Subscribe()
	defer rx.Close()

	if err := t.SendJSON(ControlMessage{Type: TypeSubscribed, StreamID: streamID}); err != nil {
		r.logDisconnect(err, log, "failed to acknowledge subscription")
		return
	}
	log.Infow("viewer state changed", "from", StateAwaitingHandshake, "to", StateActive)

	// The client side only matters for noticing that it went away.
	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	clientGone := make(chan error, 1)
	go func() {
		defer cancel()
		for {
			if _, err := t.Receive(); err != nil {
				clientGone <- err
				return
			}
		}
	}()

	err = r.forward(relayCtx, t, rx, log)
	if err == nil {
		log.Infow("stream ended, closing viewer")
		return
	}
	select {
	case readErr := <-clientGone:
		r.logDisconnect(readErr, log, "viewer disconnected")
	default:
		r.logDisconnect(err, log, "viewer disconnected")
	}
}

// forward copies frames from rx to t until the stream ends (nil error) or
// the viewer goes away.
func (r *Relay) forward(ctx context.Context, t Transport, rx *broadcast.Receiver, log *zap.SugaredLogger) error {
	for {
		frame, err := rx.Receive(ctx)
		switch {
		case err == nil:
			if err := t.SendBinary(frame); err != nil {
				return err
			}
		case errors.Is(err, broadcast.ErrClosed):
			if err := t.SendJSON(ControlMessage{Type: TypeStreamEnded}); err != nil {
				return err
			}
			return nil
		default:
			missed, lagged := broadcast.IsLagged(err)
			if !lagged {
				return err
			}
			log.Warnw("viewer lagged behind", "missed", missed)
			if r.metrics != nil {
				r.metrics.RecordLagged(missed)
			}
		}
	}
}
