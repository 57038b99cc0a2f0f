package reliability

import (
	"context"
	"errors"
	"fmt"

	"framerelay/internal/core/domain"
	"framerelay/internal/core/ports"
	"framerelay/pkg/circuitbreaker"
	"framerelay/pkg/retry"

	"go.uber.org/zap"
)

// GuardedDirectory wraps a shared StreamDirectory with retries and a circuit
// breaker. While the breaker is open every call fails fast with
// circuitbreaker.ErrOpen, so an unreachable backend never stalls a publisher.
type GuardedDirectory struct {
	inner   ports.StreamDirectory
	policy  retry.Policy
	breaker *circuitbreaker.Breaker
	logger  *zap.SugaredLogger
}

var _ ports.StreamDirectory = (*GuardedDirectory)(nil)

func NewGuardedDirectory(inner ports.StreamDirectory, policy retry.Policy, settings circuitbreaker.Settings, logger *zap.SugaredLogger) *GuardedDirectory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	g := &GuardedDirectory{
		inner:   inner,
		policy:  policy,
		breaker: circuitbreaker.New(settings),
		logger:  logger,
	}
	g.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		if to == circuitbreaker.StateOpen {
			logger.Warnw("stream directory circuit opened", "from", from.String())
			return
		}
		logger.Infow("stream directory circuit state changed", "from", from.String(), "to", to.String())
	})
	return g
}

func (g *GuardedDirectory) Announce(ctx context.Context, streamID domain.StreamID) error {
	return g.call(ctx, func(ctx context.Context) error {
		return g.inner.Announce(ctx, streamID)
	})
}

func (g *GuardedDirectory) Withdraw(ctx context.Context, streamID domain.StreamID) error {
	return g.call(ctx, func(ctx context.Context) error {
		return g.inner.Withdraw(ctx, streamID)
	})
}

// ListActive goes through the breaker but is not retried. Callers are HTTP
// requests that can simply ask again.
func (g *GuardedDirectory) ListActive(ctx context.Context) ([]domain.StreamID, error) {
	var ids []domain.StreamID
	err := g.breaker.Do(func() error {
		var err error
		ids, err = g.inner.ListActive(ctx)
		return err
	})
	return ids, err
}

// HealthCheck bypasses the breaker so readiness reflects the backend itself.
func (g *GuardedDirectory) HealthCheck(ctx context.Context) error {
	if err := g.inner.HealthCheck(ctx); err != nil {
		return err
	}
	if g.breaker.State() == circuitbreaker.StateOpen {
		return fmt.Errorf("stream directory: %w", circuitbreaker.ErrOpen)
	}
	return nil
}

// State returns the breaker state.
func (g *GuardedDirectory) State() circuitbreaker.State {
	return g.breaker.State()
}

func (g *GuardedDirectory) call(ctx context.Context, op func(context.Context) error) error {
	return retry.Do(ctx, g.policy, func(ctx context.Context) error {
		err := g.breaker.Do(func() error { return op(ctx) })
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return retry.Permanent(err)
		}
		return err
	})
}
