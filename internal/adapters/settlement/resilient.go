package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/middleware"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ResilienceConfig bounds retries and trips the breaker of a rail.
type ResilienceConfig struct {
	MaxRetries          uint64
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultResilienceConfig returns conservative defaults.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxRetries:          3,
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// ResilientBackend guards a rail with a circuit breaker and retries transient errors with
// exponential backoff. Errors that are not retryable are returned on the first attempt.
type ResilientBackend struct {
	inner   portssvc.SettlementBackend
	breaker *gobreaker.CircuitBreaker
	cfg     ResilienceConfig
}

var _ portssvc.SettlementBackend = (*ResilientBackend)(nil)

// NewResilientBackend wraps inner.
func NewResilientBackend(inner portssvc.SettlementBackend, cfg ResilienceConfig) *ResilientBackend {
	settings := gobreaker.Settings{
		Name:        "rail-" + inner.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Settlement rail circuit breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &ResilientBackend{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		cfg:     cfg,
	}
}

// WrapRails wraps every rail in a ResilientBackend.
func WrapRails(rails map[string]portssvc.SettlementBackend, cfg ResilienceConfig) map[string]portssvc.SettlementBackend {
	out := make(map[string]portssvc.SettlementBackend, len(rails))
	for name, r := range rails {
		out[name] = NewResilientBackend(r, cfg)
	}
	return out
}

func (b *ResilientBackend) Name() string {
	return b.inner.Name()
}

func (b *ResilientBackend) ExpectedTurnaround() time.Duration {
	return b.inner.ExpectedTurnaround()
}

// State reports the breaker state.
func (b *ResilientBackend) State() gobreaker.State {
	return b.breaker.State()
}

func (b *ResilientBackend) Authorize(ctx context.Context, t domain.MoneyTransfer) error {
	_, err := b.call(ctx, "authorize", func() (any, error) {
		return nil, b.inner.Authorize(ctx, t)
	})
	return err
}

func (b *ResilientBackend) Submit(ctx context.Context, t domain.MoneyTransfer) (*domain.SettlementReceipt, error) {
	res, err := b.call(ctx, "submit", func() (any, error) {
		return b.inner.Submit(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.SettlementReceipt), nil
}

func (b *ResilientBackend) call(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.cfg.InitialInterval
	policy.MaxInterval = b.cfg.MaxInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	var result any
	err := backoff.Retry(func() error {
		attempt++
		res, err := b.breaker.Execute(fn)
		if err == nil {
			result = res
			return nil
		}
		if isBreakerRejection(err) || apperrors.IsRetryable(err) {
			logger.Warn("Settlement rail call failed, retrying",
				slog.String("rail", b.inner.Name()),
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, b.cfg.MaxRetries), ctx))

	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if isBreakerRejection(err) {
		return nil, apperrors.NewExternalServiceError(b.inner.Name(), fmt.Errorf("circuit open: %w", err))
	}
	if apperrors.IsRetryable(err) {
		return nil, apperrors.NewExternalServiceError(b.inner.Name(), fmt.Errorf("%s failed after %d attempts: %w", op, attempt, err))
	}
	return nil, err
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
