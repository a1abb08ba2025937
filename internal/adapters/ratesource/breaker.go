package ratesource

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// BreakerRateProvider stops calling a failing rate source for a cool-down period. Only
// downstream failures count; validation errors such as an unknown currency do not.
type BreakerRateProvider struct {
	source  portssvc.RateSource
	breaker *gobreaker.CircuitBreaker
}

var _ portssvc.RateSource = (*BreakerRateProvider)(nil)

// NewBreakerRateProvider opens after consecutiveFailures downstream failures and half-opens after openTimeout.
func NewBreakerRateProvider(source portssvc.RateSource, consecutiveFailures uint32, openTimeout time.Duration) *BreakerRateProvider {
	return &BreakerRateProvider{
		source: source,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "rate-source",
			MaxRequests: 1,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= consecutiveFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrNotFound)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				slog.Warn("Rate source circuit breaker changed state",
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		}),
	}
}

func (b *BreakerRateProvider) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.source.GetRate(ctx, fromCurrency, toCurrency)
	})
	if err != nil {
		return decimal.Zero, b.translate(err)
	}
	return res.(decimal.Decimal), nil
}

func (b *BreakerRateProvider) ListRates(ctx context.Context, baseCurrency string) (map[string]decimal.Decimal, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.source.ListRates(ctx, baseCurrency)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return res.(map[string]decimal.Decimal), nil
}

func (b *BreakerRateProvider) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewExternalServiceError("rate provider", err)
	}
	if errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrExternalService) {
		return err
	}
	return apperrors.NewExternalServiceError("rate provider", err)
}
