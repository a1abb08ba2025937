package services

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateProvider supplies a mid-market rate for a currency pair, rounded to 4 decimal places.
// Identical currencies return exactly 1. Downstream outages surface as apperrors.ErrExternalService.
type RateProvider interface {
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error)
}

// RateLister lists rates from a base currency to every currency it knows.
type RateLister interface {
	ListRates(ctx context.Context, baseCurrency string) (map[string]decimal.Decimal, error)
}

// RateSource is a provider that can also enumerate its rates.
type RateSource interface {
	RateProvider
	RateLister
}
