package repositories

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeRateReader defines read operations for stored exchange rates
type ExchangeRateReader interface {
	// FindExchangeRate returns the most recent rate for the pair, deriving it from the reverse pair when needed.
	FindExchangeRate(ctx context.Context, fromCurrencyCode, toCurrencyCode string) (decimal.Decimal, error)

	// ListExchangeRates returns the most recent rate from base to every quoted currency.
	ListExchangeRates(ctx context.Context, baseCurrencyCode string) (map[string]decimal.Decimal, error)
}
