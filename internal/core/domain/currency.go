package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RatePrecision is the number of decimal places a locked exchange rate carries.
const RatePrecision int32 = 4

// InverseRatePrecision keeps rate*inverse within tolerance for rates well above 1 (USD->JPY).
const InverseRatePrecision int32 = 8

// DefaultRateMargin is the spread published alongside every quoted rate.
var DefaultRateMargin = decimal.RequireFromString("0.02")

// rateConsistencyTolerance bounds |rate * inverse - 1|.
var rateConsistencyTolerance = decimal.RequireFromString("0.001")

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
	"CLP": true,
	"ISK": true,
	"UGX": true,
}

// CurrencyPrecision returns the number of minor-unit digits for an ISO 4217 code.
func CurrencyPrecision(currencyCode string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currencyCode)] {
		return 0
	}
	return 2
}

// RoundToCurrency rounds half-up (away from zero) to the currency's precision.
func RoundToCurrency(amount decimal.Decimal, currencyCode string) decimal.Decimal {
	return amount.Round(CurrencyPrecision(currencyCode))
}

// ExchangeRate is a rate locked for a single quote batch. Values are immutable once built.
type ExchangeRate struct {
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	Rate         decimal.Decimal `json:"rate"`
	InverseRate  decimal.Decimal `json:"inverseRate"`
	Margin       decimal.Decimal `json:"margin"`
	ValidUntil   time.Time       `json:"validUntil"`
}

// NewExchangeRate builds a locked rate. The inverse is derived from the rounded rate.
func NewExchangeRate(from, to string, rate decimal.Decimal, validUntil time.Time) ExchangeRate {
	rounded := rate.Round(RatePrecision)
	inverse := decimal.Zero
	if rounded.IsPositive() {
		inverse = decimal.NewFromInt(1).DivRound(rounded, InverseRatePrecision)
	}
	return ExchangeRate{
		FromCurrency: strings.ToUpper(from),
		ToCurrency:   strings.ToUpper(to),
		Rate:         rounded,
		InverseRate:  inverse,
		Margin:       DefaultRateMargin,
		ValidUntil:   validUntil,
	}
}

// IsConsistent reports whether rate and inverse agree within tolerance.
func (r ExchangeRate) IsConsistent() bool {
	product := r.Rate.Mul(r.InverseRate)
	return product.Sub(decimal.NewFromInt(1)).Abs().LessThanOrEqual(rateConsistencyTolerance)
}
