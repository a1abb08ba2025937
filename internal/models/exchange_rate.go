package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate stores the mid-market rate between two currencies effective from a date.
type ExchangeRate struct {
	ExchangeRateID   string          `db:"exchange_rate_id"`
	FromCurrencyCode string          `db:"from_currency_code"`
	ToCurrencyCode   string          `db:"to_currency_code"`
	Rate             decimal.Decimal `db:"rate"`
	DateEffective    time.Time       `db:"date_effective"`
	CreatedAt        time.Time       `db:"created_at"`
}
