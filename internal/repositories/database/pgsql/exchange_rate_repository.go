package pgsql

import (
	"context"
	"errors"
	"strings"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	"github.com/SscSPs/money_transfer_engine/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// inverseDivisionPrecision keeps enough digits for a derived rate to survive 4dp rounding downstream.
const inverseDivisionPrecision int32 = 12

// PgxExchangeRateRepository implements portsrepo.ExchangeRateReader using pgx.
type PgxExchangeRateRepository struct {
	BaseRepository
}

// newPgxExchangeRateRepository creates a new PgxExchangeRateRepository.
func newPgxExchangeRateRepository(pool PgxPool) portsrepo.ExchangeRateReader {
	return &PgxExchangeRateRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.ExchangeRateReader = (*PgxExchangeRateRepository)(nil)

// FindExchangeRate retrieves the most recent exchange rate between two currencies.
func (r *PgxExchangeRateRepository) FindExchangeRate(ctx context.Context, fromCurrencyCode, toCurrencyCode string) (decimal.Decimal, error) {
	fromCurrency := strings.ToUpper(fromCurrencyCode)
	toCurrency := strings.ToUpper(toCurrencyCode)

	if fromCurrency == toCurrency {
		return decimal.NewFromInt(1), nil
	}

	// First try to find the direct rate
	directRate, err := r.findRate(ctx, fromCurrency, toCurrency)
	if err == nil {
		return directRate.Rate, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return decimal.Zero, err
	}

	// If direct rate not found, try to find the inverse rate
	inverseRate, inverseErr := r.findRate(ctx, toCurrency, fromCurrency)
	if inverseErr == nil && !inverseRate.Rate.IsZero() {
		return decimal.NewFromInt(1).DivRound(inverseRate.Rate, inverseDivisionPrecision), nil
	}
	if inverseErr != nil && !errors.Is(inverseErr, apperrors.ErrNotFound) {
		return decimal.Zero, inverseErr
	}

	return decimal.Zero, apperrors.NewNotFoundError("no exchange rate found for currency pair " + fromCurrency + " to " + toCurrency)
}

// findRate is a helper method to find the most recent exchange rate
func (r *PgxExchangeRateRepository) findRate(ctx context.Context, fromCurrency, toCurrency string) (*models.ExchangeRate, error) {
	query := `
		SELECT
			exchange_rate_id, from_currency_code, to_currency_code, rate, date_effective, created_at
		FROM exchange_rates
		WHERE from_currency_code = $1 AND to_currency_code = $2
		ORDER BY date_effective DESC
		LIMIT 1;
	`

	var modelRate models.ExchangeRate
	err := r.Pool.QueryRow(ctx, query, fromCurrency, toCurrency).Scan(
		&modelRate.ExchangeRateID, &modelRate.FromCurrencyCode, &modelRate.ToCurrencyCode,
		&modelRate.Rate, &modelRate.DateEffective, &modelRate.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("exchange rate not found")
		}
		return nil, apperrors.NewAppError(500, "failed to find exchange rate", err)
	}
	return &modelRate, nil
}

// ListExchangeRates returns the most recent rate from base to every quoted currency.
func (r *PgxExchangeRateRepository) ListExchangeRates(ctx context.Context, baseCurrencyCode string) (map[string]decimal.Decimal, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT DISTINCT ON (to_currency_code) to_currency_code, rate
		FROM exchange_rates
		WHERE from_currency_code = $1
		ORDER BY to_currency_code, date_effective DESC;`, strings.ToUpper(baseCurrencyCode))
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list exchange rates", err)
	}
	defer rows.Close()

	rates := make(map[string]decimal.Decimal)
	for rows.Next() {
		var code string
		var rate decimal.Decimal
		if err := rows.Scan(&code, &rate); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan exchange rate", err)
		}
		rates[code] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating exchange rates", err)
	}
	return rates, nil
}
