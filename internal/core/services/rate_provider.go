package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/shopspring/decimal"
)

// usdReferenceRates are units of each currency per 1 USD.
var usdReferenceRates = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("0.85"),
	"GBP": decimal.RequireFromString("0.73"),
	"JPY": decimal.RequireFromString("110.00"),
	"CAD": decimal.RequireFromString("1.25"),
	"AUD": decimal.RequireFromString("1.35"),
	"CHF": decimal.RequireFromString("0.92"),
	"CNY": decimal.RequireFromString("6.45"),
	"INR": decimal.RequireFromString("74.50"),
	"MXN": decimal.RequireFromString("20.00"),
	"BRL": decimal.RequireFromString("5.20"),
	"ZAR": decimal.RequireFromString("14.50"),
	"NGN": decimal.RequireFromString("411.00"),
	"KES": decimal.RequireFromString("108.00"),
	"GHS": decimal.RequireFromString("6.00"),
}

// StaticRateProvider serves cross rates derived from a USD reference table.
type StaticRateProvider struct {
	usdRates map[string]decimal.Decimal
}

// NewStaticRateProvider returns a provider over the built-in reference table.
// Overrides replace or extend entries (units per USD).
func NewStaticRateProvider(overrides map[string]decimal.Decimal) *StaticRateProvider {
	rates := make(map[string]decimal.Decimal, len(usdReferenceRates)+len(overrides))
	for k, v := range usdReferenceRates {
		rates[k] = v
	}
	for k, v := range overrides {
		rates[strings.ToUpper(k)] = v
	}
	return &StaticRateProvider{usdRates: rates}
}

var _ portssvc.RateSource = (*StaticRateProvider)(nil)

func (p *StaticRateProvider) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	from, to := strings.ToUpper(fromCurrency), strings.ToUpper(toCurrency)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	fromUSD, ok := p.usdRates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unsupported currency %s", apperrors.ErrValidation, from)
	}
	toUSD, ok := p.usdRates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unsupported currency %s", apperrors.ErrValidation, to)
	}
	return toUSD.DivRound(fromUSD, domain.RatePrecision+4).Round(domain.RatePrecision), nil
}

func (p *StaticRateProvider) ListRates(ctx context.Context, baseCurrency string) (map[string]decimal.Decimal, error) {
	base := strings.ToUpper(baseCurrency)
	if _, ok := p.usdRates[base]; !ok {
		return nil, fmt.Errorf("%w: unsupported currency %s", apperrors.ErrValidation, base)
	}
	out := make(map[string]decimal.Decimal, len(p.usdRates)-1)
	for code := range p.usdRates {
		if code == base {
			continue
		}
		rate, err := p.GetRate(ctx, base, code)
		if err != nil {
			return nil, err
		}
		out[code] = rate
	}
	return out, nil
}

// RepositoryRateProvider serves rates stored in the exchange_rates table.
type RepositoryRateProvider struct {
	repo portsrepo.ExchangeRateReader
}

// NewRepositoryRateProvider wraps an exchange rate repository.
func NewRepositoryRateProvider(repo portsrepo.ExchangeRateReader) *RepositoryRateProvider {
	return &RepositoryRateProvider{repo: repo}
}

var _ portssvc.RateSource = (*RepositoryRateProvider)(nil)

func (p *RepositoryRateProvider) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	from, to := strings.ToUpper(fromCurrency), strings.ToUpper(toCurrency)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, err := p.repo.FindExchangeRate(ctx, from, to)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: no rate available for %s/%s", apperrors.ErrValidation, from, to)
		}
		return decimal.Zero, apperrors.NewExternalServiceError("rate store", err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, apperrors.NewExternalServiceError("rate store", fmt.Errorf("non-positive rate for %s/%s", from, to))
	}
	return rate.Round(domain.RatePrecision), nil
}

func (p *RepositoryRateProvider) ListRates(ctx context.Context, baseCurrency string) (map[string]decimal.Decimal, error) {
	rates, err := p.repo.ListExchangeRates(ctx, strings.ToUpper(baseCurrency))
	if err != nil {
		return nil, apperrors.NewExternalServiceError("rate store", err)
	}
	out := make(map[string]decimal.Decimal, len(rates))
	for code, r := range rates {
		out[code] = r.Round(domain.RatePrecision)
	}
	return out, nil
}
