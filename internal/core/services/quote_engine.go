package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// speedPremiums reduce the destination amount of faster alternatives.
var speedPremiums = map[domain.TransferPriority]decimal.Decimal{
	domain.PriorityExpress: decimal.RequireFromString("0.005"),
	domain.PriorityUrgent:  decimal.RequireFromString("0.008"),
}

var alternativePriorities = []domain.TransferPriority{domain.PriorityExpress, domain.PriorityUrgent}

// QuoteEngine prices a request into a primary quote and two priority alternatives that
// share one locked rate and one expiry. It does not enforce single use.
type QuoteEngine struct {
	BaseService
	rates portssvc.RateProvider
	fees  *FeeCalculator
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// QuoteEngineOption configures a QuoteEngine
type QuoteEngineOption func(*QuoteEngine)

// WithQuoteTTL overrides the default ten minute validity.
func WithQuoteTTL(ttl time.Duration) QuoteEngineOption {
	return func(e *QuoteEngine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithQuoteClock injects the time source.
func WithQuoteClock(now func() time.Time) QuoteEngineOption {
	return func(e *QuoteEngine) {
		e.now = now
	}
}

// NewQuoteEngine creates a QuoteEngine.
func NewQuoteEngine(rates portssvc.RateProvider, fees *FeeCalculator, opts ...QuoteEngineOption) *QuoteEngine {
	e := &QuoteEngine{
		rates: rates,
		fees:  fees,
		ttl:   domain.QuoteTTL,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateQuote returns the primary quote and its [express, urgent] alternatives.
func (e *QuoteEngine) CreateQuote(ctx context.Context, req domain.QuoteRequest) (*domain.QuoteBatch, error) {
	req.FromCurrency = strings.ToUpper(req.FromCurrency)
	req.ToCurrency = strings.ToUpper(req.ToCurrency)
	if req.Priority == "" {
		req.Priority = domain.PriorityStandard
	}
	if err := validateQuoteRequest(req); err != nil {
		return nil, err
	}

	// The rate lookup is an external call and happens before anything is locked or stored.
	rate, err := e.rates.GetRate(ctx, req.FromCurrency, req.ToCurrency)
	if err != nil {
		e.LogError(ctx, err, "Failed to obtain exchange rate",
			slog.String("from_currency", req.FromCurrency),
			slog.String("to_currency", req.ToCurrency))
		return nil, err
	}
	if !rate.IsPositive() {
		return nil, apperrors.NewExternalServiceError("rate provider", fmt.Errorf("non-positive rate %s", rate))
	}

	createdAt := e.now().UTC()
	expiresAt := createdAt.Add(e.ttl)
	batchID := e.newID()

	var lockedRate *domain.ExchangeRate
	if req.FromCurrency != req.ToCurrency {
		r := domain.NewExchangeRate(req.FromCurrency, req.ToCurrency, rate, expiresAt)
		lockedRate = &r
		rate = r.Rate
	}

	transferFee, err := e.fees.TransferFee(req.Amount, req.TransferType, req.Priority)
	if err != nil {
		return nil, err
	}
	exchangeFee := e.fees.ExchangeFee(req.Amount, req.FromCurrency, req.ToCurrency)

	toAmount := domain.RoundToCurrency(req.Amount.Mul(rate).Sub(exchangeFee), req.ToCurrency)
	if !toAmount.IsPositive() {
		return nil, fmt.Errorf("%w: amount %s %s does not cover the exchange fee", apperrors.ErrValidation, req.Amount, req.FromCurrency)
	}

	primary := domain.TransferQuote{
		QuoteID:         e.newID(),
		BatchID:         batchID,
		UserID:          req.UserID,
		SourceAccountID: req.SourceAccountID,
		BeneficiaryID:   req.BeneficiaryID,
		FromAmount:      req.Amount,
		FromCurrency:    req.FromCurrency,
		ToAmount:        toAmount,
		ToCurrency:      req.ToCurrency,
		ExchangeRate:    lockedRate,
		TransferFee:     transferFee,
		ExchangeFee:     exchangeFee,
		TransferType:    req.TransferType,
		Priority:        req.Priority,
		CreatedAt:       createdAt,
		ExpiresAt:       expiresAt,
	}
	priceTotals(&primary)

	alternatives := make([]domain.TransferQuote, 0, len(alternativePriorities))
	for _, p := range alternativePriorities {
		alternatives = append(alternatives, e.alternative(primary, p))
	}

	e.LogDebug(ctx, "Quote batch priced",
		slog.String("batch_id", batchID),
		slog.String("total_cost", primary.TotalCost.String()),
		slog.String("to_amount", primary.ToAmount.String()))

	return &domain.QuoteBatch{Primary: primary, Alternatives: alternatives}, nil
}

// alternative reuses the primary's rate and expiry. Its fee is the primary's fee plus the
// alternate surcharge, so it is never cheaper than the primary.
func (e *QuoteEngine) alternative(primary domain.TransferQuote, priority domain.TransferPriority) domain.TransferQuote {
	alt := primary
	alt.QuoteID = e.newID()
	alt.Priority = priority
	alt.TransferFee = primary.TransferFee.Add(e.fees.PrioritySurcharge(priority))
	keep := decimal.NewFromInt(1).Sub(speedPremiums[priority])
	alt.ToAmount = domain.RoundToCurrency(primary.ToAmount.Mul(keep), primary.ToCurrency)
	if primary.ExchangeRate != nil {
		r := *primary.ExchangeRate
		alt.ExchangeRate = &r
	}
	priceTotals(&alt)
	return alt
}

// priceTotals derives the totals from the already-rounded components so the identity
// total_cost == from_amount + transfer_fee + exchange_fee holds exactly.
func priceTotals(q *domain.TransferQuote) {
	q.TotalFees = q.TransferFee.Add(q.ExchangeFee)
	q.TotalCost = q.FromAmount.Add(q.TotalFees)
}

func validateQuoteRequest(req domain.QuoteRequest) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", apperrors.ErrValidation)
	}
	if req.Amount.Exponent() < -domain.CurrencyPrecision(req.FromCurrency) {
		return fmt.Errorf("%w: amount has more decimal places than %s allows", apperrors.ErrValidation, req.FromCurrency)
	}
	if len(req.FromCurrency) != 3 || len(req.ToCurrency) != 3 {
		return fmt.Errorf("%w: currency codes must be ISO 4217", apperrors.ErrValidation)
	}
	if !req.TransferType.IsValid() {
		return fmt.Errorf("%w: unsupported transfer type %q", apperrors.ErrValidation, req.TransferType)
	}
	if !req.Priority.IsValid() {
		return fmt.Errorf("%w: unsupported priority %q", apperrors.ErrValidation, req.Priority)
	}
	return nil
}
